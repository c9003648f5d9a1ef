//nolint:staticcheck // too dumb on Db vs. DB
package types

// PCMFormat describes decoded PCM handed to the analyzers.
type PCMFormat struct {
	SampleRate int
	Channels   uint
}

// ChannelClipping contains per channel clipping detection results.
type ChannelClipping struct {
	Events         uint64
	ClippedSamples uint64
	LongestRun     uint64
}

// ClippingDetection contains overall clipping detection results.
type ClippingDetection struct {
	Events         uint64
	ClippedSamples uint64
	LongestRun     uint64
	Samples        uint64
	Channels       []ChannelClipping
}

// TruePeakResult contains the reconstructed peak of a signal, from 4x oversampling.
type TruePeakResult struct {
	TruePeak     float64
	TruePeakDb   float64
	SamplePeakDb float64
	// ISPCount is the number of interpolated samples above full scale.
	ISPCount uint64
	ISPMaxDb float64
	Frames   uint64
}

// GainStats summarizes the global_gain fields of every audio granule in a stream.
type GainStats struct {
	Frames   int
	Granules int
	Min      uint8
	Max      uint8
	Average  float64
}

// HeadroomSteps is how far the loudest granule can be raised before its field saturates.
func (s GainStats) HeadroomSteps() int {
	if s.Granules == 0 {
		return 0
	}

	return 255 - int(s.Max)
}

// Loudness is the ReplayGain measurement of a track or of a pooled album.
type Loudness struct {
	// GainDB is the adjustment bringing the material to the target level.
	GainDB float64
	// MeasuredDB is the perceived level on the 89 dB SPL reference scale.
	MeasuredDB float64
	// Peak is the largest absolute sample, 1.0 being digital full scale.
	Peak float64
	// TruePeak is the peak of the reconstructed waveform, on the same scale.
	TruePeak float64

	Windows        int
	WindowMinDb    float64
	WindowMaxDb    float64
	WindowMeanDb   float64
	WindowStdDevDb float64
}

// UndoRecord is the net adjustment history of a file, in gain steps per channel.
// Left and Right hold the steps that revert the file to its original state.
type UndoRecord struct {
	Left  int
	Right int
	Wrap  bool
}

// IsZero reports whether reverting would change nothing.
func (u UndoRecord) IsZero() bool {
	return u.Left == 0 && u.Right == 0
}

// MinMax is the original global_gain range, recorded before the first edit.
type MinMax struct {
	Min uint8
	Max uint8
}

// ReplayGainValues are the analysis results stored alongside the audio.
type ReplayGainValues struct {
	TrackGain *float64
	TrackPeak *float64
	AlbumGain *float64
	AlbumPeak *float64
}

// IsEmpty reports whether no value is set.
func (v ReplayGainValues) IsEmpty() bool {
	return v.TrackGain == nil && v.TrackPeak == nil && v.AlbumGain == nil && v.AlbumPeak == nil
}
