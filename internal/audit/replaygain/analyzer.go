// Package replaygain measures perceived loudness following ReplayGain 1.0.
package replaygain

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ik5/audpbx/audio"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/tropism/internal/audit/clipping"
	"github.com/farcloser/tropism/internal/audit/shared"
	"github.com/farcloser/tropism/internal/audit/truepeak"
	"github.com/farcloser/tropism/internal/types"
)

const (
	windowSeconds = 0.05
	readChunk     = 8192
)

// Analyzer holds the state of one track. Feed it with Process, then read Result.
type Analyzer struct {
	channels int
	window   int

	filters []channelFilter
	sums    []float64
	filled  int

	histogram Histogram
	levels    []float64
	peak      float64
	clip      *clipping.Detector
	truePeak  *truepeak.Detector
}

// NewAnalyzer prepares a track analysis. Only rates with a filter are accepted.
func NewAnalyzer(format types.PCMFormat) (*Analyzer, error) {
	coef, err := lookup(format.SampleRate)
	if err != nil {
		return nil, err
	}

	if format.Channels == 0 {
		return nil, fmt.Errorf("%w: no channels", types.ErrDecodeFailure)
	}

	channels := int(format.Channels) //nolint:gosec // small

	analyzer := &Analyzer{
		channels: channels,
		window:   int(math.Ceil(float64(format.SampleRate) * windowSeconds)),
		filters:  make([]channelFilter, channels),
		sums:     make([]float64, channels),
		clip:     clipping.NewDetector(channels),
		truePeak: truepeak.NewDetector(channels),
	}

	for ch := range analyzer.filters {
		analyzer.filters[ch].coef = &coef
	}

	return analyzer, nil
}

// WindowSize is the number of samples per channel in a window.
func (a *Analyzer) WindowSize() int {
	return a.window
}

// Process consumes interleaved samples in [-1, 1]. A trailing partial frame is dropped.
func (a *Analyzer) Process(samples []float32) {
	samples = samples[:len(samples)-len(samples)%a.channels]
	a.clip.Process(samples)
	a.truePeak.Process(samples)

	for frame := 0; frame < len(samples); frame += a.channels {
		for ch := range a.channels {
			sample := samples[frame+ch]
			if magnitude := math.Abs(float64(sample)); magnitude > a.peak {
				a.peak = magnitude
			}

			filtered := a.filters[ch].process(float64(sample) * shared.FullScale16)
			a.sums[ch] += filtered * filtered
		}

		a.filled++
		if a.filled == a.window {
			a.closeWindow()
		}
	}
}

func (a *Analyzer) closeWindow() {
	var total float64
	for ch, sum := range a.sums {
		total += sum
		a.sums[ch] = 0
	}

	meanSquare := total / float64(a.filled) / float64(a.channels)
	bucket := Bucket(meanSquare)

	a.histogram.Observe(bucket)
	a.levels = append(a.levels, float64(bucket)/stepsPerDB)
	a.filled = 0
}

// Histogram exposes the window counts, for album pooling.
func (a *Analyzer) Histogram() *Histogram {
	return &a.histogram
}

// Levels is the ordered sequence of window levels, in dB on the 16-bit scale.
func (a *Analyzer) Levels() []float64 {
	return a.levels
}

// Peak is the largest absolute sample seen, 1.0 being full scale.
func (a *Analyzer) Peak() float64 {
	return a.peak
}

// TruePeak is the peak of the reconstructed waveform, never below Peak.
func (a *Analyzer) TruePeak() float64 {
	return a.truePeak.TruePeak()
}

// InterSamplePeaks reports the reconstructed waveform's excursions above full scale.
func (a *Analyzer) InterSamplePeaks() *types.TruePeakResult {
	return a.truePeak.Result()
}

// Clipping reports full-scale runs seen so far.
func (a *Analyzer) Clipping() *types.ClippingDetection {
	return a.clip.Result()
}

// Result computes the track measurement. The incomplete final window is ignored.
func (a *Analyzer) Result() (*types.Loudness, error) {
	return summarize(&a.histogram, a.levels, a.peak, a.TruePeak())
}

// Album pools every track's windows. Failed tracks must be left out by the caller.
func Album(tracks []*Analyzer) (*types.Loudness, error) {
	var (
		pooled   Histogram
		levels   []float64
		peak     float64
		truePeak float64
	)

	for _, track := range tracks {
		pooled.Merge(&track.histogram)
		levels = append(levels, track.levels...)
		peak = max(peak, track.peak)
		truePeak = max(truePeak, track.TruePeak())
	}

	return summarize(&pooled, levels, peak, truePeak)
}

func summarize(histogram *Histogram, levels []float64, peak, truePeak float64) (*types.Loudness, error) {
	gainDB, ok := histogram.GainDB()
	if !ok {
		return nil, types.ErrNotEnoughSamples
	}

	result := &types.Loudness{
		GainDB:       gainDB,
		MeasuredDB:   ReferenceLevelDB - gainDB,
		Peak:         peak,
		TruePeak:     truePeak,
		Windows:      len(levels),
		WindowMinDb:  floats.Min(levels),
		WindowMaxDb:  floats.Max(levels),
		WindowMeanDb: stat.Mean(levels, nil),
	}

	if len(levels) > 1 {
		result.WindowStdDevDb = stat.StdDev(levels, nil)
	}

	return result, nil
}

// Analyze drains src into a new analyzer.
func Analyze(src audio.Source) (*Analyzer, error) {
	//nolint:gosec // channel counts are small
	analyzer, err := NewAnalyzer(types.PCMFormat{SampleRate: src.SampleRate(), Channels: uint(src.Channels())})
	if err != nil {
		return nil, err
	}

	buf := make([]float32, readChunk*src.Channels())

	for {
		n, err := src.ReadSamples(buf)
		if n > 0 {
			analyzer.Process(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			return analyzer, nil
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
		}
	}
}
