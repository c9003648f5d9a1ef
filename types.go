package tropism

import (
	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/types"
)

// Adjustment is a change in 1.5 dB steps for each channel. Left alone applies to mono streams.
type Adjustment = gain.Adjustment

// Policy decides what happens when a gain field would leave [0, 255].
type Policy = gain.Policy

const (
	PolicyClamp  = gain.PolicyClamp
	PolicyWrap   = gain.PolicyWrap
	PolicyStrict = gain.PolicyStrict
)

// WriteMode selects how modified files are committed to disk.
type WriteMode = atomicfile.Mode

const (
	WriteRename  = atomicfile.Rename
	WriteInPlace = atomicfile.InPlace
)

// Uniform adjusts every channel alike.
func Uniform(steps int) Adjustment {
	return gain.Uniform(steps)
}

// Options configure every operation.
type Options struct {
	// Policy applies to out of range gain fields (default: clamp).
	Policy Policy

	// PreventClipping lowers positive adjustments so that the peak stays below ClipCeiling.
	PreventClipping bool
	ClipCeiling     float64
	// TruePeak limits on the reconstructed waveform instead of the sample values.
	TruePeak bool

	// TargetDB is the reference loudness, 89 dB being ReplayGain's.
	TargetDB float64

	WriteMode     WriteMode
	PreserveTimes bool

	// Resync skips corrupt data between frames instead of failing.
	Resync bool

	// Workers bounds the number of files processed at once.
	Workers int

	// StoreTags records analysis results in the files' tags.
	StoreTags bool

	// Album pools every file into a single album measurement.
	Album bool

	// ContinueOnError leaves failed tracks out of the album instead of aborting.
	ContinueOnError bool
}

// DefaultOptions returns mp3gain's defaults.
func DefaultOptions() Options {
	return Options{
		Policy:      PolicyClamp,
		ClipCeiling: gain.DefaultCeiling,
		TargetDB:    referenceDB,
		WriteMode:   WriteRename,
		Workers:     1,
	}
}

func (o Options) commit() atomicfile.Options {
	return atomicfile.Options{Mode: o.WriteMode, PreserveTimes: o.PreserveTimes}
}

func (o Options) ceiling() float64 {
	if o.ClipCeiling <= 0 {
		return gain.DefaultCeiling
	}

	return o.ClipCeiling
}

// peakOf picks the peak clipping prevention works with.
func (o Options) peakOf(loudness *types.Loudness) float64 {
	if o.TruePeak {
		return loudness.TruePeak
	}

	return loudness.Peak
}

// targetOffset shifts ReplayGain suggestions to the requested reference level.
func (o Options) targetOffset() float64 {
	if o.TargetDB == 0 {
		return 0
	}

	return o.TargetDB - referenceDB
}

// ApplyResult describes a gain edit.
type ApplyResult struct {
	Path       string
	Capability Capability

	FramesModified int
	// Requested is what the caller asked for, Applied what was written after clipping prevention.
	Requested Adjustment
	Applied   Adjustment
	// ClippingReducedBy is the number of steps withheld to avoid clipping.
	ClippingReducedBy int
	ClampEvents       int
	MidSideFrames     int

	// Undo is the record stored after the edit.
	Undo types.UndoRecord
}

// UndoResult describes a reverted file.
type UndoResult struct {
	Path           string
	FramesRestored int
	Reverted       Adjustment
}

// TrackAnalysis is the measurement of one file.
type TrackAnalysis struct {
	Path       string
	Capability Capability

	Loudness *types.Loudness
	Clipping *types.ClippingDetection

	// SuggestedGainDB is the adjustment reaching the target level.
	SuggestedGainDB float64
	// SuggestedSteps rounds SuggestedGainDB to steps, limited when clipping prevention is on.
	SuggestedSteps int

	// Gain summarizes the gain fields of MP3 files.
	Gain *types.GainStats

	Err error
}

// AnalysisResult gathers every file and, when requested, the album.
type AnalysisResult struct {
	Files []*TrackAnalysis

	Album           *types.Loudness
	SuggestedGainDB float64
	SuggestedSteps  int
	// HeadroomSteps is the smallest headroom among the MP3 files of the album.
	HeadroomSteps int
}

// FileInfo is what Inspect reports.
type FileInfo struct {
	Path       string
	Capability Capability
	Format     string

	// MP3 stream details.
	Frames      int
	Version     string
	ChannelMode string
	SampleRate  int
	Gain        *types.GainStats
	Headroom    int
	HeadroomDB  float64

	Undo       *types.UndoRecord
	MinMax     *types.MinMax
	ReplayGain types.ReplayGainValues

	// ForeignReplayGain lists ReplayGain values found in other tag formats, which are ignored.
	ForeignReplayGain []string
}
