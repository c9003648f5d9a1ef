package tropism

import (
	"fmt"
	"os"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/tropism/internal/decode"
)

// Capability is what can be done to a file without re-encoding it.
type Capability int

const (
	// AnalysisOnly files can be measured, nothing else.
	AnalysisOnly Capability = iota
	// MetadataOnly files can carry ReplayGain tags but have no gain field to edit.
	MetadataOnly
	// LosslessGain files have their global_gain fields edited.
	LosslessGain
)

func (c Capability) String() string {
	switch c {
	case AnalysisOnly:
		return "analysis-only"
	case MetadataOnly:
		return "metadata-only"
	case LosslessGain:
		return "lossless-gain"
	}

	return "unknown"
}

func capabilityOf(kind decode.Kind) Capability {
	switch kind {
	case decode.MP3:
		return LosslessGain
	case decode.MP4:
		return MetadataOnly
	case decode.Unknown, decode.WAV, decode.Ogg, decode.FLAC:
	}

	return AnalysisOnly
}

// input is a file read whole, identified once.
type input struct {
	path       string
	data       []byte
	kind       decode.Kind
	capability Capability
}

func load(path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrReadFailure, err)
	}

	kind := decode.Detect(data, path)

	return &input{path: path, data: data, kind: kind, capability: capabilityOf(kind)}, nil
}

// Resolve identifies path, by content first and by extension when the content is not recognized.
func Resolve(path string) (Capability, error) {
	in, err := load(path)
	if err != nil {
		return AnalysisOnly, fileError(path, err)
	}

	return in.capability, nil
}

// IsAudioPath reports whether path is named like a file this package handles. Directory expansion relies on it.
func IsAudioPath(path string) bool {
	return decode.KnownExtension(path)
}
