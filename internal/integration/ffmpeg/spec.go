package ffmpeg

import (
	"strconv"
	"time"

	"github.com/farcloser/tropism/internal/types"
)

const (
	name = "ffmpeg"
	// Whole albums of long tracks on slow storage need a generous budget.
	timeout = 10 * time.Minute
	// Decoded output is always 16-bit little endian, the scale ReplayGain works on.
	sampleFormat = "s16le"
	codec        = "pcm_s16le"
)

// formatArgs pins the output rate and channel count when the caller asks for them.
func formatArgs(format *types.PCMFormat) []string {
	if format == nil {
		return nil
	}

	var args []string

	if format.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(format.SampleRate))
	}

	if format.Channels > 0 {
		args = append(args, "-ac", strconv.FormatUint(uint64(format.Channels), 10))
	}

	return args
}
