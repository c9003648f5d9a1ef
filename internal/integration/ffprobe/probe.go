//nolint:tagliatelle
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/tropism/internal/integration/binary"
)

const (
	name = "ffprobe"
	// Probing only reads headers, but storage may have to spin up first.
	timeout = 60 * time.Second
)

var (
	ErrNoAudioStream     = errors.New("no audio streams found")
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	ErrInvalidChannels   = errors.New("invalid channel count")
)

// Result contains the marshalled output of ffprobe.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream holds the properties needed to decode an audio stream.
type Stream struct {
	Index         int    `json:"index"`
	CodecName     string `json:"codec_name"`               // aac, alac, flac
	CodecType     string `json:"codec_type"`               // audio
	SampleRate    string `json:"sample_rate,omitempty"`    // 44100
	Channels      int    `json:"channels,omitempty"`       // 2
	ChannelLayout string `json:"channel_layout,omitempty"` // stereo
	Duration      string `json:"duration,omitempty"`       // 310.666667
	BitRate       string `json:"bit_rate,omitempty"`       // 256000
}

// Format contains container-level information.
type Format struct {
	Filename   string `json:"filename"`
	NbStreams  int    `json:"nb_streams"`
	FormatName string `json:"format_name"` // "mov,mp4,m4a,3gp,3g2,mj2"
	Duration   string `json:"duration,omitempty"`
	ProbeScore int    `json:"probe_score"`
}

// AudioStream returns the first audio stream and its position among audio streams.
func (r *Result) AudioStream() (*Stream, int, error) {
	audioIndex := 0

	for i := range r.Streams {
		if r.Streams[i].CodecType != "audio" {
			continue
		}

		stream := &r.Streams[i]

		rate, err := strconv.Atoi(stream.SampleRate)
		if err != nil || rate <= 0 {
			return nil, 0, fmt.Errorf("%w: %q", ErrInvalidSampleRate, stream.SampleRate)
		}

		if stream.Channels <= 0 {
			return nil, 0, fmt.Errorf("%w: %d", ErrInvalidChannels, stream.Channels)
		}

		return stream, audioIndex, nil
	}

	return nil, 0, ErrNoAudioStream
}

// Rate returns the parsed sample rate.
func (s *Stream) Rate() int {
	rate, _ := strconv.Atoi(s.SampleRate)

	return rate
}

// Probe runs ffprobe on the given file path and returns parsed metadata.
// It requires ffprobe to be available in the system PATH.
func Probe(ctx context.Context, filePath string) (*Result, error) {
	slog.Debug("ffprobe.Probe", "file path", filePath)

	ffprobePath, err := binary.Find(name)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is intentionally user-provided input for probing media files
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		return nil, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	var result Result
	if err = json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", fault.ErrInvalidJSON, err)
	}

	return &result, nil
}
