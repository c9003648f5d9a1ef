// Package decode turns any supported input into interleaved float PCM for analysis.
package decode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	pbx "github.com/ik5/audpbx/audio"
	"github.com/ik5/audpbx/formats/mp3"
	"github.com/ik5/audpbx/formats/vorbis"

	"github.com/farcloser/tropism/internal/audit/replaygain"
	"github.com/farcloser/tropism/internal/integration/ffmpeg"
	"github.com/farcloser/tropism/internal/integration/ffprobe"
	"github.com/farcloser/tropism/internal/types"
)

//nolint:gochecknoglobals // decoders are stateless
var registry = newRegistry()

func newRegistry() *pbx.Registry {
	reg := pbx.NewRegistry()
	reg.Register(MP3.String(), mp3.Decoder{})
	reg.Register(WAV.String(), wavDecoder{})
	reg.Register(Ogg.String(), vorbis.Decoder{})

	return reg
}

// TargetRate picks the analysis rate for a source whose rate has no loudness filter.
func TargetRate(rate int) int {
	const cd, dat = 44100, 48000
	if rate%11025 == 0 {
		return cd
	}

	return dat
}

// Open decodes data, previously read from path and identified as kind. Kinds without a native decoder, and
// native failures on unusual layouts, go through ffmpeg. The returned source always runs at a rate the
// loudness analysis supports.
func Open(ctx context.Context, path string, data []byte, kind Kind) (pbx.Source, error) {
	var (
		source pbx.Source
		err    error
	)

	if decoder, ok := registry.Get(kind.String()); ok {
		source, err = decoder.Decode(bytes.NewReader(data))
		if errors.Is(err, errWAVLayout) {
			slog.Debug("decode.Open", "file path", path, "stage", "fallback", "reason", err)

			source, err = external(ctx, path)
		}
	} else {
		source, err = external(ctx, path)
	}

	if err != nil {
		if errors.Is(err, types.ErrDecodeFailure) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", types.ErrDecodeFailure, err)
	}

	if !replaygain.Supported(source.SampleRate()) {
		target := TargetRate(source.SampleRate())
		slog.Debug("decode.Open", "file path", path, "stage", "resample", "from", source.SampleRate(), "to", target)

		source = pbx.NewResampler(source, target)
	}

	return source, nil
}

// external has ffmpeg decode the first audio stream, converting the rate when needed.
func external(ctx context.Context, path string) (pbx.Source, error) {
	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	stream, index, err := probe.AudioStream()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	format := &types.PCMFormat{
		SampleRate: stream.Rate(),
		Channels:   uint(stream.Channels), //nolint:gosec // checked positive
	}

	if !replaygain.Supported(format.SampleRate) {
		format.SampleRate = TargetRate(format.SampleRate)
	}

	input, err := os.Open(path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	defer input.Close()

	var output bytes.Buffer
	if err = ffmpeg.ExtractStream(ctx, input, &output, index, format); err != nil {
		return nil, err //nolint:wrapcheck
	}

	return &pcm16{r: &output, sampleRate: format.SampleRate, channels: int(format.Channels)}, nil
}
