package tropism

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/audit/replaygain"
	"github.com/farcloser/tropism/internal/decode"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/mpeg"
	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/tag/id3"
	"github.com/farcloser/tropism/internal/types"
)

const referenceDB = replaygain.ReferenceLevelDB

// stream is an MP3 file split into its frames and its APE tag.
type stream struct {
	*input

	frames []mpeg.Frame
	stats  types.GainStats

	// tag is nil when the file has none. loc is where it is, or where it goes.
	tag *ape.Tag
	loc ape.Location
}

func openStream(in *input, resync bool) (*stream, error) {
	if in.capability != LosslessGain {
		return nil, fmt.Errorf("%w: %s", types.ErrNotLosslessCapable, in.kind)
	}

	frames, err := mpeg.NewScanner(in.data, mpeg.WithResync(resync)).Collect()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	tag, loc, err := ape.Locate(in.data)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	warnForeign(in)

	return &stream{
		input:  in,
		frames: frames,
		stats:  gain.Stats(in.data, frames),
		tag:    tag,
		loc:    loc,
	}, nil
}

// first returns the first audio frame, if any.
func (s *stream) first() (mpeg.Frame, bool) {
	for _, frame := range s.frames {
		if !frame.Info {
			return frame, true
		}
	}

	return mpeg.Frame{}, false
}

func (s *stream) ensureTag() *ape.Tag {
	if s.tag == nil {
		s.tag = ape.New()
	}

	return s.tag
}

func warnForeign(in *input) {
	if found := foreignValues(in); len(found) > 0 {
		slog.Warn("ignoring ReplayGain values stored in ID3v2, APEv2 is used", "file path", in.path, "values", found)
	}
}

func foreignValues(in *input) []string {
	found, err := id3.ForeignReplayGain(in.data)
	if err != nil {
		slog.Debug("id3.ForeignReplayGain", "file path", in.path, "error", err)
	}

	return found
}

// locked runs work on the freshly read contents of path while holding its lock.
func locked[T any](ctx context.Context, path string, work func(in *input) (T, error)) (T, error) {
	var zero T

	lock, err := atomicfile.Acquire(ctx, path)
	if err != nil {
		return zero, err //nolint:wrapcheck
	}

	defer func() {
		if err := lock.Release(); err != nil {
			slog.Debug("atomicfile.Release", "file path", path, "error", err)
		}
	}()

	in, err := load(path)
	if err != nil {
		return zero, err
	}

	return work(in)
}

// measure decodes the file and runs the loudness analysis over it.
func measure(ctx context.Context, in *input) (*replaygain.Analyzer, error) {
	src, err := decode.Open(ctx, in.path, in.data, in.kind)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	defer src.Close()

	return replaygain.Analyze(src) //nolint:wrapcheck
}

// measurePeak returns the peak, or zero when the file cannot be decoded.
func measurePeak(ctx context.Context, in *input, opts Options) float64 {
	analyzer, err := measure(ctx, in)
	if err != nil {
		slog.Warn("peak unknown, limiting to gain field headroom", "file path", in.path, "error", err)

		return 0
	}

	if opts.TruePeak {
		return analyzer.TruePeak()
	}

	return analyzer.Peak()
}

// afterEdit converts values measured before a uniform edit to the edited audio.
func afterEdit(values types.ReplayGainValues, adj Adjustment) types.ReplayGainValues {
	if values.IsEmpty() || adj.IsZero() || !adj.IsUniform() {
		return values
	}

	db := gain.ToDB(adj.Left)
	factor := math.Pow(10, db/20)

	shift := func(value *float64, by func(float64) float64) *float64 {
		if value == nil {
			return nil
		}

		shifted := by(*value)

		return &shifted
	}

	lower := func(v float64) float64 { return v - db }
	scale := func(v float64) float64 { return v * factor }

	return types.ReplayGainValues{
		TrackGain: shift(values.TrackGain, lower),
		TrackPeak: shift(values.TrackPeak, scale),
		AlbumGain: shift(values.AlbumGain, lower),
		AlbumPeak: shift(values.AlbumPeak, scale),
	}
}
