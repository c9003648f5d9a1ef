package tropism

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/batch"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/types"
)

/*
Usage:

// Raise a file by 2 steps (3 dB), recording how to revert it
result, err := tropism.ApplyGain(ctx, "song.mp3", tropism.Uniform(2), tropism.DefaultOptions())

// Normalize to 89 dB without clipping
opts := tropism.DefaultOptions()
opts.PreventClipping = true
result, err := tropism.ApplyTrackGain(ctx, "song.mp3", opts)

// Same adjustment for every track of an album
results, err := tropism.ApplyAlbumGain(ctx, []string{"01.mp3", "02.mp3"}, opts)

// Apply an earlier analysis without measuring again
results, err = tropism.ApplyAnalysis(ctx, analysis, opts)

// Back to the original bytes
_, err = tropism.Undo(ctx, "song.mp3", opts)
*/

// ApplyGain edits the global_gain fields of an MP3 file and records the undo information in its APEv2 tag.
// Nothing is written when the adjustment, after clipping prevention, is zero.
func ApplyGain(ctx context.Context, path string, adj Adjustment, opts Options) (*ApplyResult, error) {
	result, err := locked(ctx, path, func(in *input) (*ApplyResult, error) {
		return applyGain(ctx, in, adj, -1, types.ReplayGainValues{}, opts)
	})

	return result, fileError(path, err)
}

// ApplyTrackGain measures a file and brings it to the target level. M4A files cannot change losslessly: they get
// the measured ReplayGain values instead, for players to apply.
func ApplyTrackGain(ctx context.Context, path string, opts Options) (*ApplyResult, error) {
	result, err := locked(ctx, path, func(in *input) (*ApplyResult, error) {
		if in.capability == AnalysisOnly {
			return nil, fmt.Errorf("%w: %s", types.ErrNotLosslessCapable, in.kind)
		}

		analyzer, err := measure(ctx, in)
		if err != nil {
			return nil, err
		}

		loudness, err := analyzer.Result()
		if err != nil {
			return nil, err //nolint:wrapcheck
		}

		steps := gain.FromDB(loudness.GainDB + opts.targetOffset())

		slog.Debug("tropism.ApplyTrackGain", "file path", in.path, "gain", loudness.GainDB, "steps", steps)

		return applyMeasured(ctx, in, steps, opts.peakOf(loudness), trackValues(loudness), opts)
	})

	return result, fileError(path, err)
}

// ApplyAlbumGain measures every file as one album and applies the same adjustment to each of them.
// Clipping prevention uses the album peak and the smallest headroom, so the adjustment stays uniform.
func ApplyAlbumGain(ctx context.Context, paths []string, opts Options) ([]*ApplyResult, error) {
	albumOpts := opts
	albumOpts.Album = true
	albumOpts.StoreTags = false

	analysis, err := Analyze(ctx, paths, albumOpts)
	if analysis == nil || analysis.Album == nil {
		return nil, err
	}

	applied, applyErr := ApplyAnalysis(ctx, analysis, opts)

	return applied, errors.Join(err, applyErr)
}

// ApplyAnalysis applies what Analyze measured. With an album measurement every file gets the album's steps,
// otherwise each file gets its own. Files that failed analysis are skipped.
func ApplyAnalysis(ctx context.Context, analysis *AnalysisResult, opts Options) ([]*ApplyResult, error) {
	tracks := make(map[string]*TrackAnalysis, len(analysis.Files))
	eligible := make([]string, 0, len(analysis.Files))

	for _, track := range analysis.Files {
		if track.Err != nil || track.Loudness == nil {
			continue
		}

		tracks[track.Path] = track
		eligible = append(eligible, track.Path)
	}

	edit := trackEdit(opts)
	if analysis.Album != nil {
		edit = analysis.albumEdit(opts)
	}

	results := batch.Run(ctx, eligible, opts.Workers, func(ctx context.Context, path string) (*ApplyResult, error) {
		result, err := locked(ctx, path, func(in *input) (*ApplyResult, error) {
			return edit(ctx, in, tracks[path])
		})

		return result, fileError(path, err)
	})

	applied := make([]*ApplyResult, 0, len(results))

	var errs []error

	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, fileError(res.Path, res.Err))

			continue
		}

		applied = append(applied, res.Value)
	}

	return applied, errors.Join(errs...)
}

type editFunc func(ctx context.Context, in *input, track *TrackAnalysis) (*ApplyResult, error)

func trackEdit(opts Options) editFunc {
	return func(ctx context.Context, in *input, track *TrackAnalysis) (*ApplyResult, error) {
		steps := gain.FromDB(track.SuggestedGainDB)

		return applyMeasured(ctx, in, steps, opts.peakOf(track.Loudness), trackValues(track.Loudness), opts)
	}
}

// albumEdit limits the album's steps once, then applies them unchanged to every file.
func (a *AnalysisResult) albumEdit(opts Options) editFunc {
	requested := gain.FromDB(a.SuggestedGainDB)
	steps := suggest(a.SuggestedGainDB, opts.peakOf(a.Album), a.albumStats(), opts)

	if reduced := requested - steps; reduced > 0 {
		slog.Warn("album gain reduced to prevent clipping", "steps", reduced)
	}

	editOpts := opts
	editOpts.PreventClipping = false

	return func(ctx context.Context, in *input, track *TrackAnalysis) (*ApplyResult, error) {
		values := trackValues(track.Loudness)
		values.AlbumGain = &a.Album.GainDB
		values.AlbumPeak = &a.Album.Peak

		result, err := applyMeasured(ctx, in, steps, opts.peakOf(a.Album), values, editOpts)
		if err != nil {
			return nil, err
		}

		result.Requested = Uniform(requested)
		if result.Capability == LosslessGain {
			result.ClippingReducedBy = requested - steps
		}

		return result, nil
	}
}

func trackValues(loudness *types.Loudness) types.ReplayGainValues {
	return types.ReplayGainValues{TrackGain: &loudness.GainDB, TrackPeak: &loudness.Peak}
}

// applyMeasured adjusts a measured file by steps. MP3 files get the gain, and with StoreTags the values they
// measure once edited. M4A files get the values as measured.
func applyMeasured(
	ctx context.Context,
	in *input,
	steps int,
	peak float64,
	values types.ReplayGainValues,
	opts Options,
) (*ApplyResult, error) {
	switch in.capability {
	case LosslessGain:
		var store types.ReplayGainValues
		if opts.StoreTags {
			store = values
		}

		return applyGain(ctx, in, Uniform(steps), peak, store, opts)
	case MetadataOnly:
		if err := storeValues(ctx, in, values, false, types.GainStats{}, opts); err != nil {
			return nil, err
		}

		slog.Debug("tropism.ApplyGain", "file path", in.path, "stage", "stored for players", "steps", steps)

		return &ApplyResult{Path: in.path, Capability: in.capability, Requested: Uniform(steps)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrNotLosslessCapable, in.kind)
	}
}

// applyGain runs one edit on a locked file. A negative peak is measured when clipping prevention needs it.
// store values are as measured before the edit. ReplayGain values already in the tag are left as they are.
func applyGain(
	ctx context.Context,
	in *input,
	adj Adjustment,
	peak float64,
	store types.ReplayGainValues,
	opts Options,
) (*ApplyResult, error) {
	st, err := openStream(in, opts.Resync)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{
		Path:       in.path,
		Capability: in.capability,
		Requested:  adj,
		Applied:    adj,
	}

	if opts.PreventClipping && (adj.Left > 0 || adj.Right > 0) {
		if peak < 0 {
			peak = measurePeak(ctx, in, opts)
		}

		result.Applied, result.ClippingReducedBy = gain.PreventClipping(adj, max(peak, 0), opts.ceiling(), st.stats)
		if result.ClippingReducedBy > 0 {
			slog.Warn("gain reduced to prevent clipping",
				"file path", in.path, "requested", adj, "applied", result.Applied)
		}
	}

	out := bytes.Clone(in.data)

	report, err := gain.Apply(out, st.frames, result.Applied, opts.Policy)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	result.FramesModified = report.FramesModified
	result.ClampEvents = report.ClampEvents
	result.MidSideFrames = report.MidSideFrames

	if result.Applied.IsZero() && store.IsEmpty() {
		slog.Debug("tropism.ApplyGain", "file path", in.path, "stage", "nothing to do")

		if st.tag != nil {
			result.Undo, _, _ = st.tag.Undo()
		}

		return result, nil
	}

	tag := st.ensureTag()

	previous, _, err := tag.Undo()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	result.Undo = previous

	tag.SetReplayGain(afterEdit(store, result.Applied))

	if !result.Applied.IsZero() {
		result.Undo = types.UndoRecord{
			Left:  previous.Left - result.Applied.Left,
			Right: previous.Right - result.Applied.Right,
			Wrap:  previous.Wrap || opts.Policy == PolicyWrap,
		}

		tag.RecordEdit(result.Undo, types.MinMax{Min: st.stats.Min, Max: st.stats.Max})
	}

	if err = commit(ctx, st, out, opts); err != nil {
		return nil, err
	}

	slog.Debug("tropism.ApplyGain", "file path", in.path, "applied", result.Applied, "frames", result.FramesModified)

	return result, nil
}

// commit splices the stream's tag into the edited bytes and replaces the file.
func commit(ctx context.Context, st *stream, out []byte, opts Options) error {
	out = ape.Splice(out, st.loc, st.tag)

	return atomicfile.Commit(ctx, st.path, out, opts.commit()) //nolint:wrapcheck
}
