package tropism

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/tag/mp4"
	"github.com/farcloser/tropism/internal/types"
)

// store records the measurements of every analyzed file, one file at a time.
func (a *AnalysisResult) store(ctx context.Context, opts Options) []error {
	albumStats := a.albumStats()

	var errs []error

	for _, track := range a.Files {
		if track.Err != nil || track.Loudness == nil {
			continue
		}

		if track.Capability == AnalysisOnly {
			slog.Debug("tropism.Analyze", "file path", track.Path, "stage", "no tag to store results in")

			continue
		}

		if err := ctx.Err(); err != nil {
			track.Err = fileError(track.Path, err)
			errs = append(errs, track.Err)

			continue
		}

		values := types.ReplayGainValues{TrackGain: &track.Loudness.GainDB, TrackPeak: &track.Loudness.Peak}
		if a.Album != nil {
			values.AlbumGain = &a.Album.GainDB
			values.AlbumPeak = &a.Album.Peak
		}

		_, err := locked(ctx, track.Path, func(in *input) (struct{}, error) {
			return struct{}{}, storeValues(ctx, in, values, a.Album != nil, albumStats, opts)
		})
		if err != nil {
			track.Err = fileError(track.Path, err)
			errs = append(errs, track.Err)
		}
	}

	return errs
}

func storeValues(
	ctx context.Context,
	in *input,
	values types.ReplayGainValues,
	album bool,
	albumStats types.GainStats,
	opts Options,
) error {
	var (
		out []byte
		err error
	)

	switch in.capability {
	case LosslessGain:
		out, err = storeAPE(in, values, album, albumStats, opts)
	case MetadataOnly:
		out, err = mp4.Write(in.data, values)
	case AnalysisOnly:
		return fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, in.kind)
	}

	if err != nil {
		return err //nolint:wrapcheck
	}

	if bytes.Equal(out, in.data) {
		return nil
	}

	return atomicfile.Commit(ctx, in.path, out, opts.commit()) //nolint:wrapcheck
}

func storeAPE(
	in *input,
	values types.ReplayGainValues,
	album bool,
	albumStats types.GainStats,
	opts Options,
) ([]byte, error) {
	st, err := openStream(in, opts.Resync)
	if err != nil {
		return nil, err
	}

	tag := st.ensureTag()
	tag.SetReplayGain(values)

	// Without an undo record the current range is the original one.
	if _, edited, _ := tag.Undo(); !edited && st.stats.Granules > 0 {
		tag.SetMinMax(types.MinMax{Min: st.stats.Min, Max: st.stats.Max})
	}

	if album && albumStats.Granules > 0 {
		tag.SetAlbumMinMax(types.MinMax{Min: albumStats.Min, Max: albumStats.Max})
	}

	return ape.Splice(in.data, st.loc, tag), nil
}

// DeleteTags removes every mp3gain and ReplayGain item, undo information included, as mp3gain -s d does.
// Other APEv2 items are kept. M4A files lose their ReplayGain atoms.
func DeleteTags(ctx context.Context, path string, opts Options) error {
	_, err := locked(ctx, path, func(in *input) (struct{}, error) {
		return struct{}{}, deleteTags(ctx, in, opts)
	})

	return fileError(path, err)
}

func deleteTags(ctx context.Context, in *input, opts Options) error {
	var out []byte

	switch in.capability {
	case LosslessGain:
		tag, loc, err := ape.Locate(in.data)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if tag == nil {
			return nil
		}

		tag.ClearUndo()
		tag.Remove(ape.KeyMinMax)
		tag.ClearReplayGain()
		out = ape.Splice(in.data, loc, tag)
	case MetadataOnly:
		var err error
		if out, err = mp4.Delete(in.data); err != nil {
			return err //nolint:wrapcheck
		}
	case AnalysisOnly:
		return fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, in.kind)
	}

	if bytes.Equal(out, in.data) {
		return nil
	}

	return atomicfile.Commit(ctx, in.path, out, opts.commit()) //nolint:wrapcheck
}
