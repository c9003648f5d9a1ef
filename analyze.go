package tropism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/farcloser/tropism/internal/audit/replaygain"
	"github.com/farcloser/tropism/internal/batch"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/mpeg"
	"github.com/farcloser/tropism/internal/types"
)

type measured struct {
	track    *TrackAnalysis
	analyzer *replaygain.Analyzer
}

// Analyze measures every file, in parallel, then pools them into an album when opts.Album is set.
// Failures are reported on each TrackAnalysis and joined in the returned error. With StoreTags, results are
// written to MP3 and M4A files; other formats have nowhere to keep them.
func Analyze(ctx context.Context, paths []string, opts Options) (*AnalysisResult, error) {
	results := batch.Run(ctx, paths, opts.Workers, func(ctx context.Context, path string) (*measured, error) {
		return analyzeFile(ctx, path, opts)
	})

	analysis := &AnalysisResult{Files: make([]*TrackAnalysis, 0, len(results))}

	var (
		analyzers []*replaygain.Analyzer
		errs      []error
	)

	for _, res := range results {
		if res.Err != nil {
			err := fileError(res.Path, res.Err)
			errs = append(errs, err)

			track := &TrackAnalysis{Path: res.Path, Err: err}
			if res.Value != nil {
				track = res.Value.track
				track.Err = err
			}

			analysis.Files = append(analysis.Files, track)

			continue
		}

		analysis.Files = append(analysis.Files, res.Value.track)
		analyzers = append(analyzers, res.Value.analyzer)
	}

	if opts.Album {
		if err := analysis.aggregate(analyzers, len(errs), opts); err != nil {
			return analysis, errors.Join(append([]error{err}, errs...)...)
		}
	}

	if opts.StoreTags {
		errs = append(errs, analysis.store(ctx, opts)...)
	}

	return analysis, errors.Join(errs...)
}

func analyzeFile(ctx context.Context, path string, opts Options) (*measured, error) {
	in, err := load(path)
	if err != nil {
		return nil, err
	}

	track := &TrackAnalysis{Path: path, Capability: in.capability}

	if in.capability == LosslessGain {
		frames, err := mpeg.NewScanner(in.data, mpeg.WithResync(opts.Resync)).Collect()
		if err != nil {
			return &measured{track: track}, err //nolint:wrapcheck
		}

		stats := gain.Stats(in.data, frames)
		track.Gain = &stats
	}

	analyzer, err := measure(ctx, in)
	if err != nil {
		return &measured{track: track}, err
	}

	loudness, err := analyzer.Result()
	if err != nil {
		return &measured{track: track}, err //nolint:wrapcheck
	}

	track.Loudness = loudness
	track.Clipping = analyzer.Clipping()
	track.SuggestedGainDB = loudness.GainDB + opts.targetOffset()

	var stats types.GainStats
	if track.Gain != nil {
		stats = *track.Gain
	}

	track.SuggestedSteps = suggest(track.SuggestedGainDB, opts.peakOf(loudness), stats, opts)

	slog.Debug("tropism.Analyze", "file path", path, "gain", loudness.GainDB, "peak", loudness.Peak)

	return &measured{track: track, analyzer: analyzer}, nil
}

// aggregate pools the measured tracks. Any failed track fails the album unless the caller opted to go on.
func (a *AnalysisResult) aggregate(analyzers []*replaygain.Analyzer, failed int, opts Options) error {
	if failed > 0 && !opts.ContinueOnError {
		return fmt.Errorf("%w: %d of %d tracks failed", types.ErrAlbumAggregation, failed, len(a.Files))
	}

	if failed > 0 {
		slog.Warn("album measured without failed tracks", "failed", failed, "tracks", len(a.Files))
	}

	album, err := replaygain.Album(analyzers)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrAlbumAggregation, err)
	}

	stats := a.albumStats()

	a.Album = album
	a.SuggestedGainDB = album.GainDB + opts.targetOffset()
	a.SuggestedSteps = suggest(a.SuggestedGainDB, opts.peakOf(album), stats, opts)
	a.HeadroomSteps = stats.HeadroomSteps()

	return nil
}

// albumStats merges the gain fields of every MP3 track.
func (a *AnalysisResult) albumStats() types.GainStats {
	merged := types.GainStats{Min: 255}

	var sum float64

	for _, track := range a.Files {
		if track.Err != nil || track.Gain == nil || track.Gain.Granules == 0 {
			continue
		}

		merged.Frames += track.Gain.Frames
		merged.Granules += track.Gain.Granules
		merged.Min = min(merged.Min, track.Gain.Min)
		merged.Max = max(merged.Max, track.Gain.Max)
		sum += track.Gain.Average * float64(track.Gain.Granules)
	}

	if merged.Granules == 0 {
		return types.GainStats{}
	}

	merged.Average = sum / float64(merged.Granules)

	return merged
}

// suggest rounds db to steps, limited by the peak and the gain field headroom when clipping prevention is on.
func suggest(db, peak float64, stats types.GainStats, opts Options) int {
	steps := gain.FromDB(db)
	if !opts.PreventClipping {
		return steps
	}

	return gain.LimitForClipping(steps, peak, opts.ceiling(), stats)
}
