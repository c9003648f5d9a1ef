// Package output provides shared result serialization for tropism output.
package output

import (
	"fmt"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/types"
)

// ApplyToMap converts a gain edit into the map structure used by the formatters.
func ApplyToMap(result *tropism.ApplyResult) map[string]any {
	meta := map[string]any{
		"capability":      result.Capability.String(),
		"frames_modified": result.FramesModified,
		"requested":       AdjustmentToMap(result.Requested),
		"applied":         AdjustmentToMap(result.Applied),
		"undo":            UndoToMap(result.Undo),
	}

	if result.ClippingReducedBy > 0 {
		meta["clipping_reduced_by"] = result.ClippingReducedBy
	}

	if result.ClampEvents > 0 {
		meta["clamp_events"] = result.ClampEvents
	}

	if result.MidSideFrames > 0 {
		meta["mid_side_frames"] = result.MidSideFrames
	}

	return meta
}

// UndoResultToMap converts a reverted file to a map.
func UndoResultToMap(result *tropism.UndoResult) map[string]any {
	return map[string]any{
		"frames_restored": result.FramesRestored,
		"reverted":        AdjustmentToMap(result.Reverted),
	}
}

// AdjustmentToMap shows an adjustment both in steps and in decibels.
func AdjustmentToMap(adj tropism.Adjustment) map[string]any {
	if adj.IsUniform() {
		return map[string]any{
			"steps": adj.Left,
			"db":    gain.ToDB(adj.Left),
		}
	}

	return map[string]any{
		"left_steps":  adj.Left,
		"right_steps": adj.Right,
		"left_db":     gain.ToDB(adj.Left),
		"right_db":    gain.ToDB(adj.Right),
	}
}

// UndoToMap renders a record the way it is stored.
func UndoToMap(rec types.UndoRecord) map[string]any {
	mode := "clamp"
	if rec.Wrap {
		mode = "wrap"
	}

	return map[string]any{
		"left":  rec.Left,
		"right": rec.Right,
		"mode":  mode,
	}
}

// TrackToMap converts the analysis of a single file.
func TrackToMap(track *tropism.TrackAnalysis) map[string]any {
	meta := map[string]any{
		"capability": track.Capability.String(),
	}

	if track.Err != nil {
		meta["error"] = track.Err.Error()

		return meta
	}

	if track.Loudness != nil {
		meta["loudness"] = LoudnessToMap(track.Loudness)
		meta["suggested_gain_db"] = fmt.Sprintf("%+.2f", track.SuggestedGainDB)
		meta["suggested_steps"] = track.SuggestedSteps
	}

	if track.Gain != nil {
		meta["gain"] = GainToMap(track.Gain)
	}

	if track.Clipping != nil && track.Clipping.Events > 0 {
		meta["clipping"] = ClippingToMap(track.Clipping)
	}

	return meta
}

// AlbumToMap summarizes the pooled album measurement.
func AlbumToMap(result *tropism.AnalysisResult) map[string]any {
	return map[string]any{
		"loudness":          LoudnessToMap(result.Album),
		"suggested_gain_db": fmt.Sprintf("%+.2f", result.SuggestedGainDB),
		"suggested_steps":   result.SuggestedSteps,
		"headroom_steps":    result.HeadroomSteps,
		"tracks":            len(result.Files),
	}
}

// LoudnessToMap converts a ReplayGain measurement to a map.
func LoudnessToMap(result *types.Loudness) map[string]any {
	return map[string]any{
		"gain_db":           result.GainDB,
		"measured_db":       result.MeasuredDB,
		"peak":              result.Peak,
		"true_peak":         result.TruePeak,
		"windows":           result.Windows,
		"window_min_db":     result.WindowMinDb,
		"window_max_db":     result.WindowMaxDb,
		"window_mean_db":    result.WindowMeanDb,
		"window_std_dev_db": result.WindowStdDevDb,
	}
}

// GainToMap converts global_gain statistics to a map.
func GainToMap(stats *types.GainStats) map[string]any {
	return map[string]any{
		"frames":         stats.Frames,
		"granules":       stats.Granules,
		"min":            stats.Min,
		"max":            stats.Max,
		"average":        fmt.Sprintf("%.2f", stats.Average),
		"headroom_steps": stats.HeadroomSteps(),
	}
}

// ClippingToMap converts clipping detection results to a map.
func ClippingToMap(result *types.ClippingDetection) map[string]any {
	channels := make([]any, 0, len(result.Channels))
	for i, ch := range result.Channels {
		channels = append(channels, map[string]any{
			"channel":         i,
			"events":          ch.Events,
			"clipped_samples": ch.ClippedSamples,
			"longest_run":     ch.LongestRun,
		})
	}

	return map[string]any{
		"events":          result.Events,
		"clipped_samples": result.ClippedSamples,
		"longest_run":     result.LongestRun,
		"samples":         result.Samples,
		"channels":        channels,
	}
}

// InfoToMap converts what Inspect found.
func InfoToMap(info *tropism.FileInfo) map[string]any {
	meta := map[string]any{
		"capability": info.Capability.String(),
		"format":     info.Format,
	}

	if info.Gain != nil {
		meta["version"] = info.Version
		meta["channel_mode"] = info.ChannelMode
		meta["sample_rate"] = info.SampleRate
		meta["gain"] = GainToMap(info.Gain)
		meta["headroom_db"] = info.HeadroomDB
	}

	if info.Undo != nil {
		meta["undo"] = UndoToMap(*info.Undo)
	}

	if info.MinMax != nil {
		meta["original_range"] = fmt.Sprintf("%03d,%03d", info.MinMax.Min, info.MinMax.Max)
	}

	if stored := ReplayGainToMap(info.ReplayGain); len(stored) > 0 {
		meta["replaygain"] = stored
	}

	if len(info.ForeignReplayGain) > 0 {
		meta["ignored_id3v2_replaygain"] = info.ForeignReplayGain
	}

	return meta
}

// ReplayGainToMap lists the stored values that are set.
func ReplayGainToMap(values types.ReplayGainValues) map[string]any {
	meta := map[string]any{}

	if values.TrackGain != nil {
		meta["track_gain_db"] = *values.TrackGain
	}

	if values.TrackPeak != nil {
		meta["track_peak"] = *values.TrackPeak
	}

	if values.AlbumGain != nil {
		meta["album_gain_db"] = *values.AlbumGain
	}

	if values.AlbumPeak != nil {
		meta["album_peak"] = *values.AlbumPeak
	}

	return meta
}
