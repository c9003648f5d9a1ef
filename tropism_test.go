package tropism_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/fixture"
	"github.com/farcloser/tropism/internal/tag/ape"
	"github.com/farcloser/tropism/internal/tag/mp4"
	"github.com/farcloser/tropism/internal/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}

func inspect(t *testing.T, path string) *tropism.FileInfo {
	t.Helper()

	info, err := tropism.Inspect(context.Background(), path)
	require.NoError(t, err)

	return info
}

func ptr(v float64) *float64 {
	return &v
}

func TestApplyThenUndoRestoresOriginalBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file fixture.MP3
	}{
		{name: "plain", file: fixture.MP3{Frames: 20}},
		{name: "id3 tags", file: fixture.MP3{Frames: 20, ID3v2: true, ID3v1: true}},
		{name: "crc", file: fixture.MP3{Frames: 12, CRC: true, Padding: true}},
		{name: "mono", file: fixture.MP3{Frames: 12, Mono: true}},
		{name: "joint stereo", file: fixture.MP3{Frames: 12, Joint: true}},
		{name: "mpeg2", file: fixture.MP3{Layout: fixture.MPEG2, Frames: 12}},
		{name: "mpeg2.5 mono", file: fixture.MP3{Layout: fixture.MPEG25, Frames: 12, Mono: true}},
		{name: "info frame", file: fixture.MP3{Frames: 12, XingFirst: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := tt.file.Bytes()
			path := writeFile(t, "track.mp3", original)
			ctx := context.Background()

			result, err := tropism.ApplyGain(ctx, path, tropism.Uniform(2), tropism.DefaultOptions())
			require.NoError(t, err)

			assert.Equal(t, tropism.LosslessGain, result.Capability)
			assert.Equal(t, tt.file.Frames, result.FramesModified)
			assert.Equal(t, types.UndoRecord{Left: -2, Right: -2}, result.Undo)

			info := inspect(t, path)
			assert.Equal(t, uint8(152), info.Gain.Min)
			assert.Equal(t, uint8(152), info.Gain.Max)
			require.NotNil(t, info.Undo)
			assert.Equal(t, types.UndoRecord{Left: -2, Right: -2}, *info.Undo)
			require.NotNil(t, info.MinMax)
			assert.Equal(t, types.MinMax{Min: 150, Max: 150}, *info.MinMax)

			undone, err := tropism.Undo(ctx, path, tropism.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.file.Frames, undone.FramesRestored)
			assert.Equal(t, tropism.Uniform(-2), undone.Reverted)

			assert.Equal(t, original, readFile(t, path))
		})
	}
}

func TestEditsAccumulateInTheUndoRecord(t *testing.T) {
	t.Parallel()

	original := fixture.MP3{Frames: 10, ID3v1: true}.Bytes()
	path := writeFile(t, "track.mp3", original)
	ctx := context.Background()
	opts := tropism.DefaultOptions()

	_, err := tropism.ApplyGain(ctx, path, tropism.Uniform(3), opts)
	require.NoError(t, err)

	result, err := tropism.ApplyGain(ctx, path, tropism.Adjustment{Left: -1, Right: -2}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.UndoRecord{Left: -2, Right: -1}, result.Undo)

	info := inspect(t, path)
	assert.Equal(t, types.MinMax{Min: 150, Max: 150}, *info.MinMax, "the original range is recorded once")
	assert.Equal(t, uint8(151), info.Gain.Min)
	assert.Equal(t, uint8(152), info.Gain.Max)

	// Bringing the net back to zero drops the record, and with it the whole tag.
	result, err = tropism.ApplyGain(ctx, path, tropism.Adjustment{Left: -2, Right: -1}, opts)
	require.NoError(t, err)
	assert.True(t, result.Undo.IsZero())
	assert.Equal(t, original, readFile(t, path))

	_, err = tropism.Undo(ctx, path, opts)
	require.ErrorIs(t, err, tropism.ErrNoUndoRecord)
}

func TestRangePolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy tropism.Policy
		want   uint8
		clamps bool
		wrap   bool
	}{
		{name: "clamp", policy: tropism.PolicyClamp, want: 255, clamps: true},
		{name: "wrap", policy: tropism.PolicyWrap, want: 44, wrap: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, "track.mp3", fixture.MP3{Frames: 6, Gain: fixture.Uniform(100)}.Bytes())

			opts := tropism.DefaultOptions()
			opts.Policy = tt.policy

			result, err := tropism.ApplyGain(context.Background(), path, tropism.Uniform(200), opts)
			require.NoError(t, err)

			assert.Equal(t, tt.clamps, result.ClampEvents > 0)
			assert.Equal(t, tt.wrap, result.Undo.Wrap)

			info := inspect(t, path)
			assert.Equal(t, tt.want, info.Gain.Min)
			assert.Equal(t, tt.want, info.Gain.Max)
		})
	}
}

func TestWrappedEditsUndoExactly(t *testing.T) {
	t.Parallel()

	original := fixture.MP3{Frames: 6, Gain: fixture.Uniform(100)}.Bytes()
	path := writeFile(t, "track.mp3", original)

	opts := tropism.DefaultOptions()
	opts.Policy = tropism.PolicyWrap

	_, err := tropism.ApplyGain(context.Background(), path, tropism.Uniform(200), opts)
	require.NoError(t, err)

	// The record carries the wrap flag, whatever policy the undo is asked for.
	_, err = tropism.Undo(context.Background(), path, tropism.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, original, readFile(t, path))
}

func TestRefusedEditsLeaveTheFileUntouched(t *testing.T) {
	t.Parallel()

	strict := tropism.DefaultOptions()
	strict.Policy = tropism.PolicyStrict

	tests := []struct {
		name string
		file fixture.MP3
		adj  tropism.Adjustment
		opts tropism.Options
		err  error
	}{
		{
			name: "strict out of range",
			file: fixture.MP3{Frames: 6, Gain: fixture.Uniform(100)},
			adj:  tropism.Uniform(200),
			opts: strict,
			err:  tropism.ErrOutOfRangeGain,
		},
		{
			name: "channel gain on mono",
			file: fixture.MP3{Frames: 6, Mono: true},
			adj:  tropism.Adjustment{Left: 0, Right: 2},
			opts: tropism.DefaultOptions(),
			err:  tropism.ErrMonoChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := tt.file.Bytes()
			path := writeFile(t, "track.mp3", original)

			_, err := tropism.ApplyGain(context.Background(), path, tt.adj, tt.opts)
			require.ErrorIs(t, err, tt.err)

			var fileErr *tropism.FileError
			require.ErrorAs(t, err, &fileErr)
			assert.Equal(t, path, fileErr.Path)

			assert.Equal(t, original, readFile(t, path))
		})
	}
}

func TestZeroGainWritesNothing(t *testing.T) {
	t.Parallel()

	original := fixture.MP3{Frames: 6}.Bytes()
	path := writeFile(t, "track.mp3", original)

	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, old, old))

	result, err := tropism.ApplyGain(context.Background(), path, tropism.Uniform(0), tropism.DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, result.FramesModified)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, stat.ModTime().Equal(old))
	assert.Equal(t, original, readFile(t, path))
}

func TestPreventClippingKeepsFieldsBelowSaturation(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "track.mp3", fixture.MP3{Frames: 6, Gain: fixture.Uniform(250)}.Bytes())

	opts := tropism.DefaultOptions()
	opts.PreventClipping = true

	result, err := tropism.ApplyGain(context.Background(), path, tropism.Uniform(10), opts)
	require.NoError(t, err)

	assert.Equal(t, tropism.Uniform(10), result.Requested)
	assert.Equal(t, tropism.Uniform(5), result.Applied)
	assert.Equal(t, 5, result.ClippingReducedBy)
	assert.Zero(t, result.ClampEvents)

	info := inspect(t, path)
	assert.Equal(t, uint8(255), info.Gain.Max)
	assert.Equal(t, types.UndoRecord{Left: -5, Right: -5}, *info.Undo)
}

func TestUndoKeepsItemsStoredBeforehand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		peak  string
		steps int
	}{
		{name: "half", peak: "0.500001", steps: -3},
		{name: "small", peak: "0.123457", steps: 2},
		{name: "uneven", peak: "0.777777", steps: -3},
		{name: "near full scale", peak: "0.999999", steps: -1},
		{name: "quarter", peak: "0.250003", steps: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag := ape.New()
			tag.Set("Artist", "someone")
			tag.SetMinMax(types.MinMax{Min: 140, Max: 160})
			tag.Set(ape.KeyTrackGain, "-3.000000 dB")
			tag.Set(ape.KeyTrackPeak, tt.peak)

			raw := fixture.MP3{Frames: 6}.Bytes()
			original := ape.Splice(raw, ape.Location{Start: len(raw), End: len(raw)}, tag)
			path := writeFile(t, "track.mp3", original)
			ctx := context.Background()

			_, err := tropism.ApplyGain(ctx, path, tropism.Uniform(tt.steps), tropism.DefaultOptions())
			require.NoError(t, err)

			info := inspect(t, path)
			assert.Equal(t, types.MinMax{Min: 140, Max: 160}, *info.MinMax, "a known range is kept")
			require.NotNil(t, info.ReplayGain.TrackGain)
			assert.InDelta(t, -3, *info.ReplayGain.TrackGain, 1e-9, "stored values are left alone")

			_, err = tropism.Undo(ctx, path, tropism.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, original, readFile(t, path))

			// An edit series that nets to zero restores the same bytes.
			_, err = tropism.ApplyGain(ctx, path, tropism.Uniform(tt.steps), tropism.DefaultOptions())
			require.NoError(t, err)

			_, err = tropism.ApplyGain(ctx, path, tropism.Uniform(-tt.steps), tropism.DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, original, readFile(t, path))
		})
	}
}

func TestDeleteTagsKeepsForeignItems(t *testing.T) {
	t.Parallel()

	tag := ape.New()
	tag.Set("Artist", "someone")

	raw := fixture.MP3{Frames: 6, ID3v1: true}.Bytes()
	_, loc, err := ape.Locate(raw)
	require.NoError(t, err)

	original := ape.Splice(raw, loc, tag)
	path := writeFile(t, "track.mp3", original)
	ctx := context.Background()

	// An edit recorded, then reverted by hand: only the tag items differ from the original.
	_, err = tropism.ApplyGain(ctx, path, tropism.Uniform(1), tropism.DefaultOptions())
	require.NoError(t, err)

	_, err = tropism.ApplyGain(ctx, path, tropism.Uniform(-1), tropism.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, original, readFile(t, path))

	_, err = tropism.ApplyGain(ctx, path, tropism.Uniform(1), tropism.DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, tropism.DeleteTags(ctx, path, tropism.DefaultOptions()))

	info := inspect(t, path)
	assert.Nil(t, info.Undo)
	assert.Nil(t, info.MinMax)
	assert.Equal(t, uint8(151), info.Gain.Max)

	got := readFile(t, path)
	kept, _, err := ape.Locate(got)
	require.NoError(t, err)
	require.NotNil(t, kept)

	artist, ok := kept.Get("artist")
	assert.True(t, ok)
	assert.Equal(t, "someone", artist)
	assert.Equal(t, 1, kept.Len())
}

func TestInspect(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "track.mp3", fixture.MP3{Layout: fixture.MPEG2, Frames: 8, Joint: true, ID3v2: true}.Bytes())

	info := inspect(t, path)
	assert.Equal(t, tropism.LosslessGain, info.Capability)
	assert.Equal(t, "mp3", info.Format)
	assert.Equal(t, 8, info.Frames)
	assert.Equal(t, "MPEG-2", info.Version)
	assert.Equal(t, "joint stereo", info.ChannelMode)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 105, info.Headroom)
	assert.InDelta(t, 157.5, info.HeadroomDB, 1e-9)
	assert.InDelta(t, 150, info.Gain.Average, 1e-9)
	assert.Nil(t, info.Undo)
	assert.True(t, info.ReplayGain.IsEmpty())
	assert.Empty(t, info.ForeignReplayGain)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "tone.wav")
	require.NoError(t, fixture.WriteWAV(wavPath, 44100, 2, fixture.Sine(44100, 2, 1000, 0.5, 1)))

	tests := []struct {
		name string
		path string
		want tropism.Capability
	}{
		{name: "mp3", path: writeFile(t, "a.mp3", fixture.MP3{Frames: 4}.Bytes()), want: tropism.LosslessGain},
		{name: "mp3 without extension", path: writeFile(t, "a", fixture.MP3{Frames: 4}.Bytes()), want: tropism.LosslessGain},
		{name: "m4a", path: writeFile(t, "a.m4a", fixture.M4A{}.Bytes()), want: tropism.MetadataOnly},
		{name: "wav", path: wavPath, want: tropism.AnalysisOnly},
	}

	for _, tt := range tests {
		capability, err := tropism.Resolve(tt.path)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, capability, tt.name)

		if tt.want == tropism.LosslessGain {
			continue
		}

		_, err = tropism.ApplyGain(context.Background(), tt.path, tropism.Uniform(1), tropism.DefaultOptions())
		require.ErrorIs(t, err, tropism.ErrNotLosslessCapable, tt.name)

		if tt.want == tropism.AnalysisOnly {
			_, err = tropism.ApplyTrackGain(context.Background(), tt.path, tropism.DefaultOptions())
			require.ErrorIs(t, err, tropism.ErrNotLosslessCapable, tt.name)
		}
	}

	_, err := tropism.Resolve(filepath.Join(dir, "missing.mp3"))
	require.Error(t, err)
}

func TestM4ATags(t *testing.T) {
	t.Parallel()

	original := fixture.M4A{Udta: true}.Bytes()

	seeded, err := mp4.Write(original, types.ReplayGainValues{TrackGain: ptr(-4.5), TrackPeak: ptr(0.8)})
	require.NoError(t, err)

	path := writeFile(t, "track.m4a", seeded)

	info := inspect(t, path)
	assert.Equal(t, tropism.MetadataOnly, info.Capability)
	require.NotNil(t, info.ReplayGain.TrackGain)
	assert.InDelta(t, -4.5, *info.ReplayGain.TrackGain, 1e-9)

	require.NoError(t, tropism.DeleteTags(context.Background(), path, tropism.DefaultOptions()))
	assert.True(t, inspect(t, path).ReplayGain.IsEmpty())
}

func TestDeleteTagsOnAnalysisOnlyFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, fixture.WriteWAV(path, 8000, 1, fixture.Sine(8000, 1, 440, 0.5, 1)))

	err := tropism.DeleteTags(context.Background(), path, tropism.DefaultOptions())
	require.ErrorIs(t, err, tropism.ErrUnsupportedFormat)
}
