package atomicfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tropism/internal/atomicfile"
	"github.com/farcloser/tropism/internal/types"
)

func seed(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	old := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, old, old))

	return path
}

func entries(t *testing.T, path string) []string {
	t.Helper()

	list, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)

	names := make([]string, 0, len(list))
	for _, entry := range list {
		names = append(names, entry.Name())
	}

	return names
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for value, want := range map[string]atomicfile.Mode{
		"": atomicfile.Rename, "rename": atomicfile.Rename, "In-Place": atomicfile.InPlace, "inplace": atomicfile.InPlace,
	} {
		mode, err := atomicfile.ParseMode(value)
		require.NoError(t, err)
		assert.Equal(t, want, mode)
	}

	_, err := atomicfile.ParseMode("copy")
	require.ErrorIs(t, err, atomicfile.ErrInvalidMode)
	assert.Equal(t, "in-place", atomicfile.InPlace.String())
}

func TestCommit(t *testing.T) {
	t.Parallel()

	for _, mode := range []atomicfile.Mode{atomicfile.Rename, atomicfile.InPlace} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			path := seed(t, "old content")

			require.NoError(t, atomicfile.Commit(t.Context(), path, []byte("new"), atomicfile.Options{Mode: mode}))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "new", string(data))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
			assert.NotEqual(t, 2001, info.ModTime().Year())

			assert.Equal(t, []string{"track.mp3"}, entries(t, path))
		})
	}
}

func TestPreserveTimes(t *testing.T) {
	t.Parallel()

	path := seed(t, "old")

	require.NoError(t, atomicfile.Commit(t.Context(), path, []byte("new"), atomicfile.Options{PreserveTimes: true}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, 2001, info.ModTime().Year())
}

func TestCommitIgnoresCancellation(t *testing.T) {
	t.Parallel()

	path := seed(t, "old")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.NoError(t, atomicfile.Commit(ctx, path, []byte("new"), atomicfile.Options{}))
}

func TestFailedRenameLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	// A non-empty directory cannot be replaced by a file.
	dir := filepath.Join(t.TempDir(), "album")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "disc1"), 0o755))

	err := atomicfile.Commit(t.Context(), dir, []byte("new"), atomicfile.Options{})
	require.ErrorIs(t, err, types.ErrTagWriteFailure)

	assert.Equal(t, []string{"album"}, entries(t, dir))
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	err := atomicfile.Commit(t.Context(), filepath.Join(t.TempDir(), "gone.mp3"), nil, atomicfile.Options{})
	require.ErrorIs(t, err, types.ErrTagWriteFailure)
}

func TestLockIsExclusive(t *testing.T) {
	t.Parallel()

	path := seed(t, "x")

	held, err := atomicfile.Acquire(t.Context(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	_, err = atomicfile.Acquire(ctx, path)
	require.ErrorIs(t, err, atomicfile.ErrLockTimeout)

	require.NoError(t, held.Release())

	again, err := atomicfile.Acquire(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
