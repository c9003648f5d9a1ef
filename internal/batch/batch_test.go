package batch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/farcloser/tropism/internal/batch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errOdd = errors.New("odd")

func TestRunKeepsOrderAndIsolatesErrors(t *testing.T) {
	t.Parallel()

	paths := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	results := batch.Run(t.Context(), paths, 2, func(_ context.Context, path string) (int, error) {
		// Later inputs finish first.
		time.Sleep(time.Duration(10-2*len(path)) * time.Millisecond)

		if len(path)%2 == 1 {
			return 0, errOdd
		}

		return len(path), nil
	})

	require.Len(t, results, len(paths))

	for i, result := range results {
		assert.Equal(t, paths[i], result.Path)

		if len(paths[i])%2 == 1 {
			require.ErrorIs(t, result.Err, errOdd)
		} else {
			require.NoError(t, result.Err)
			assert.Equal(t, len(paths[i]), result.Value)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64

	paths := make([]string, 20)
	for i := range paths {
		paths[i] = strings.Repeat("x", i+1)
	}

	batch.Run(t.Context(), paths, 3, func(context.Context, string) (struct{}, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}

		time.Sleep(2 * time.Millisecond)

		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Positive(t, peak.Load())
}

func TestRunStopsStartingOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var started atomic.Int64

	paths := make([]string, 10)
	for i := range paths {
		paths[i] = filepath.Join("dir", strings.Repeat("y", i+1))
	}

	results := batch.Run(ctx, paths, 1, func(context.Context, string) (bool, error) {
		started.Add(1)
		cancel()

		return true, nil
	})

	assert.Equal(t, int64(1), started.Load())

	canceled := 0

	for _, result := range results {
		if result.Err != nil {
			require.ErrorIs(t, result.Err, context.Canceled)

			canceled++
		}
	}

	assert.Equal(t, len(paths)-1, canceled)
}

func TestCollect(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	for _, name := range []string{"b.mp3", "a.mp3", "cover.jpg", filepath.Join("disc2", "c.mp3")} {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}

	isMP3 := func(path string) bool { return filepath.Ext(path) == ".mp3" }

	flat, err := batch.Collect([]string{root}, false, isMP3)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.mp3"), filepath.Join(root, "b.mp3")}, flat)

	deep, err := batch.Collect([]string{root}, true, isMP3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.mp3"), filepath.Join(root, "b.mp3"), filepath.Join(root, "disc2", "c.mp3"),
	}, deep)

	explicit, err := batch.Collect([]string{filepath.Join(root, "cover.jpg")}, false, isMP3)
	require.NoError(t, err)
	assert.Len(t, explicit, 1)

	_, err = batch.Collect([]string{filepath.Join(root, "missing")}, false, isMP3)
	require.ErrorIs(t, err, batch.ErrNotFound)
}
