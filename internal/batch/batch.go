// Package batch runs per-file work over many inputs with bounded concurrency.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
)

var ErrNotFound = errors.New("no such file or directory")

// Result is the outcome of one input.
type Result[T any] struct {
	Path  string
	Value T
	Err   error
}

// Run calls work for every path, at most workers at a time. Results are in input order. An input that has not
// started when ctx is done fails with the context error; started work is left to finish.
func Run[T any](
	ctx context.Context,
	paths []string,
	workers int,
	work func(ctx context.Context, path string) (T, error),
) []Result[T] {
	results := make([]Result[T], len(paths))

	var progress atomic.Int64

	sem := make(chan struct{}, max(workers, 1))

	var waitGroup sync.WaitGroup

	for idx, path := range paths {
		waitGroup.Add(1)

		go func(idx int, path string) {
			defer waitGroup.Done()

			results[idx].Path = path

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx].Err = ctx.Err()

				return
			}

			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[idx].Err = err

				return
			}

			results[idx].Value, results[idx].Err = work(ctx, path)

			done := progress.Add(1)
			slog.Info("processed", "file path", path, "done", done, "total", len(paths), "error", results[idx].Err)
		}(idx, path)
	}

	waitGroup.Wait()

	return results
}

// Collect expands arguments into files. Directories contribute the files keep accepts, sorted, descending into
// subdirectories only when recursive. Files named explicitly are always kept.
func Collect(args []string, recursive bool, keep func(path string) bool) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}

		if !info.IsDir() {
			files = append(files, arg)

			continue
		}

		var found []string

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if path != arg && !recursive {
					return filepath.SkipDir
				}

				return nil
			}

			if keep(path) {
				found = append(found, path)
			}

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", arg, err)
		}

		slices.Sort(found)
		files = append(files, found...)
	}

	return files, nil
}
