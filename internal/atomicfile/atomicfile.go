// Package atomicfile replaces file contents so that readers see either the old or the new version.
package atomicfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/farcloser/tropism/internal/types"
)

const (
	lockRetryDelay  = 50 * time.Millisecond
	renameRetries   = 4
	renameFirstWait = 20 * time.Millisecond
	tempPattern     = ".tropism-*"
)

var (
	ErrInvalidMode = errors.New("invalid write mode")
	ErrLockTimeout = errors.New("could not acquire file lock")
)

// Mode selects how new contents reach the disk.
type Mode int

const (
	// Rename writes a sibling temporary file and renames it over the target.
	Rename Mode = iota
	// InPlace overwrites the target, restoring the previous bytes on failure.
	InPlace
)

func (m Mode) String() string {
	if m == InPlace {
		return "in-place"
	}

	return "rename"
}

// ParseMode reads "rename" or "in-place".
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(value) {
	case "", "rename":
		return Rename, nil
	case "in-place", "inplace":
		return InPlace, nil
	}

	return Rename, fmt.Errorf("%w: %q", ErrInvalidMode, value)
}

// Options tune Commit.
type Options struct {
	Mode Mode
	// PreserveTimes restores the modification time the file had before the write.
	PreserveTimes bool
}

// Lock is an exclusive advisory lock held on behalf of a file.
type Lock struct {
	lock *flock.Flock
}

// Acquire blocks until the lock for path is held or ctx is done. Locks live in the temp dir, so that read-only
// media directories can still be processed.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrTagWriteFailure, err)
	}

	sum := sha256.Sum256([]byte(abs))
	lock := flock.New(filepath.Join(os.TempDir(), "tropism-"+hex.EncodeToString(sum[:8])+".lock"))

	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, path, err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
	}

	return &Lock{lock: lock}, nil
}

// Release gives the lock up.
func (l *Lock) Release() error {
	return l.lock.Unlock() //nolint:wrapcheck
}

// Commit replaces the contents of path with data. It is not interruptible: ctx only carries values.
func Commit(ctx context.Context, path string, data []byte, opts Options) error {
	ctx = context.WithoutCancel(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrTagWriteFailure, err)
	}

	switch opts.Mode {
	case InPlace:
		err = overwrite(path, data)
	case Rename:
		err = replace(ctx, path, data, info.Mode().Perm())
	}

	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrTagWriteFailure, err)
	}

	if opts.PreserveTimes {
		if err = os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
			return fmt.Errorf("%w: %w", types.ErrTagWriteFailure, err)
		}
	}

	slog.Debug("atomicfile.Commit", "file path", path, "mode", opts.Mode, "size", len(data))

	return nil
}

func replace(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	temp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+tempPattern)
	if err != nil {
		return err //nolint:wrapcheck
	}

	tempPath := temp.Name()

	err = writeSync(temp, data)
	if err == nil {
		err = os.Chmod(tempPath, perm)
	}

	if err == nil {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(
				backoff.NewExponentialBackOff(backoff.WithInitialInterval(renameFirstWait)),
				renameRetries,
			),
			ctx,
		)

		err = backoff.Retry(func() error {
			return os.Rename(tempPath, path)
		}, policy)
	}

	if err != nil {
		_ = os.Remove(tempPath)

		return err //nolint:wrapcheck
	}

	return nil
}

func writeSync(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		_ = file.Close()

		return err //nolint:wrapcheck
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return err //nolint:wrapcheck
	}

	return file.Close() //nolint:wrapcheck
}

func overwrite(path string, data []byte) error {
	previous, err := os.ReadFile(path)
	if err != nil {
		return err //nolint:wrapcheck
	}

	err = rewrite(path, data)
	if err == nil {
		return nil
	}

	if rollback := rewrite(path, previous); rollback != nil {
		slog.Error("atomicfile.Commit", "file path", path, "stage", "rollback", "error", rollback)

		return errors.Join(err, rollback)
	}

	return err
}

func rewrite(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return writeSync(file, data)
}
