package tropism

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/types"
)

// Undo reverts every edit recorded in the file's APEv2 tag, then drops the record. Other items are kept as they are.
func Undo(ctx context.Context, path string, opts Options) (*UndoResult, error) {
	result, err := locked(ctx, path, func(in *input) (*UndoResult, error) {
		return undo(ctx, in, opts)
	})

	return result, fileError(path, err)
}

func undo(ctx context.Context, in *input, opts Options) (*UndoResult, error) {
	st, err := openStream(in, opts.Resync)
	if err != nil {
		return nil, err
	}

	if st.tag == nil {
		return nil, types.ErrNoUndoRecord
	}

	rec, ok, err := st.tag.Undo()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if !ok {
		return nil, types.ErrNoUndoRecord
	}

	policy := PolicyClamp
	if rec.Wrap {
		policy = PolicyWrap
	}

	adj := Adjustment{Left: rec.Left, Right: rec.Right}
	out := bytes.Clone(in.data)

	report, err := gain.Apply(out, st.frames, adj, policy)
	if err != nil {
		return nil, fmt.Errorf("reverting %+d,%+d: %w", rec.Left, rec.Right, err)
	}

	st.tag.ClearUndo()

	if err = commit(ctx, st, out, opts); err != nil {
		return nil, err
	}

	slog.Debug("tropism.Undo", "file path", in.path, "reverted", adj, "frames", report.FramesModified)

	return &UndoResult{Path: in.path, FramesRestored: report.FramesModified, Reverted: adj}, nil
}
