//nolint:wrapcheck
package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/output"
)

func undoCommand() *cli.Command {
	return &cli.Command{
		Name:      "undo",
		Usage:     "Revert the gain changes recorded in MP3 files",
		ArgsUsage: "<file | directory>...",
		Flags:     editFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := setup(cmd)
			if err != nil {
				return err
			}

			files, err := inputs(cmd)
			if err != nil {
				return err
			}

			return eachFile(ctx, cmd, files, opts.Workers,
				func(ctx context.Context, path string) (*tropism.UndoResult, error) {
					return tropism.Undo(ctx, path, opts)
				}, output.UndoResultToMap)
		},
	}
}
