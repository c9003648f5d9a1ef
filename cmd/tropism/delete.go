//nolint:wrapcheck
package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
)

func deleteTagsCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-tags",
		Usage:     "Remove stored ReplayGain values and undo records",
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
				func(ctx context.Context, path string) (bool, error) {
					return true, tropism.DeleteTags(ctx, path, opts)
				}, func(deleted bool) map[string]any {
					return map[string]any{"deleted": deleted}
				})
		},
	}
}
