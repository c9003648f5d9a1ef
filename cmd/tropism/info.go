//nolint:wrapcheck
package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/output"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show gain fields, undo records and stored ReplayGain values",
		ArgsUsage: "<file | directory>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := setup(cmd)
			if err != nil {
				return err
			}

			files, err := inputs(cmd)
			if err != nil {
				return err
			}

			return eachFile(ctx, cmd, files, opts.Workers, tropism.Inspect, output.InfoToMap)
		},
	}
}
