//nolint:wrapcheck
package main

import (
	"context"
	"slices"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/output"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Measure ReplayGain loudness and suggest adjustments",
		ArgsUsage: "<file | directory>...",
		Flags: slices.Concat([]cli.Flag{
			&cli.BoolFlag{
				Name:    "album",
				Aliases: []string{"a"},
				Usage:   "Also measure the files as one album",
			},
			&cli.BoolFlag{
				Name:  "continue",
				Usage: "Measure the album without the files that failed",
			},
			&cli.BoolFlag{
				Name:  "resync",
				Usage: "Skip corrupt data between frames instead of failing",
			},
			&cli.StringFlag{
				Name:  "write-mode",
				Usage: "How files are replaced when storing tags: rename (temporary file), in-place",
				Value: "rename",
			},
		}, loudnessFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := setup(cmd)
			if err != nil {
				return err
			}

			files, err := inputs(cmd)
			if err != nil {
				return err
			}

			opts.Album = cmd.Bool("album")
			opts.ContinueOnError = cmd.Bool("continue")

			result, err := tropism.Analyze(ctx, files, opts)
			if result == nil {
				return err
			}

			data := make([]*format.Data, 0, len(result.Files)+1)
			for _, track := range result.Files {
				data = append(data, &format.Data{Object: track.Path, Meta: output.TrackToMap(track)})
			}

			if result.Album != nil {
				data = append(data, &format.Data{Object: "album", Meta: output.AlbumToMap(result)})
			}

			if printErr := printAll(cmd, data); printErr != nil {
				return printErr
			}

			return err
		},
	}
}
