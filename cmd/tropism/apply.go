//nolint:wrapcheck
package main

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/gain"
	"github.com/farcloser/tropism/internal/output"
)

var errInvalidChannel = errors.New("channel must be left or right")

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:      "apply",
		Usage:     "Change the gain of MP3 files without re-encoding, recording how to undo it",
		ArgsUsage: "<file | directory>...",
		Flags: slices.Concat([]cli.Flag{
			&cli.IntFlag{
				Name:    "gain",
				Aliases: []string{"g"},
				Usage:   "Adjustment in 1.5 dB steps",
			},
			&cli.FloatFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Adjustment in dB, rounded to the nearest step",
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Only adjust this channel: left, right",
			},
			&cli.BoolFlag{
				Name:    "track",
				Aliases: []string{"r"},
				Usage:   "Bring each file to the target loudness",
			},
			&cli.BoolFlag{
				Name:    "album",
				Aliases: []string{"a"},
				Usage:   "Bring the files, as one album, to the target loudness",
			},
		}, editFlags(), loudnessFlags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := setup(cmd)
			if err != nil {
				return err
			}

			files, err := inputs(cmd)
			if err != nil {
				return err
			}

			modes := 0
			for _, name := range []string{"gain", "db", "track", "album"} {
				if cmd.IsSet(name) {
					modes++
				}
			}

			if modes != 1 {
				return errInvalidMode
			}

			switch {
			case cmd.Bool("album"):
				return applyAlbum(ctx, cmd, files, opts)
			case cmd.Bool("track"):
				return eachFile(ctx, cmd, files, opts.Workers,
					func(ctx context.Context, path string) (*tropism.ApplyResult, error) {
						return tropism.ApplyTrackGain(ctx, path, opts)
					}, output.ApplyToMap)
			}

			steps := cmd.Int("gain")
			if cmd.IsSet("db") {
				steps = gain.FromDB(cmd.Float("db"))
			}

			adj, err := channelAdjustment(steps, cmd.String("channel"))
			if err != nil {
				return err
			}

			return eachFile(ctx, cmd, files, opts.Workers,
				func(ctx context.Context, path string) (*tropism.ApplyResult, error) {
					return tropism.ApplyGain(ctx, path, adj, opts)
				}, output.ApplyToMap)
		},
	}
}

func channelAdjustment(steps int, channel string) (tropism.Adjustment, error) {
	switch channel {
	case "":
		return tropism.Uniform(steps), nil
	case "left":
		return tropism.Adjustment{Left: steps}, nil
	case "right":
		return tropism.Adjustment{Right: steps}, nil
	default:
		return tropism.Adjustment{}, fmt.Errorf("%w: %q", errInvalidChannel, channel)
	}
}

func applyAlbum(ctx context.Context, cmd *cli.Command, files []string, opts tropism.Options) error {
	results, err := tropism.ApplyAlbumGain(ctx, files, opts)

	data := make([]*format.Data, 0, len(results))
	for _, result := range results {
		data = append(data, &format.Data{Object: result.Path, Meta: output.ApplyToMap(result)})
	}

	if printErr := printAll(cmd, data); printErr != nil {
		return printErr
	}

	return err
}
