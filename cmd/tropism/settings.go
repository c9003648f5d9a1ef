//nolint:wrapcheck
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism"
	"github.com/farcloser/tropism/internal/batch"
	"github.com/farcloser/tropism/internal/config"
)

var (
	errNoInput     = errors.New("expected at least one file or directory")
	errSomeFailed  = errors.New("some files failed")
	errInvalidMode = errors.New("choose one of --gain, --db, --track or --album")
)

// flagKeys maps flags to the configuration keys they override when set explicitly.
//
//nolint:gochecknoglobals // configuration data, effectively const
var flagKeys = map[string]string{
	"policy":           config.KeyPolicy,
	"prevent-clipping": config.KeyPreventClipping,
	"clip-ceiling":     config.KeyClipCeiling,
	"true-peak":        config.KeyTruePeak,
	"target-db":        config.KeyTargetDB,
	"write-mode":       config.KeyWriteMode,
	"preserve-times":   config.KeyPreserveTimes,
	"resync":           config.KeyResync,
	"workers":          config.KeyWorkers,
	"log-level":        config.KeyLogLevel,
	"store-tags":       config.KeyStoreTags,
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (default: " + config.DefaultPath() + ", when present)",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Log level: debug, info, warn, error",
			Value:   "warn",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: console, json, markdown",
			Value:   "console",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of files processed at once (default: number of CPUs)",
		},
		&cli.BoolFlag{
			Name:    "recursive",
			Aliases: []string{"R"},
			Usage:   "Descend into subdirectories of directory arguments",
		},
	}
}

func editFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Out of range gain fields: clamp, wrap, strict",
			Value: "clamp",
		},
		&cli.StringFlag{
			Name:  "write-mode",
			Usage: "How files are replaced: rename (temporary file), in-place",
			Value: "rename",
		},
		&cli.BoolFlag{
			Name:    "preserve-times",
			Aliases: []string{"p"},
			Usage:   "Keep the original modification time",
		},
		&cli.BoolFlag{
			Name:  "resync",
			Usage: "Skip corrupt data between frames instead of failing",
		},
	}
}

func loudnessFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "prevent-clipping",
			Aliases: []string{"k"},
			Usage:   "Lower positive adjustments that would clip",
		},
		&cli.FloatFlag{
			Name:  "clip-ceiling",
			Usage: "Largest peak allowed by --prevent-clipping, 1.0 being full scale",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "true-peak",
			Usage: "Limit --prevent-clipping on the 4x oversampled peak instead of the sample peak",
		},
		&cli.FloatFlag{
			Name:  "target-db",
			Usage: "Target loudness in dB SPL",
			Value: 89,
		},
		&cli.BoolFlag{
			Name:    "store-tags",
			Aliases: []string{"s"},
			Usage:   "Store ReplayGain values in the files' tags",
		},
	}
}

// setup loads the configuration, explicit flags taking precedence, and installs the logger.
func setup(cmd *cli.Command) (tropism.Options, error) {
	overrides := map[string]any{}

	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.Value(flag)
		}
	}

	cfg, err := config.Load(cmd.String("config"), overrides)
	if err != nil {
		return tropism.Options{}, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	return tropism.Options{
		Policy:          cfg.GainPolicy(),
		PreventClipping: cfg.PreventClipping,
		ClipCeiling:     cfg.ClipCeiling,
		TruePeak:        cfg.TruePeak,
		TargetDB:        cfg.TargetDB,
		WriteMode:       cfg.Mode(),
		PreserveTimes:   cfg.PreserveTimes,
		Resync:          cfg.Resync,
		Workers:         cfg.Workers,
		StoreTags:       cfg.StoreTags,
	}, nil
}

// inputs expands the arguments into audio files.
func inputs(cmd *cli.Command) ([]string, error) {
	if cmd.NArg() == 0 {
		return nil, errNoInput
	}

	files, err := batch.Collect(cmd.Args().Slice(), cmd.Bool("recursive"), tropism.IsAudioPath)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, errNoInput
	}

	return files, nil
}

func failures(failed, total int) error {
	if failed == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d of %d", errSomeFailed, failed, total)
}
