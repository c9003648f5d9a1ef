package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism/version"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    version.Name(),
		Usage:   "Lossless MP3 gain adjustment and ReplayGain analysis",
		Version: version.Version() + " " + version.Commit(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			applyCommand(),
			analyzeCommand(),
			undoCommand(),
			infoCommand(),
			deleteTagsCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}
