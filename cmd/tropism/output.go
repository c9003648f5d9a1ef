//nolint:wrapcheck
package main

import (
	"context"
	"os"

	"github.com/farcloser/primordium/format"
	"github.com/urfave/cli/v3"

	"github.com/farcloser/tropism/internal/batch"
)

func printAll(cmd *cli.Command, data []*format.Data) error {
	formatter, err := format.GetFormatter(cmd.String("format"))
	if err != nil {
		return err
	}

	return formatter.PrintAll(data, os.Stdout)
}

// eachFile runs work over files with the configured concurrency, then prints one entry per file in input order.
func eachFile[T any](
	ctx context.Context,
	cmd *cli.Command,
	files []string,
	workers int,
	work func(ctx context.Context, path string) (T, error),
	render func(T) map[string]any,
) error {
	results := batch.Run(ctx, files, workers, work)
	data := make([]*format.Data, 0, len(results))
	failed := 0

	for _, res := range results {
		var meta map[string]any

		if res.Err != nil {
			failed++
			meta = map[string]any{"error": res.Err.Error()}
		} else {
			meta = render(res.Value)
		}

		data = append(data, &format.Data{Object: res.Path, Meta: meta})
	}

	if err := printAll(cmd, data); err != nil {
		return err
	}

	return failures(failed, len(results))
}
