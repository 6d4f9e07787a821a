package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/modelcard"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List available model cards",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "directory containing model cards",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyModelConfig(cmd, LoadConfig())

			dir := resolveModelsDir(modelsPath)
			if dir == "" {
				return cli.Exit(fmt.Sprintf("error: --models-path is required unless %s is set", envModelsDir), 1)
			}

			entries, err := modelcard.Discover(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(entries) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}
			printModels(os.Stdout, dir, entries)
			return nil
		},
	}
}

func printModels(w io.Writer, dir string, entries []modelcard.Entry) {
	_, _ = fmt.Fprintf(w, "Models in %s:\n\n", dir)
	for _, e := range entries {
		card, err := modelcard.Load(e.Path)
		if err != nil {
			_, _ = fmt.Fprintf(w, "  %-32s (invalid: %v)\n", e.Name, err)
			continue
		}
		line := fmt.Sprintf("  %-32s ctx=%-8d", card.Name, card.MaxContextLen)
		if card.Description != "" {
			line += "  " + card.Description
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintf(w, "\n%d model(s) found\n", len(entries))
}
