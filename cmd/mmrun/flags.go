package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/runner"
)

var (
	modelPath  string
	modelsPath string
	seed       int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to a model card (.yaml)",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "directory containing model cards",
			Destination: &modelsPath,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "override the card's sampling seed (-1 = keep card seed)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

// genFlagValues holds the generation flag destinations. Values only take
// effect when the flag is set, so card defaults survive otherwise.
type genFlagValues struct {
	maxNewTokens int64
	seqLen       int64
	temperature  float64
	echo         bool
	numBOS       int64
	numEOS       int64
	ignoreEOS    bool
}

func generationFlags(v *genFlagValues) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-new-tokens",
			Aliases:     []string{"n", "steps"},
			Usage:       "tokens to generate (<=0 = fill the context)",
			Destination: &v.maxNewTokens,
		},
		&cli.Int64Flag{
			Name:        "seq-len",
			Usage:       "cap on the total sequence length",
			Destination: &v.seqLen,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (<=0 = greedy)",
			Destination: &v.temperature,
		},
		&cli.BoolFlag{
			Name:        "echo",
			Usage:       "print the last text input before generating",
			Destination: &v.echo,
		},
		&cli.Int64Flag{
			Name:        "num-bos",
			Usage:       "BOS markers for the first input of a sequence",
			Destination: &v.numBOS,
		},
		&cli.Int64Flag{
			Name:        "num-eos",
			Usage:       "EOS markers for the first input of a sequence",
			Destination: &v.numEOS,
		},
		&cli.BoolFlag{
			Name:        "ignore-eos",
			Usage:       "keep generating past end-of-sequence tokens",
			Destination: &v.ignoreEOS,
		},
	}
}

// options layers the set flags over the config file values.
func (v *genFlagValues) options(cmd *cli.Command, cfg Config) runner.ConfigOptions {
	opts := cfg.generationOptions()
	if cmd.IsSet("max-new-tokens") {
		opts.MaxNewTokens = ptr(int(v.maxNewTokens))
	}
	if cmd.IsSet("seq-len") {
		opts.SeqLen = ptr(int(v.seqLen))
	}
	if cmd.IsSet("temp") {
		opts.Temperature = ptr(v.temperature)
	}
	if cmd.IsSet("echo") {
		opts.Echo = ptr(v.echo)
	}
	if cmd.IsSet("num-bos") {
		opts.NumBOS = ptr(int(v.numBOS))
	}
	if cmd.IsSet("num-eos") {
		opts.NumEOS = ptr(int(v.numEOS))
	}
	if cmd.IsSet("ignore-eos") {
		opts.IgnoreEOS = ptr(v.ignoreEOS)
	}
	return opts
}

func ptr[T any](v T) *T {
	return &v
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, console, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg := LoadConfig()
	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	format := logFormat
	if format == "auto" {
		format = "text"
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "pretty"
		}
	}
	return logger.WithContext(ctx, logger.ForFormat(format, os.Stderr, level)), nil
}
