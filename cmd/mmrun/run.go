package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mmrun/internal/inference"
	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
)

func runCmd() *cli.Command {
	var (
		prompt      string
		inputSpecs  []string
		interactive bool
		streamMode  string
		rawOutput   bool
		cpuProfile  string
		gen         genFlagValues
	)

	flags := append(commonModelFlags(),
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "text prompt, appended after any --input",
			Destination: &prompt,
		},
		&cli.StringSliceFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "input in order: text:<s>, tokens:<ids>, image:<path>, audio:<path>@<b>x<bins>x<frames>",
			Destination: &inputSpecs,
		},
		&cli.BoolFlag{
			Name:        "interactive",
			Usage:       "keep reading prompts from stdin after the first generation",
			Destination: &interactive,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (instant, smooth, typewriter, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "escape control characters in generated text",
			Destination: &rawOutput,
		},
		&cli.StringFlag{
			Name:        "cpuprofile",
			Usage:       "write cpu profile to file",
			Destination: &cpuProfile,
		},
	)
	flags = append(flags, generationFlags(&gen)...)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate from text, token, image and audio inputs",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyModelConfig(c, cfg)
			if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
				streamMode = cfg.StreamMode
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("could not create CPU profile: %v", err), 1)
				}
				defer func() { _ = f.Close() }()
				if err := pprof.StartCPUProfile(f); err != nil {
					return cli.Exit(fmt.Sprintf("could not start CPU profile: %v", err), 1)
				}
				defer pprof.StopCPUProfile()
			}

			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			inputs, err := parseInputs(inputSpecs)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if prompt != "" {
				inputs = append(inputs, multimodal.Text(prompt))
			}

			cardPath, err := resolveCardPath(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}

			out := NewStreamWriter(os.Stdout, mode, rawOutput)
			defer func() { _ = out.Close() }()

			res, err := inference.Loader{
				Logger: log,
				Output: out,
				Report: os.Stderr,
				Seed:   seedOverride(),
			}.LoadPath(cardPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = res.Runner.Close() }()

			if err := res.Runner.Load(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			st := res.Runner.Stats()
			log.Info("model loaded",
				"model", res.Card.Name,
				"max_context_len", res.Runner.MaxContextLen(),
				"load_ms", st.ModelLoadEndMS-st.ModelLoadStartMS)

			stopOnInterrupt(ctx, res.Runner, log)
			genCfg := runner.ResolveConfig(gen.options(c, cfg), res.Defaults)

			if len(inputs) > 0 {
				err := res.Runner.Generate(ctx, inputs, genCfg, nil, nil)
				out.Flush()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: generate: %v", err), 1)
				}
				if !interactive {
					return nil
				}
			}

			return interactiveLoop(ctx, res.Runner, genCfg, out, os.Stdin, os.Stderr)
		},
	}
}

// stopOnInterrupt turns Ctrl-C into Runner.Stop so the current generation
// ends after its next token instead of killing the process.
func stopOnInterrupt(ctx context.Context, r *runner.Runner, log logger.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				log.Info("interrupt received, stopping generation")
				r.Stop()
			}
		}
	}()
}

// interactiveLoop reads one prompt per line and continues the same
// sequence across turns. /reset starts a new sequence, /stats prints the
// stats of the last turn and /exit quits.
func interactiveLoop(ctx context.Context, r *runner.Runner, cfg runner.GenerationConfig, out *StreamWriter, stdin io.Reader, stderr io.Writer) error {
	_, _ = fmt.Fprintln(stderr, "Interactive mode. Type /exit to quit, /reset to start over.")
	scanner := bufio.NewScanner(stdin)
	for {
		_, _ = fmt.Fprint(stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit":
			return nil
		case "/reset":
			r.Reset()
			_, _ = fmt.Fprintln(stderr, "sequence reset")
			continue
		case "/stats":
			if js, err := r.Stats().JSON(); err == nil {
				_, _ = fmt.Fprintln(stderr, js)
			}
			continue
		}

		err := r.GenerateText(ctx, line, cfg, nil, nil)
		out.Flush()
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "error: generation:", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
