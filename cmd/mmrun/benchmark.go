package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mmrun/internal/inference"
	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/runner"
)

type benchResult struct {
	PromptTokens int64
	GenTokens    int64
	PromptTPS    float64
	GenTPS       float64
	TTFTMS       int64
	TotalMS      int64
}

func benchResultFrom(s runner.Stats) benchResult {
	r := benchResult{
		PromptTokens: s.NumPromptTokens,
		GenTokens:    s.NumGeneratedTokens,
		TTFTMS:       s.FirstTokenMS - s.InferenceStartMS,
		TotalMS:      s.InferenceEndMS - s.InferenceStartMS,
	}
	if ms := s.PromptEvalEndMS - s.InferenceStartMS; ms > 0 {
		r.PromptTPS = float64(s.NumPromptTokens) / (float64(ms) / 1000)
	}
	if ms := s.InferenceEndMS - s.PromptEvalEndMS; ms > 0 {
		r.GenTPS = float64(s.NumGeneratedTokens) / (float64(ms) / 1000)
	}
	return r
}

func benchmarkCmd() *cli.Command {
	var (
		warmupRuns int64
		benchRuns  int64
		prompt     string
		gen        genFlagValues
	)

	flags := append(commonModelFlags(),
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       3,
			Destination: &benchRuns,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text for benchmarking",
			Value:       "Explain the theory of relativity in simple terms.",
			Destination: &prompt,
		},
	)
	flags = append(flags, generationFlags(&gen)...)

	return &cli.Command{
		Name:  "benchmark",
		Usage: "Run warmup and timed generations and report throughput",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)

			cardPath, err := resolveCardPath(modelPath, modelsPath, os.Stdin, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			res, err := inference.Loader{
				Logger: log,
				Output: io.Discard,
				Report: io.Discard,
				Seed:   seedOverride(),
			}.LoadPath(cardPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model: %v", err), 1)
			}
			defer func() { _ = res.Runner.Close() }()
			if err := res.Runner.Load(); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			opts := gen.options(cmd, cfg)
			if opts.MaxNewTokens == nil {
				opts.MaxNewTokens = ptr(128)
			}
			opts.Echo = ptr(false)
			genCfg := runner.ResolveConfig(opts, res.Defaults)

			loaded := res.Runner.Stats()
			fmt.Println("=== mmrun Benchmark ===")
			fmt.Printf("Model:      %s (%s)\n", res.Card.Name, cardPath)
			fmt.Printf("Context:    %d\n", res.Runner.MaxContextLen())
			fmt.Printf("CPUs:       %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Printf("Load:       %d ms\n", loaded.ModelLoadEndMS-loaded.ModelLoadStartMS)
			fmt.Printf("Max tokens: %d\n", genCfg.MaxNewTokens)
			fmt.Printf("Warmup:     %d runs\n", warmupRuns)
			fmt.Printf("Runs:       %d\n", benchRuns)
			fmt.Println()

			results, err := runBenchmark(ctx, res.Runner, prompt, genCfg, int(warmupRuns), int(benchRuns), log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			printBenchResults(os.Stdout, results)

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}

// runBenchmark runs warmup generations with Warming set, then the timed
// runs. The sequence is reset before every run so each starts at position
// zero.
func runBenchmark(ctx context.Context, r *runner.Runner, prompt string, cfg runner.GenerationConfig, warmup, runs int, log logger.Logger) ([]benchResult, error) {
	warm := cfg
	warm.Warming = true
	for i := range warmup {
		log.Info("warmup run", "run", i+1)
		r.Reset()
		if err := r.GenerateText(ctx, prompt, warm, nil, nil); err != nil {
			return nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	results := make([]benchResult, 0, runs)
	for i := range runs {
		log.Info("benchmark run", "run", i+1)
		r.Reset()
		var stats runner.Stats
		if err := r.GenerateText(ctx, prompt, cfg, nil, func(s runner.Stats) { stats = s }); err != nil {
			return nil, fmt.Errorf("benchmark run %d: %w", i+1, err)
		}
		results = append(results, benchResultFrom(stats))
	}
	return results, nil
}

func printBenchResults(w io.Writer, results []benchResult) {
	_, _ = fmt.Fprintln(w, "=== Results ===")
	_, _ = fmt.Fprintf(w, "%-6s %10s %10s %10s %10s %8s\n", "Run", "Prompt", "Gen", "TTFT", "Total", "Tokens")
	_, _ = fmt.Fprintf(w, "%-6s %10s %10s %10s %10s %8s\n", "---", "tps", "tps", "ms", "ms", "")

	if len(results) == 0 {
		return
	}
	var sumPrompt, sumGen float64
	for i, r := range results {
		_, _ = fmt.Fprintf(w, "%-6d %10.2f %10.2f %10d %10d %8d\n",
			i+1, r.PromptTPS, r.GenTPS, r.TTFTMS, r.TotalMS, r.GenTokens)
		sumPrompt += r.PromptTPS
		sumGen += r.GenTPS
	}
	n := float64(len(results))
	_, _ = fmt.Fprintf(w, "\n%-6s %10.2f %10.2f\n", "Avg", sumPrompt/n, sumGen/n)
}
