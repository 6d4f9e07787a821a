package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mmrun/internal/api"
	"github.com/samcharles93/mmrun/internal/inference"
	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/metrics"
	"github.com/samcharles93/mmrun/internal/runner"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rateLimit   float64
		burst       int64
		gen         genFlagValues
	)

	flags := append(commonModelFlags(),
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Float64Flag{
			Name:        "rate-limit",
			Usage:       "generate and prefill requests per second (0 = unlimited)",
			Destination: &rateLimit,
		},
		&cli.Int64Flag{
			Name:        "burst",
			Usage:       "request burst allowed above the rate limit",
			Value:       4,
			Destination: &burst,
		},
	)
	flags = append(flags, generationFlags(&gen)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation API for one model",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyServeConfig(cmd, cfg, &addr, &rateLimit)

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

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			// Server-wide defaults sit between the card and each request.
			session := api.NewSession(res.Runner, api.SessionConfig{
				Model:    res.Card.Name,
				Defaults: runner.MergeOptions(res.Defaults, gen.options(cmd, cfg)),
				Metrics:  metrics.New(reg, res.Card.Name),
				Logger:   log,
			})
			server := api.NewServer(session, api.ServerOptions{
				Gatherer:          reg,
				RequestsPerSecond: rateLimit,
				Burst:             int(burst),
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "model", res.Card.Name)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
