package api

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/metrics"
	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
)

// Session serializes access to a single Runner. Only Stop and Status may
// run alongside an in-flight call.
type Session struct {
	runner   *runner.Runner
	model    string
	defaults runner.ConfigOptions
	metrics  *metrics.Collector
	log      logger.Logger

	sem *semaphore.Weighted
	// Snapshot taken when the last call released the session.
	busy       atomic.Bool
	lastPos    atomic.Int64
	lastLoaded atomic.Bool
}

type SessionConfig struct {
	Model    string
	Defaults runner.ConfigOptions
	// Metrics may be nil.
	Metrics *metrics.Collector
	Logger  logger.Logger
}

func NewSession(r *runner.Runner, cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	s := &Session{
		runner:   r,
		model:    cfg.Model,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		log:      log,
		sem:      semaphore.NewWeighted(1),
	}
	s.lastPos.Store(r.Pos())
	s.lastLoaded.Store(r.IsLoaded())
	return s
}

// GenerateResult is the outcome of one Generate call.
type GenerateResult struct {
	Text     string
	Position int64
	Stats    runner.Stats
}

func (s *Session) Model() string {
	return s.model
}

func (s *Session) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.busy.Store(true)
	return nil
}

func (s *Session) release() {
	s.lastPos.Store(s.runner.Pos())
	s.lastLoaded.Store(s.runner.IsLoaded())
	if s.metrics != nil {
		s.metrics.SetPosition(s.runner.Pos())
	}
	s.busy.Store(false)
	s.sem.Release(1)
}

// Generate runs one generation. onToken, when non-nil, sees every decoded
// fragment as it is produced.
func (s *Session) Generate(ctx context.Context, inputs []multimodal.Input, opts runner.ConfigOptions, onToken func(string)) (*GenerateResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	cfg := runner.ResolveConfig(opts, s.defaults)
	start := s.runner.Pos()
	var text strings.Builder
	var stats runner.Stats
	err := s.runner.Generate(ctx, inputs, cfg,
		func(piece string) {
			text.WriteString(piece)
			if onToken != nil {
				onToken(piece)
			}
		},
		func(st runner.Stats) {
			stats = st
			if s.metrics != nil {
				s.metrics.Observe(st, start)
			}
		},
	)
	if err != nil {
		s.observeError(err)
		return nil, err
	}
	return &GenerateResult{
		Text:     text.String(),
		Position: s.runner.Pos(),
		Stats:    stats,
	}, nil
}

// Prefill runs inputs through the model and keeps the predicted token for
// the next Generate call without inputs.
func (s *Session) Prefill(ctx context.Context, inputs []multimodal.Input, numBOS, numEOS int) (int, int64, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, 0, err
	}
	defer s.release()

	start := s.runner.Pos()
	tok, err := s.runner.Prefill(ctx, inputs, numBOS, numEOS)
	if err != nil {
		s.observeError(err)
		return 0, 0, err
	}
	pos := s.runner.Pos()
	if s.metrics != nil {
		s.metrics.ObservePrefill(pos - start)
	}
	return tok, pos, nil
}

func (s *Session) Reset(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.runner.Reset()
	s.log.Info("session reset")
	return nil
}

// Stop interrupts an in-flight generation. It never waits for the session.
func (s *Session) Stop() {
	s.runner.Stop()
}

// Status reports the session state. While a call is in flight the position
// and load state are the ones recorded when the previous call finished.
func (s *Session) Status() StatusResponse {
	st := StatusResponse{
		Model:         s.model,
		MaxContextLen: s.runner.MaxContextLen(),
	}
	if !s.sem.TryAcquire(1) {
		st.Busy = true
		st.Loaded = s.lastLoaded.Load()
		st.Position = s.lastPos.Load()
		return st
	}
	defer s.sem.Release(1)

	st.Loaded = s.runner.IsLoaded()
	st.Position = s.runner.Pos()
	st.PendingToken = s.runner.HasPendingToken()
	return st
}

func (s *Session) observeError(err error) {
	s.log.Warn("session call failed", "error", err)
	if s.metrics != nil {
		s.metrics.ObserveError(err)
	}
}
