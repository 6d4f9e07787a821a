package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

type ServerOptions struct {
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// RequestsPerSecond limits generate and prefill calls. Zero or below
	// disables the limit.
	RequestsPerSecond float64
	Burst             int
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Server struct {
	session  *Session
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	clock    func() time.Time
}

func NewServer(session *Session, opts ServerOptions) *Server {
	s := &Server{
		session:  session,
		gatherer: opts.Gatherer,
		clock:    opts.Clock,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if opts.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(opts.Burst, 1))
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate, s.rateLimit)
	e.POST("/v1/prefill", s.handlePrefill, s.rateLimit)
	e.POST("/v1/reset", s.handleReset)
	e.POST("/v1/stop", s.handleStop)
	e.GET("/v1/status", s.handleStatus)
	if s.gatherer != nil {
		h := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		e.GET("/metrics", func(c *echo.Context) error {
			h.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests", "")
		}
		return next(c)
	}
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	inputs, err := toInputs(req.Prompt, req.Inputs)
	if err != nil {
		return writeSessionError(c, err)
	}

	resp := GenerateResponse{
		ID:        newGenerationID(),
		Object:    "generation",
		CreatedAt: s.clock().Unix(),
		Model:     s.session.Model(),
	}
	if req.Stream {
		return s.streamGenerate(c, req, inputs, resp)
	}

	result, err := s.session.Generate(c.Request().Context(), inputs, req.ConfigOptions, nil)
	if err != nil {
		return writeSessionError(c, err)
	}
	fillResult(&resp, result)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) streamGenerate(c *echo.Context, req GenerateRequest, inputs []multimodal.Input, resp GenerateResponse) error {
	stream, err := NewSSEStreamWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := stream.Begin(resp); err != nil {
		return err
	}

	var writeErr error
	result, err := s.session.Generate(c.Request().Context(), inputs, req.ConfigOptions, func(piece string) {
		if writeErr != nil {
			return
		}
		if writeErr = stream.EmitToken(piece); writeErr != nil {
			s.session.Stop()
		}
	})
	if err != nil {
		return stream.Failed(resp, err)
	}
	if writeErr != nil {
		return writeErr
	}
	fillResult(&resp, result)
	return stream.Complete(resp)
}

func fillResult(resp *GenerateResponse, result *GenerateResult) {
	resp.Status = "completed"
	resp.Text = result.Text
	resp.Position = result.Position
	resp.Usage = &Usage{
		PromptTokens:    result.Stats.NumPromptTokens,
		GeneratedTokens: result.Stats.NumGeneratedTokens,
	}
	stats := result.Stats
	resp.Stats = &stats
}

func (s *Server) handlePrefill(c *echo.Context) error {
	req, err := decodeJSON[PrefillRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	inputs, err := toInputs(req.Prompt, req.Inputs)
	if err != nil {
		return writeSessionError(c, err)
	}
	tok, pos, err := s.session.Prefill(c.Request().Context(), inputs, req.NumBOS, req.NumEOS)
	if err != nil {
		return writeSessionError(c, err)
	}
	return c.JSON(http.StatusOK, PrefillResponse{
		ID:       newPrefillID(),
		Object:   "prefill",
		Model:    s.session.Model(),
		Token:    tok,
		Position: pos,
	})
}

func (s *Server) handleReset(c *echo.Context) error {
	if err := s.session.Reset(c.Request().Context()); err != nil {
		return writeSessionError(c, err)
	}
	return c.JSON(http.StatusOK, s.session.Status())
}

func (s *Server) handleStop(c *echo.Context) error {
	s.session.Stop()
	return c.JSON(http.StatusOK, map[string]any{"stopped": true})
}

func (s *Server) handleStatus(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Status())
}
