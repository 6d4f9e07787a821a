// Package metrics exports generation stats as Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/samcharles93/mmrun/internal/runner"
)

// Collector holds the collectors for one model.
type Collector struct {
	promptTokens     prometheus.Counter
	generatedTokens  prometheus.Counter
	generations      prometheus.Counter
	errors           *prometheus.CounterVec
	timeToFirstToken prometheus.Histogram
	decodeRate       prometheus.Histogram
	samplingSeconds  prometheus.Counter
	position         prometheus.Gauge
	loadSeconds      prometheus.Gauge
	memoryPeakMB     prometheus.Gauge
}

// New registers the collectors on reg with a constant model label.
func New(reg prometheus.Registerer, model string) *Collector {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"model": model}, reg))
	return &Collector{
		promptTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "mmrun_prompt_tokens_total",
			Help: "Sequence positions consumed by prompt evaluation",
		}),
		generatedTokens: f.NewCounter(prometheus.CounterOpts{
			Name: "mmrun_generated_tokens_total",
			Help: "Tokens produced by the decode loop",
		}),
		generations: f.NewCounter(prometheus.CounterOpts{
			Name: "mmrun_generations_total",
			Help: "Completed generate calls",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mmrun_generation_errors_total",
			Help: "Failed generate and prefill calls by kind",
		}, []string{"kind"}),
		timeToFirstToken: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmrun_time_to_first_token_seconds",
			Help:    "Time from inference start to the first token",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		decodeRate: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mmrun_decode_tokens_per_second",
			Help:    "Decode throughput per generate call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		samplingSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "mmrun_sampling_seconds_total",
			Help: "Time spent in the sampler",
		}),
		position: f.NewGauge(prometheus.GaugeOpts{
			Name: "mmrun_position",
			Help: "Committed sequence positions",
		}),
		loadSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "mmrun_model_load_seconds",
			Help: "Duration of the last model load",
		}),
		memoryPeakMB: f.NewGauge(prometheus.GaugeOpts{
			Name: "mmrun_memory_peak_usage_megabytes",
			Help: "Peak device memory usage seen by the memory tracker",
		}),
	}
}

// Observe records the stats of one finished generate call that started at
// cursor startPos. NumPromptTokens is the cursor after prompt evaluation,
// so only the positions past startPos are counted.
func (c *Collector) Observe(s runner.Stats, startPos int64) {
	c.generations.Inc()
	c.ObservePrefill(s.NumPromptTokens - startPos)
	c.generatedTokens.Add(float64(s.NumGeneratedTokens))
	c.samplingSeconds.Add(float64(s.AggregateSamplingTimeMS) / 1000)

	if s.FirstTokenMS >= s.InferenceStartMS && s.InferenceStartMS > 0 {
		c.timeToFirstToken.Observe(float64(s.FirstTokenMS-s.InferenceStartMS) / 1000)
	}
	if ms := s.InferenceEndMS - s.PromptEvalEndMS; ms > 0 {
		c.decodeRate.Observe(float64(s.NumGeneratedTokens) / (float64(ms) / 1000))
	}
	if ms := s.ModelLoadEndMS - s.ModelLoadStartMS; ms >= 0 && s.ModelLoadEndMS > 0 {
		c.loadSeconds.Set(float64(ms) / 1000)
	}
	if s.GPU != nil {
		c.memoryPeakMB.Set(s.GPU.PeakUsageMB)
	}
}

// ObservePrefill counts positions consumed by a prefill.
func (c *Collector) ObservePrefill(positions int64) {
	if positions > 0 {
		c.promptTokens.Add(float64(positions))
	}
}

// SetPosition publishes the runner's cursor.
func (c *Collector) SetPosition(pos int64) {
	c.position.Set(float64(pos))
}

// ObserveError counts a failed call under the runner error kind.
func (c *Collector) ObserveError(err error) {
	if err == nil {
		return
	}
	c.errors.WithLabelValues(ErrorKind(err)).Inc()
}

// ErrorKind names the runner failure class of err.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, runner.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, runner.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, runner.ErrLoadFailure):
		return "load_failure"
	default:
		return "propagated"
	}
}
