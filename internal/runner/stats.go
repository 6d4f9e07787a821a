package runner

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
)

// unitsPerSecond is the scale of every *MS timestamp in Stats.
const unitsPerSecond = 1000

// GPUStats holds accelerator memory samples. It is only present when a
// memory tracker that reports samples is configured.
type GPUStats struct {
	TotalBytes             uint64  `json:"gpu_total_bytes"`
	FreeBeforeLoadBytes    uint64  `json:"gpu_free_before_load_bytes"`
	FreeAfterLoadBytes     uint64  `json:"gpu_free_after_load_bytes"`
	FreeAfterGenerateBytes uint64  `json:"gpu_free_after_generate_bytes"`
	PeakUsageMB            float64 `json:"gpu_peak_usage_mb"`
}

// Stats accumulates timestamps (milliseconds since the Unix epoch) and
// counters for the load, prefill and decode phases.
type Stats struct {
	ModelLoadStartMS        int64 `json:"model_load_start_ms"`
	ModelLoadEndMS          int64 `json:"model_load_end_ms"`
	InferenceStartMS        int64 `json:"inference_start_ms"`
	PromptEvalEndMS         int64 `json:"prompt_eval_end_ms"`
	FirstTokenMS            int64 `json:"first_token_ms"`
	InferenceEndMS          int64 `json:"inference_end_ms"`
	AggregateSamplingTimeMS int64 `json:"aggregate_sampling_time_ms"`

	NumPromptTokens    int64 `json:"prompt_tokens"`
	NumGeneratedTokens int64 `json:"generated_tokens"`

	GPU *GPUStats `json:"gpu,omitempty"`

	samplingStart time.Time
}

// Reset clears per-inference fields. With all set, load timestamps and
// memory samples are cleared too.
func (s *Stats) Reset(all bool) {
	loadStart, loadEnd, gpu := s.ModelLoadStartMS, s.ModelLoadEndMS, s.GPU
	*s = Stats{}
	if !all {
		s.ModelLoadStartMS, s.ModelLoadEndMS, s.GPU = loadStart, loadEnd, gpu
	}
}

// OnSamplingBegin and OnSamplingEnd bracket one sampling step; the elapsed
// time is added to AggregateSamplingTimeMS.
func (s *Stats) OnSamplingBegin() {
	s.samplingStart = time.Now()
}

func (s *Stats) OnSamplingEnd() {
	if s.samplingStart.IsZero() {
		return
	}
	s.AggregateSamplingTimeMS += time.Since(s.samplingStart).Milliseconds()
	s.samplingStart = time.Time{}
}

// Snapshot returns a copy safe to hand to callbacks.
func (s *Stats) Snapshot() Stats {
	out := *s
	out.samplingStart = time.Time{}
	if s.GPU != nil {
		gpu := *s.GPU
		out.GPU = &gpu
	}
	return out
}

func (s *Stats) gpu() *GPUStats {
	if s.GPU == nil {
		s.GPU = &GPUStats{}
	}
	return s.GPU
}

// JSON renders the stats as a single JSON object.
func (s Stats) JSON() (string, error) {
	type wire struct {
		Stats
		Scale int `json:"SCALING_FACTOR_UNITS_PER_SECOND"`
	}
	b, err := json.Marshal(wire{Stats: s, Scale: unitsPerSecond})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func seconds(ms int64) float64 {
	return float64(ms) / unitsPerSecond
}

func rate(tokens, ms int64) float64 {
	if ms <= 0 {
		return 0
	}
	return float64(tokens) / seconds(ms)
}

// WriteReport writes the summary of the last run: one JSON line followed
// by human readable timings.
func WriteReport(w io.Writer, s Stats) error {
	inference := s.InferenceEndMS - s.InferenceStartMS
	promptEval := s.PromptEvalEndMS - s.InferenceStartMS
	generation := s.InferenceEndMS - s.PromptEvalEndMS

	js, err := s.JSON()
	if err != nil {
		return err
	}
	lines := []string{
		"stats: " + js,
		fmt.Sprintf("Prompt Tokens: %d    Generated Tokens: %d", s.NumPromptTokens, s.NumGeneratedTokens),
		fmt.Sprintf("Model Load Time:\t\t%f (seconds)", seconds(s.ModelLoadEndMS-s.ModelLoadStartMS)),
		fmt.Sprintf("Total inference time:\t\t%f (seconds)\t\t Rate: \t%f (tokens/second)",
			seconds(inference), rate(s.NumGeneratedTokens, inference)),
		fmt.Sprintf("\tPrompt evaluation:\t%f (seconds)\t\t Rate: \t%f (tokens/second)",
			seconds(promptEval), rate(s.NumPromptTokens, promptEval)),
		fmt.Sprintf("\tGenerated %d tokens:\t%f (seconds)\t\t Rate: \t%f (tokens/second)",
			s.NumGeneratedTokens, seconds(generation), rate(s.NumGeneratedTokens, generation)),
		fmt.Sprintf("\tTime to first generated token:\t%f (seconds)", seconds(s.FirstTokenMS-s.InferenceStartMS)),
		fmt.Sprintf("\tSampling time over %d tokens:\t%f (seconds)",
			s.NumPromptTokens+s.NumGeneratedTokens, seconds(s.AggregateSamplingTimeMS)),
	}
	if s.GPU != nil {
		lines = append(lines, fmt.Sprintf("\tGPU memory: total %d bytes, free before load %d, after load %d, after generate %d, peak %.2f MB",
			s.GPU.TotalBytes, s.GPU.FreeBeforeLoadBytes, s.GPU.FreeAfterLoadBytes, s.GPU.FreeAfterGenerateBytes, s.GPU.PeakUsageMB))
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
