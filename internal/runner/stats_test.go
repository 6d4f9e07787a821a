package runner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestStatsResetKeepsLoadTimes(t *testing.T) {
	t.Parallel()

	s := &Stats{
		ModelLoadStartMS:   10,
		ModelLoadEndMS:     20,
		InferenceStartMS:   30,
		NumGeneratedTokens: 4,
		GPU:                &GPUStats{TotalBytes: 1},
	}
	s.Reset(false)
	if s.ModelLoadStartMS != 10 || s.ModelLoadEndMS != 20 || s.GPU == nil {
		t.Fatalf("partial reset dropped load data: %+v", s)
	}
	if s.InferenceStartMS != 0 || s.NumGeneratedTokens != 0 {
		t.Fatalf("partial reset kept inference data: %+v", s)
	}

	s.Reset(true)
	if s.ModelLoadStartMS != 0 || s.GPU != nil {
		t.Fatalf("full reset kept load data: %+v", s)
	}
}

func TestStatsSnapshotCopiesGPU(t *testing.T) {
	t.Parallel()

	s := &Stats{GPU: &GPUStats{PeakUsageMB: 1}}
	snap := s.Snapshot()
	snap.GPU.PeakUsageMB = 99
	if s.GPU.PeakUsageMB != 1 {
		t.Fatalf("snapshot aliases GPU block")
	}
}

func TestStatsSamplingAccumulates(t *testing.T) {
	t.Parallel()

	s := &Stats{}
	s.OnSamplingEnd()
	if s.AggregateSamplingTimeMS != 0 {
		t.Fatalf("end without begin changed the aggregate")
	}
	s.OnSamplingBegin()
	s.OnSamplingEnd()
	if s.AggregateSamplingTimeMS < 0 {
		t.Fatalf("negative sampling time")
	}
}

func TestStatsJSON(t *testing.T) {
	t.Parallel()

	s := Stats{InferenceStartMS: 5, NumPromptTokens: 7}
	out, err := s.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["prompt_tokens"] != float64(7) || decoded["SCALING_FACTOR_UNITS_PER_SECOND"] != float64(1000) {
		t.Fatalf("unexpected JSON: %s", out)
	}
	if _, ok := decoded["gpu"]; ok {
		t.Fatalf("gpu block present without samples: %s", out)
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	s := Stats{
		ModelLoadStartMS:   0,
		ModelLoadEndMS:     1500,
		InferenceStartMS:   2000,
		PromptEvalEndMS:    2500,
		FirstTokenMS:       2500,
		InferenceEndMS:     4500,
		NumPromptTokens:    10,
		NumGeneratedTokens: 20,
		GPU:                &GPUStats{TotalBytes: 64},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, s); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"stats: {",
		"Prompt Tokens: 10    Generated Tokens: 20",
		"Model Load Time:\t\t1.500000 (seconds)",
		"Generated 20 tokens:\t2.000000 (seconds)\t\t Rate: \t10.000000 (tokens/second)",
		"Time to first generated token:\t0.500000 (seconds)",
		"GPU memory: total 64 bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestRecordSampleTracksPeak(t *testing.T) {
	t.Parallel()

	s := &Stats{}
	recordSample(PhaseConstruct, memorySample{total: 10 << 20, free: 8 << 20}, s)
	recordSample(PhaseAfterLoad, memorySample{total: 10 << 20, free: 2 << 20}, s)
	recordSample(PhaseAfterGenerate, memorySample{total: 10 << 20, free: 6 << 20}, s)

	gpu := s.GPU
	if gpu.FreeBeforeLoadBytes != 8<<20 || gpu.FreeAfterLoadBytes != 2<<20 || gpu.FreeAfterGenerateBytes != 6<<20 {
		t.Fatalf("samples = %+v", gpu)
	}
	if gpu.PeakUsageMB != 8 {
		t.Fatalf("peak = %v, want 8", gpu.PeakUsageMB)
	}
}
