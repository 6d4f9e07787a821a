package toy

import (
	"context"
	"math"
	"testing"

	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
)

func loaded(t *testing.T, cfg Config) *ToyLM {
	t.Helper()
	m := New(cfg)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func smallConfig() Config {
	return Config{Vocab: 16, Hidden: 6, MaxContextLen: 32, Seed: 5}
}

// TestStepMatchesNaive checks a single token step against a hand computed
// reference.
func TestStepMatchesNaive(t *testing.T) {
	t.Parallel()

	m := loaded(t, smallConfig())
	got, err := m.Step(context.Background(), runner.StepInput{Tokens: []int{3}}, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	h := make([]float32, 6)
	for i := range h {
		h[i] = float32(math.Tanh(float64(m.emb[3][i])))
	}
	for j := range 16 {
		var sum float32
		for i := range h {
			sum += h[i] * m.w[i][j]
		}
		if math.Abs(float64(got[j]-sum)) > 1e-5 {
			t.Fatalf("logit %d = %f, want %f", j, got[j], sum)
		}
	}
}

func TestStepIsDeterministicAcrossInstances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := loaded(t, smallConfig())
	b := loaded(t, smallConfig())
	la, err := a.Step(ctx, runner.StepInput{Tokens: []int{1, 2, 3}}, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	lb, err := b.Step(ctx, runner.StepInput{Tokens: []int{1, 2, 3}}, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i := range la {
		if la[i] != lb[i] {
			t.Fatalf("logits differ at %d", i)
		}
	}
}

func TestStepContextDependence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := loaded(t, smallConfig())
	whole, err := m.Step(ctx, runner.StepInput{Tokens: []int{4, 5}}, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	m.Reset()
	if _, err := m.Step(ctx, runner.StepInput{Tokens: []int{4}}, 0); err != nil {
		t.Fatalf("Step: %v", err)
	}
	split, err := m.Step(ctx, runner.StepInput{Tokens: []int{5}}, 1)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i := range whole {
		if math.Abs(float64(whole[i]-split[i])) > 1e-6 {
			t.Fatalf("split feed differs at %d: %f vs %f", i, whole[i], split[i])
		}
	}

	// Rewinding to zero forgets the earlier positions.
	alone, err := m.Step(ctx, runner.StepInput{Tokens: []int{5}}, 0)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("cache length = %d, want 1", m.Len())
	}
	same := true
	for i := range alone {
		if alone[i] != split[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("logits ignore preceding context")
	}
}

func TestStepRejects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cases := []struct {
		name  string
		in    runner.StepInput
		start int64
	}{
		{name: "gap", in: runner.StepInput{Tokens: []int{1}}, start: 2},
		{name: "overflow", in: runner.StepInput{Tokens: make([]int, 33)}, start: 0},
		{name: "vocab", in: runner.StepInput{Tokens: []int{16}}, start: 0},
		{name: "empty", in: runner.StepInput{}, start: 0},
		{name: "row-width", in: runner.StepInput{Embeddings: [][]float32{{1, 2}}}, start: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := loaded(t, smallConfig())
			if _, err := m.Step(ctx, tc.in, tc.start); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := New(smallConfig()).Step(ctx, runner.StepInput{Tokens: []int{1}}, 0); err != ErrNotLoaded {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestLoadValidatesConfig(t *testing.T) {
	t.Parallel()

	if err := New(Config{Vocab: 0, Hidden: 4, MaxContextLen: 8}).Load(); err == nil {
		t.Fatalf("expected error for zero vocab")
	}
	if err := New(Config{Vocab: 4, Hidden: 4}).Load(); err == nil {
		t.Fatalf("expected error for zero context")
	}
}

func TestEncodeImagePatches(t *testing.T) {
	t.Parallel()

	m := loaded(t, Config{Vocab: 8, Hidden: 4, MaxContextLen: 64, PatchSize: 2})
	features := make([]float32, 3*4*3) // C=3 H=4 W=3
	rows, err := m.Encode(context.Background(), multimodal.KindImage, features, []int{1, 3, 4, 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// ceil(4/2) * ceil(3/2) patches.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	for _, r := range rows {
		if len(r) != 4 {
			t.Fatalf("row width %d, want 4", len(r))
		}
	}

	if _, err := m.Encode(context.Background(), multimodal.KindImage, features, []int{3, 4, 3}); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestEncodeAudioFrames(t *testing.T) {
	t.Parallel()

	m := loaded(t, Config{Vocab: 8, Hidden: 4, MaxContextLen: 64, FrameStride: 4})
	features := make([]float32, 2*5*9)
	for i := range features {
		features[i] = float32(i) / 10
	}
	rows, err := m.Encode(context.Background(), multimodal.KindAudio, features, []int{2, 5, 9})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Two batch items of ceil(9/4) windows.
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}

	logits, err := m.Step(context.Background(), runner.StepInput{Embeddings: rows}, 0)
	if err != nil {
		t.Fatalf("Step over audio rows: %v", err)
	}
	if len(logits) != 8 || m.Len() != 6 {
		t.Fatalf("logits=%d cache=%d", len(logits), m.Len())
	}
}

func TestEncodeRejectsText(t *testing.T) {
	t.Parallel()

	m := loaded(t, smallConfig())
	if _, err := m.Encode(context.Background(), multimodal.KindText, nil, nil); err == nil {
		t.Fatalf("expected error for text")
	}
}
