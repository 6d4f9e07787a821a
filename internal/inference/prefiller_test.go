package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
	"github.com/samcharles93/mmrun/internal/toy"
)

// stepRecorder wraps a decoder and records every step it sees.
type stepRecorder struct {
	runner.DecoderRunner
	steps []recordedStep
}

type recordedStep struct {
	in  runner.StepInput
	pos int64
}

func (s *stepRecorder) Step(ctx context.Context, in runner.StepInput, pos int64) ([]float32, error) {
	s.steps = append(s.steps, recordedStep{in: in, pos: pos})
	return s.DecoderRunner.Step(ctx, in, pos)
}

type panicDecoder struct{}

func (panicDecoder) Load() error    { return nil }
func (panicDecoder) IsLoaded() bool { return true }
func (panicDecoder) Step(context.Context, runner.StepInput, int64) ([]float32, error) {
	panic("boom")
}

func newToy(t *testing.T, maxCtx int64) *toy.ToyLM {
	t.Helper()
	m := toy.New(toy.Config{Vocab: tokenizer.ByteVocabSize, Hidden: 8, MaxContextLen: maxCtx, Seed: 3, PatchSize: 2})
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func newPrefiller(t *testing.T, maxCtx int64) (*Prefiller, *stepRecorder) {
	t.Helper()
	m := newToy(t, maxCtx)
	rec := &stepRecorder{DecoderRunner: m}
	return &Prefiller{
		Tokenizer:     tokenizer.NewByteTokenizer(),
		Decoder:       rec,
		Module:        m,
		IO:            IOManager{},
		MaxContextLen: maxCtx,
	}, rec
}

func TestPrefillTextAppliesMarkers(t *testing.T) {
	t.Parallel()

	p, rec := newPrefiller(t, 64)
	var pos int64
	tok, err := p.Prefill(context.Background(), multimodal.Text("hi"), &pos, 1, 1)
	if err != nil {
		t.Fatalf("Prefill: %v", err)
	}
	if pos != 4 {
		t.Fatalf("pos = %d, want 4", pos)
	}
	if tok < 0 || tok >= tokenizer.ByteVocabSize {
		t.Fatalf("token %d outside vocabulary", tok)
	}
	got := rec.steps[0].in.Tokens
	want := []int{tokenizer.ByteBOS, 'h', 'i', tokenizer.ByteEOS}
	if len(got) != len(want) {
		t.Fatalf("tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokens = %v, want %v", got, want)
		}
	}
}

func TestPrefillTokensAndImageAdvanceCursor(t *testing.T) {
	t.Parallel()

	p, rec := newPrefiller(t, 64)
	ctx := context.Background()
	var pos int64

	if _, err := p.Prefill(ctx, multimodal.Tokens([]int{5, 6}), &pos, 1, 0); err != nil {
		t.Fatalf("Prefill tokens: %v", err)
	}
	if pos != 3 || rec.steps[0].in.Tokens[0] != tokenizer.ByteBOS {
		t.Fatalf("tokens prefill pos=%d step=%v", pos, rec.steps[0].in.Tokens)
	}

	img := multimodal.Image{Width: 4, Height: 4, Channels: 3, Data: make([]uint8, 48)}
	if _, err := p.Prefill(ctx, multimodal.FromImage(img), &pos, 0, 0); err != nil {
		t.Fatalf("Prefill image: %v", err)
	}
	// A 4x4 image with 2 pixel patches occupies four positions.
	if pos != 7 {
		t.Fatalf("pos = %d, want 7", pos)
	}
	if rec.steps[1].pos != 3 || len(rec.steps[1].in.Embeddings) != 4 {
		t.Fatalf("image step = pos %d rows %d", rec.steps[1].pos, len(rec.steps[1].in.Embeddings))
	}
}

func TestPrefillOverflowLeavesCursor(t *testing.T) {
	t.Parallel()

	p, rec := newPrefiller(t, 4)
	pos := int64(2)
	_, err := p.Prefill(context.Background(), multimodal.Text("abc"), &pos, 0, 0)
	if !errors.Is(err, ErrContextOverflow) {
		t.Fatalf("expected ErrContextOverflow, got %v", err)
	}
	if pos != 2 || len(rec.steps) != 0 {
		t.Fatalf("overflow moved pos to %d after %d steps", pos, len(rec.steps))
	}
}

func TestPrefillErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	p, _ := newPrefiller(t, 16)
	var pos int64
	if _, err := p.Prefill(ctx, multimodal.Text(""), &pos, 0, 0); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}

	textOnly := &Prefiller{Tokenizer: tokenizer.NewByteTokenizer(), Decoder: newToy(t, 16), MaxContextLen: 16}
	audio := multimodal.FromAudio(multimodal.Audio{BatchSize: 1, Bins: 1, Frames: 1, Data: []float32{1}})
	if _, err := textOnly.Prefill(ctx, audio, &pos, 0, 0); !errors.Is(err, ErrUnsupportedModality) {
		t.Fatalf("expected ErrUnsupportedModality, got %v", err)
	}

	bad := multimodal.FromImage(multimodal.Image{Width: 2, Height: 2, Channels: 3, Data: []uint8{1}})
	if _, err := p.Prefill(ctx, bad, &pos, 0, 0); err == nil || !strings.Contains(err.Error(), "prepare image") {
		t.Fatalf("expected prepare error, got %v", err)
	}

	panicky := &Prefiller{Tokenizer: tokenizer.NewByteTokenizer(), Decoder: panicDecoder{}, MaxContextLen: 16}
	if _, err := panicky.Prefill(ctx, multimodal.Text("x"), &pos, 0, 0); err == nil || !strings.Contains(err.Error(), "panic in Step") {
		t.Fatalf("expected converted panic, got %v", err)
	}
	if pos != 0 {
		t.Fatalf("failed prefills moved pos to %d", pos)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Prefill(cancelled, multimodal.Text("x"), &pos, 0, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPrefillerLoad(t *testing.T) {
	t.Parallel()

	m := toy.New(toy.Config{Vocab: 8, Hidden: 4, MaxContextLen: 8})
	p := &Prefiller{Tokenizer: tokenizer.NewByteTokenizer(), Decoder: m, Module: m, IO: IOManager{}}
	if p.IsLoaded() {
		t.Fatalf("loaded before Load")
	}
	if err := p.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !p.IsLoaded() {
		t.Fatalf("not loaded after Load")
	}

	broken := &Prefiller{Decoder: toy.New(toy.Config{})}
	if err := broken.Load(); err == nil || !strings.Contains(err.Error(), "decoder") {
		t.Fatalf("expected decoder load error, got %v", err)
	}
}
