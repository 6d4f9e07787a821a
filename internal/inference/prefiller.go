package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/mmrun/internal/logits"
	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
)

var (
	ErrContextOverflow     = errors.New("input does not fit in the context window")
	ErrUnsupportedModality = errors.New("unsupported modality")
	ErrEmptyInput          = errors.New("input encodes to no positions")
)

// Prefiller runs one input at a time through the decoder. Text and token
// inputs are fed as ids; images and audio go through the IO manager and the
// modality encoders and are fed as embedding rows. The next token is picked
// greedily from the logits of the last position.
type Prefiller struct {
	Tokenizer     tokenizer.Tokenizer
	Decoder       runner.DecoderRunner
	Module        runner.Module
	IO            runner.IOManager
	MaxContextLen int64
}

func (p *Prefiller) Load() error {
	if err := p.Decoder.Load(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if p.Module != nil {
		if err := p.Module.Load(); err != nil {
			return fmt.Errorf("encoders: %w", err)
		}
	}
	return nil
}

func (p *Prefiller) IsLoaded() bool {
	if !p.Decoder.IsLoaded() {
		return false
	}
	return p.Module == nil || p.Module.IsLoaded()
}

// Prefill advances *pos by the positions in occupies only when the decoder
// step succeeds.
func (p *Prefiller) Prefill(ctx context.Context, in multimodal.Input, pos *int64, numBOS, numEOS int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	step, err := p.stepInput(ctx, in, numBOS, numEOS)
	if err != nil {
		return 0, err
	}
	n := int64(step.Len())
	if n == 0 {
		return 0, fmt.Errorf("prefill %s: %w", in.Kind(), ErrEmptyInput)
	}
	if p.MaxContextLen > 0 && *pos+n > p.MaxContextLen {
		return 0, fmt.Errorf("prefill %s at %d with %d positions (max %d): %w",
			in.Kind(), *pos, n, p.MaxContextLen, ErrContextOverflow)
	}

	vec, err := safeStep(ctx, p.Decoder, step, *pos)
	if err != nil {
		return 0, fmt.Errorf("prefill %s: %w", in.Kind(), err)
	}
	*pos += n
	return logits.Argmax(vec), nil
}

func (p *Prefiller) stepInput(ctx context.Context, in multimodal.Input, numBOS, numEOS int) (runner.StepInput, error) {
	switch in.Kind() {
	case multimodal.KindText:
		text, _ := in.Text()
		ids, err := safeEncode(p.Tokenizer, text, numBOS, numEOS)
		if err != nil {
			return runner.StepInput{}, fmt.Errorf("encode text: %w", err)
		}
		return runner.StepInput{Tokens: ids}, nil
	case multimodal.KindTokens:
		toks, _ := in.Tokens()
		return runner.StepInput{Tokens: p.withMarkers(toks, numBOS, numEOS)}, nil
	case multimodal.KindImage, multimodal.KindAudio:
		if p.Module == nil || p.IO == nil {
			return runner.StepInput{}, fmt.Errorf("%s input: %w", in.Kind(), ErrUnsupportedModality)
		}
		features, shape, err := p.IO.Prepare(in)
		if err != nil {
			return runner.StepInput{}, fmt.Errorf("prepare %s: %w", in.Kind(), err)
		}
		rows, err := safeModalityEncode(ctx, p.Module, in.Kind(), features, shape)
		if err != nil {
			return runner.StepInput{}, fmt.Errorf("encode %s: %w", in.Kind(), err)
		}
		return runner.StepInput{Embeddings: rows}, nil
	default:
		return runner.StepInput{}, fmt.Errorf("%s input: %w", in.Kind(), ErrUnsupportedModality)
	}
}

func (p *Prefiller) withMarkers(toks []int, numBOS, numEOS int) []int {
	if numBOS <= 0 && numEOS <= 0 {
		return toks
	}
	out := make([]int, 0, numBOS+len(toks)+numEOS)
	for range numBOS {
		out = append(out, p.Tokenizer.BOSID())
	}
	out = append(out, toks...)
	if eos := p.Tokenizer.EOSIDs(); len(eos) > 0 {
		for range numEOS {
			out = append(out, eos[0])
		}
	}
	return out
}
