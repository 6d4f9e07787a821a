package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/samcharles93/mmrun/internal/logits"
	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
)

// SamplingOptions are the sampler settings that do not change per call.
// Temperature comes from each Generate call.
type SamplingOptions struct {
	Seed int64
	TopK int
	TopP float32
}

// TokenGenerator is the autoregressive decode loop over a DecoderRunner.
// Stop may be called from any goroutine; the flag is cleared at the start
// of every Generate call.
type TokenGenerator struct {
	Decoder    runner.DecoderRunner
	Tokenizer  tokenizer.Tokenizer
	StopTokens []int
	Sampling   SamplingOptions
	// Stats receives sampling time. It may be nil.
	Stats *runner.Stats

	ignoreEOS bool
	stopped   atomic.Bool
}

func (g *TokenGenerator) Load() error {
	return g.Decoder.Load()
}

func (g *TokenGenerator) IsLoaded() bool {
	return g.Decoder.IsLoaded()
}

func (g *TokenGenerator) SetIgnoreEOS(ignore bool) {
	g.ignoreEOS = ignore
}

func (g *TokenGenerator) Stop() {
	g.stopped.Store(true)
}

// Generate feeds tokens at startPos, then samples, decodes and feeds back
// one token at a time. Each produced token is delivered to cb before the
// next is computed, including a final end of sequence token. It returns the
// number of tokens produced, which is also the number of positions used.
func (g *TokenGenerator) Generate(ctx context.Context, tokens []int, startPos int64, maxNewTokens int, temperature float32, cb runner.TokenCallback) (int, error) {
	if len(tokens) == 0 {
		return 0, errors.New("generate: at least one seed token is required")
	}
	g.stopped.Store(false)

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:        g.Sampling.Seed,
		Temperature: temperature,
		TopK:        g.Sampling.TopK,
		TopP:        g.Sampling.TopP,
	})

	pos := startPos
	feed := tokens
	prev := tokens[len(tokens)-1]
	produced := 0
	for produced < maxNewTokens {
		if err := ctx.Err(); err != nil {
			return produced, err
		}

		vec, err := safeStep(ctx, g.Decoder, runner.StepInput{Tokens: feed}, pos)
		if err != nil {
			return produced, fmt.Errorf("decode step %d: %w", produced, err)
		}
		pos += int64(len(feed))

		if g.Stats != nil {
			g.Stats.OnSamplingBegin()
		}
		next, err := safeSample(sampler, vec)
		if g.Stats != nil {
			g.Stats.OnSamplingEnd()
		}
		if err != nil {
			return produced, err
		}
		produced++

		piece, err := g.Tokenizer.Decode(prev, next)
		if err != nil {
			return produced, fmt.Errorf("decode token %d: %w", next, err)
		}
		if cb != nil {
			cb(piece)
		}

		if g.stopped.Load() {
			break
		}
		if !g.ignoreEOS && slices.Contains(g.StopTokens, next) {
			break
		}
		prev = next
		feed = []int{next}
	}
	return produced, nil
}
