package runner

import (
	"context"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

// TokenCallback receives each decoded text fragment, in generation order.
type TokenCallback func(piece string)

// StatsCallback receives the stats snapshot at the end of a generate call.
type StatsCallback func(stats Stats)

// Tokenizer is the decoding half of the tokenizer used by the Runner.
type Tokenizer interface {
	Decode(prev, cur int) (string, error)
}

// MultimodalPrefiller encodes one input, runs it through the model in
// prefill mode and returns the predicted next token. It advances *pos by
// the number of positions the input occupied. numBOS and numEOS are applied
// by the encoder to textual inputs.
type MultimodalPrefiller interface {
	Load() error
	IsLoaded() bool
	Prefill(ctx context.Context, in multimodal.Input, pos *int64, numBOS, numEOS int) (int, error)
}

// TextTokenGenerator runs the autoregressive decode loop. Generate feeds
// tokens starting at startPos, produces at most maxNewTokens tokens and
// delivers each decoded fragment through cb before producing the next. It
// returns the number of tokens produced. Stop may be called from another
// goroutine and is observed between tokens.
type TextTokenGenerator interface {
	Load() error
	IsLoaded() bool
	SetIgnoreEOS(ignore bool)
	Generate(ctx context.Context, tokens []int, startPos int64, maxNewTokens int, temperature float32, cb TokenCallback) (int, error)
	Stop()
}

// StepInput is one decoder invocation: either token ids or precomputed
// embedding rows, never both.
type StepInput struct {
	Tokens     []int
	Embeddings [][]float32
}

// Len returns the number of sequence positions the input occupies.
func (in StepInput) Len() int {
	if in.Embeddings != nil {
		return len(in.Embeddings)
	}
	return len(in.Tokens)
}

// DecoderRunner executes the text decoder over a span of positions and
// returns the logits for the last one.
type DecoderRunner interface {
	Load() error
	IsLoaded() bool
	Step(ctx context.Context, in StepInput, startPos int64) ([]float32, error)
}

// Module is the model execution handle for the modality encoders.
type Module interface {
	Load() error
	IsLoaded() bool
	Encode(ctx context.Context, kind multimodal.Kind, features []float32, shape []int) ([][]float32, error)
}

// IOManager turns raw image and audio payloads into encoder features.
type IOManager interface {
	Prepare(in multimodal.Input) (features []float32, shape []int, err error)
}
