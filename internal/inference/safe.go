package inference

import (
	"context"
	"fmt"

	"github.com/samcharles93/mmrun/internal/logits"
	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
)

func safeStep(ctx context.Context, d runner.DecoderRunner, in runner.StepInput, pos int64) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Step: %v", rec)
		}
	}()
	return d.Step(ctx, in, pos)
}

func safeEncode(tok tokenizer.Tokenizer, text string, numBOS, numEOS int) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text, numBOS, numEOS)
}

func safeModalityEncode(ctx context.Context, m runner.Module, kind multimodal.Kind, features []float32, shape []int) (rows [][]float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in %s encoder: %v", kind, rec)
		}
	}()
	return m.Encode(ctx, kind, features, shape)
}

func safeSample(s *logits.Sampler, vec []float32) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	return s.Sample(vec), nil
}
