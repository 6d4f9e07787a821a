package inference

import (
	"fmt"
	"io"

	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/modelcard"
	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/toy"
)

// Loader builds a Runner from a model card. Nothing is loaded until the
// Runner's Load is called.
type Loader struct {
	Logger logger.Logger
	// Memory overrides the memory tracker; nil uses the system tracker.
	Memory runner.MemoryTracker
	Output io.Writer
	Report io.Writer
	// Seed overrides the card's sampling seed when non-nil.
	Seed *int64
}

type LoadResult struct {
	Runner   *runner.Runner
	Card     *modelcard.Card
	Model    *toy.ToyLM
	Defaults runner.ConfigOptions
}

func (l Loader) LoadPath(path string) (*LoadResult, error) {
	card, err := modelcard.Load(path)
	if err != nil {
		return nil, err
	}
	return l.Build(card)
}

func (l Loader) Build(card *modelcard.Card) (*LoadResult, error) {
	tok := card.NewTokenizer()
	md := card.RunnerMetadata(tok)

	hidden := card.Model.Hidden
	if hidden == 0 {
		hidden = 32
	}
	model := toy.New(toy.Config{
		Vocab:         tok.VocabSize(),
		Hidden:        hidden,
		MaxContextLen: card.MaxContextLen,
		Seed:          card.Model.Seed,
		PatchSize:     card.Model.PatchSize,
		FrameStride:   card.Model.FrameStride,
	})

	sampling := SamplingOptions{
		Seed: card.Sampling.Seed,
		TopK: card.Sampling.TopK,
		TopP: card.Sampling.TopP,
	}
	if l.Seed != nil {
		sampling.Seed = *l.Seed
	}

	stats := &runner.Stats{}
	iom := IOManager{}
	prefiller := &Prefiller{
		Tokenizer:     tok,
		Decoder:       model,
		Module:        model,
		IO:            iom,
		MaxContextLen: card.MaxContextLen,
	}
	generator := &TokenGenerator{
		Decoder:    model,
		Tokenizer:  tok,
		StopTokens: BuildStopTokens(tok, md),
		Sampling:   sampling,
		Stats:      stats,
	}

	log := l.Logger
	if log == nil {
		log = logger.Default()
	}
	memory := l.Memory
	if memory == nil {
		memory = runner.SystemMemoryTracker{}
	}

	r, err := runner.New(runner.Components{
		Metadata:  md,
		Tokenizer: tok,
		Module:    model,
		Decoder:   model,
		Prefiller: prefiller,
		IO:        iom,
		Generator: generator,
		Stats:     stats,
		Memory:    memory,
		Logger:    log.With("model", card.Name),
		Output:    l.Output,
		Report:    l.Report,
	})
	if err != nil {
		return nil, fmt.Errorf("build runner for %s: %w", card.Name, err)
	}

	return &LoadResult{
		Runner:   r,
		Card:     card,
		Model:    model,
		Defaults: card.Defaults,
	}, nil
}
