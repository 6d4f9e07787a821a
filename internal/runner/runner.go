package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/samcharles93/mmrun/internal/logger"
	"github.com/samcharles93/mmrun/internal/multimodal"
)

// Components are the collaborators handed to New. The Runner owns them from
// then on; Close releases those that implement io.Closer.
type Components struct {
	Metadata  Metadata
	Tokenizer Tokenizer
	Module    Module
	Decoder   DecoderRunner
	Prefiller MultimodalPrefiller
	IO        IOManager
	Generator TextTokenGenerator
	Stats     *Stats

	// Memory defaults to NoopMemoryTracker.
	Memory MemoryTracker
	// Logger defaults to logger.Default().
	Logger logger.Logger
	// Output receives decoded text unless a run is warming. Defaults to stdout.
	Output io.Writer
	// Report receives the end of run summary. Defaults to stderr.
	Report io.Writer
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Runner drives prefill and decode for a single sequence. It owns the
// position cursor and the token predicted by a standalone Prefill call.
//
// Load, Prefill, Generate and Reset must not be called concurrently. Stop is
// safe to call from any goroutine.
type Runner struct {
	metadata      Metadata
	maxContextLen int64

	tokenizer Tokenizer
	module    Module
	decoder   DecoderRunner
	prefiller MultimodalPrefiller
	io        IOManager
	generator TextTokenGenerator
	stats     *Stats
	memory    MemoryTracker

	log    logger.Logger
	out    io.Writer
	report io.Writer
	clock  func() time.Time

	pos        int64
	pending    int
	hasPending bool

	closeOnce sync.Once
}

// New validates the components and returns an unloaded Runner.
func New(c Components) (*Runner, error) {
	if c.Tokenizer == nil {
		return nil, errors.New("runner: tokenizer is required")
	}
	if c.Prefiller == nil {
		return nil, errors.New("runner: prefiller is required")
	}
	if c.Generator == nil {
		return nil, errors.New("runner: text token generator is required")
	}
	maxContextLen, err := c.Metadata.MaxContextLen()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	r := &Runner{
		metadata:      c.Metadata.Clone(),
		maxContextLen: maxContextLen,
		tokenizer:     c.Tokenizer,
		module:        c.Module,
		decoder:       c.Decoder,
		prefiller:     c.Prefiller,
		io:            c.IO,
		generator:     c.Generator,
		stats:         c.Stats,
		memory:        c.Memory,
		log:           c.Logger,
		out:           c.Output,
		report:        c.Report,
		clock:         c.Clock,
	}
	if r.stats == nil {
		r.stats = &Stats{}
	}
	if r.memory == nil {
		r.memory = NoopMemoryTracker{}
	}
	if r.log == nil {
		r.log = logger.Default()
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.report == nil {
		r.report = os.Stderr
	}
	if r.clock == nil {
		r.clock = time.Now
	}

	r.memory.Observe(PhaseConstruct, r.stats)
	return r, nil
}

func (r *Runner) nowMS() int64 {
	return r.clock().UnixMilli()
}

// IsLoaded reports whether both the prefiller and the generator are loaded.
func (r *Runner) IsLoaded() bool {
	return r.prefiller.IsLoaded() && r.generator.IsLoaded()
}

// Load loads the prefiller and then the generator. It is a no-op when both
// are already loaded.
func (r *Runner) Load() error {
	if r.IsLoaded() {
		return nil
	}
	r.stats.ModelLoadStartMS = r.nowMS()
	if err := r.prefiller.Load(); err != nil {
		return loadFailure("load prefiller", err)
	}
	if err := r.generator.Load(); err != nil {
		return loadFailure("load text token generator", err)
	}
	r.stats.ModelLoadEndMS = r.nowMS()

	r.memory.Observe(PhaseAfterLoad, r.stats)
	if gpu := r.stats.GPU; gpu != nil {
		r.log.Info("memory after load",
			"total_bytes", gpu.TotalBytes,
			"free_bytes", gpu.FreeAfterLoadBytes,
			"peak_mb", gpu.PeakUsageMB)
	}
	return nil
}

// Prefill feeds inputs to the prefiller in order and returns the token
// predicted after the last one. The token is kept for a later Generate call
// with no inputs.
//
// Marker tokens only apply to the first input when the cursor is at zero.
// Textual first inputs get numBOS and numEOS directly. Other first inputs
// are preceded by numBOS copies of the metadata BOS id when one is
// configured.
func (r *Runner) Prefill(ctx context.Context, inputs []multimodal.Input, numBOS, numEOS int) (int, error) {
	if err := r.Load(); err != nil {
		return 0, err
	}
	if len(inputs) == 0 {
		return 0, invalidArgument("prefill", "no inputs")
	}

	var last int
	for i, in := range inputs {
		bos, eos := 0, 0
		if i == 0 && r.pos == 0 {
			switch {
			case in.IsTextual():
				bos, eos = numBOS, numEOS
			case numBOS > 0:
				if id, ok := r.metadata.Lookup(KeyBOSID); ok {
					markers := make([]int, numBOS)
					for j := range markers {
						markers[j] = int(id)
					}
					tok, err := r.prefiller.Prefill(ctx, multimodal.Tokens(markers), &r.pos, 0, 0)
					if err != nil {
						return 0, err
					}
					last = tok
				}
			}
		}
		tok, err := r.prefiller.Prefill(ctx, in, &r.pos, bos, eos)
		if err != nil {
			return 0, err
		}
		last = tok
	}

	r.pending, r.hasPending = last, true
	return last, nil
}

// PrefillText prefills a single text prompt.
func (r *Runner) PrefillText(ctx context.Context, prompt string, numBOS, numEOS int) (int, error) {
	return r.Prefill(ctx, []multimodal.Input{multimodal.Text(prompt)}, numBOS, numEOS)
}

// Generate prefills inputs and then decodes until the budget is exhausted,
// an end of sequence token is produced, or Stop is called. With no inputs
// it continues from the token kept by an earlier Prefill call.
//
// Every decoded fragment goes to the output writer, unless cfg.Warming is
// set, and to tokenCb when it is non-nil. statsCb receives the final stats.
func (r *Runner) Generate(ctx context.Context, inputs []multimodal.Input, cfg GenerationConfig, tokenCb TokenCallback, statsCb StatsCallback) error {
	if err := r.Load(); err != nil {
		return err
	}
	logf := logger.Leveled(r.log, cfg.Warming)
	if cfg.Warming {
		r.log.Info("doing a warmup run")
	}
	logf("rss after loading model", "rss_mib", mib(residentBytes()))

	emit := func(piece string) {
		if !cfg.Warming {
			_, _ = io.WriteString(r.out, piece)
		}
		if tokenCb != nil {
			tokenCb(piece)
		}
	}

	r.stats.InferenceStartMS = r.nowMS()

	var cur int
	if len(inputs) > 0 {
		if text, ok := inputs[len(inputs)-1].Text(); ok && cfg.Echo {
			emit(text)
		}
		tok, err := r.Prefill(ctx, inputs, cfg.NumBOS, cfg.NumEOS)
		if err != nil {
			return err
		}
		cur = tok
	} else {
		if !r.hasPending {
			return invalidState("generate", "empty inputs require a prior prefill call")
		}
		cur = r.pending
	}
	r.pending, r.hasPending = 0, false

	return r.decodeFromToken(ctx, cur, cfg, emit, statsCb)
}

// GenerateText generates from a single text prompt. An empty prompt
// continues from the token kept by an earlier Prefill call.
func (r *Runner) GenerateText(ctx context.Context, prompt string, cfg GenerationConfig, tokenCb TokenCallback, statsCb StatsCallback) error {
	var inputs []multimodal.Input
	if prompt != "" {
		inputs = append(inputs, multimodal.Text(prompt))
	}
	return r.Generate(ctx, inputs, cfg, tokenCb, statsCb)
}

func (r *Runner) decodeFromToken(ctx context.Context, cur int, cfg GenerationConfig, emit TokenCallback, statsCb StatsCallback) error {
	logf := logger.Leveled(r.log, cfg.Warming)

	now := r.nowMS()
	r.stats.FirstTokenMS = now
	r.stats.PromptEvalEndMS = now
	r.stats.NumPromptTokens = r.pos

	piece, err := r.tokenizer.Decode(cur, cur)
	if err != nil {
		r.log.Error("tokenizer decode failed", "token", cur, "error", err)
		return invalidArgument("decode", "tokenizer failed on token %d", cur)
	}
	emit(piece)

	logf("rss after multimodal input processing", "rss_mib", mib(residentBytes()))

	budget := cfg.ResolveMaxNewTokens(r.maxContextLen, r.pos)
	r.log.Info("max new tokens resolved",
		"max_new_tokens", budget,
		"pos", r.pos,
		"max_context_len", r.maxContextLen)
	if budget <= 0 {
		return invalidArgument("decode", "max new tokens %d is less than or equal to 0", budget)
	}

	r.generator.SetIgnoreEOS(cfg.IgnoreEOS)
	n, err := r.generator.Generate(ctx, []int{cur}, r.pos, budget-1, cfg.Temperature, emit)
	// Positions fed before a failure stay in the model cache.
	r.pos += int64(n)
	r.stats.NumGeneratedTokens = int64(n)
	r.stats.InferenceEndMS = r.nowMS()
	if err != nil {
		return err
	}
	r.memory.Observe(PhaseAfterGenerate, r.stats)

	if cfg.Warming {
		r.log.Info("warmup run finished")
	} else {
		_, _ = io.WriteString(r.out, "\n")
		if err := WriteReport(r.report, r.stats.Snapshot()); err != nil {
			r.log.Warn("write report", "error", err)
		}
	}

	if statsCb != nil {
		statsCb(r.stats.Snapshot())
	}
	return nil
}

// Stop asks an in-flight decode to return after the current token. It is
// idempotent and has no effect when nothing is decoding.
func (r *Runner) Stop() {
	r.generator.Stop()
}

// Reset rewinds the cursor to zero, drops any kept prefill token and clears
// per-inference stats.
func (r *Runner) Reset() {
	r.pos = 0
	r.pending, r.hasPending = 0, false
	r.stats.Reset(false)
}

// Pos returns the number of committed sequence positions.
func (r *Runner) Pos() int64 {
	return r.pos
}

// HasPendingToken reports whether a standalone Prefill left a token for
// Generate to consume.
func (r *Runner) HasPendingToken() bool {
	return r.hasPending
}

// MaxContextLen returns the context window from the metadata.
func (r *Runner) MaxContextLen() int64 {
	return r.maxContextLen
}

// Metadata returns a copy of the metadata.
func (r *Runner) Metadata() Metadata {
	return r.metadata.Clone()
}

// Stats returns a snapshot of the accumulated stats.
func (r *Runner) Stats() Stats {
	return r.stats.Snapshot()
}

// Close releases every owned collaborator that implements io.Closer.
func (r *Runner) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		seen := make(map[any]bool)
		for _, c := range []any{r.generator, r.prefiller, r.decoder, r.module, r.io, r.tokenizer} {
			closer, ok := c.(io.Closer)
			if !ok || seen[c] {
				continue
			}
			seen[c] = true
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func mib(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
