// Package toy implements a tiny deterministic decoder with image and audio
// encoders. It has the same shape as a real multimodal model (embeddings,
// a position-indexed cache and an output projection) so the runner can be
// driven end to end without a tensor engine.
package toy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/mmrun/internal/multimodal"
	"github.com/samcharles93/mmrun/internal/runner"
)

var ErrNotLoaded = errors.New("toy model not loaded")

// Config sizes a ToyLM.
type Config struct {
	Vocab         int
	Hidden        int
	MaxContextLen int64
	Seed          int64
	// PatchSize is the image patch edge in pixels. Defaults to 8.
	PatchSize int
	// FrameStride is the number of audio frames pooled per row. Defaults to 4.
	FrameStride int
}

// ToyLM keeps one hidden state per committed position. Each position mixes
// its input embedding with the state of the position before it, so logits
// depend on everything fed so far.
type ToyLM struct {
	cfg Config

	emb  [][]float32 // [Vocab][Hidden]
	w    [][]float32 // [Hidden][Vocab]
	bias []float32   // [Vocab]

	// proj holds encoder projections keyed by modality and input width.
	proj map[projKey][][]float32

	cache  [][]float32
	loaded bool
}

type projKey struct {
	kind multimodal.Kind
	dim  int
}

func New(cfg Config) *ToyLM {
	if cfg.PatchSize <= 0 {
		cfg.PatchSize = 8
	}
	if cfg.FrameStride <= 0 {
		cfg.FrameStride = 4
	}
	return &ToyLM{cfg: cfg}
}

// Load allocates the weights from the seed. It is idempotent.
func (m *ToyLM) Load() error {
	if m.loaded {
		return nil
	}
	if m.cfg.Vocab <= 0 || m.cfg.Hidden <= 0 {
		return fmt.Errorf("toy: invalid dimensions vocab=%d hidden=%d", m.cfg.Vocab, m.cfg.Hidden)
	}
	if m.cfg.MaxContextLen <= 0 {
		return fmt.Errorf("toy: max context length must be positive, got %d", m.cfg.MaxContextLen)
	}
	m.emb = randMatrix(m.cfg.Vocab, m.cfg.Hidden, m.cfg.Seed+11)
	m.w = randMatrix(m.cfg.Hidden, m.cfg.Vocab, m.cfg.Seed+23)
	m.bias = make([]float32, m.cfg.Vocab)
	m.proj = make(map[projKey][][]float32)
	m.cache = make([][]float32, 0, min(m.cfg.MaxContextLen, 4096))
	m.loaded = true
	return nil
}

func (m *ToyLM) IsLoaded() bool { return m.loaded }

// Vocab returns the vocabulary size.
func (m *ToyLM) Vocab() int { return m.cfg.Vocab }

// Len returns the number of cached positions.
func (m *ToyLM) Len() int { return len(m.cache) }

// Step writes the states for positions [startPos, startPos+in.Len()) and
// returns the logits of the last one. Positions at or after startPos are
// overwritten, so rewinding to zero starts a fresh sequence.
func (m *ToyLM) Step(ctx context.Context, in runner.StepInput, startPos int64) ([]float32, error) {
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	n := int64(in.Len())
	if n == 0 {
		return nil, errors.New("toy: empty step")
	}
	if startPos < 0 || startPos > int64(len(m.cache)) {
		return nil, fmt.Errorf("toy: start position %d leaves a gap after %d cached positions", startPos, len(m.cache))
	}
	if startPos+n > m.cfg.MaxContextLen {
		return nil, fmt.Errorf("toy: positions %d..%d exceed context of %d", startPos, startPos+n-1, m.cfg.MaxContextLen)
	}

	m.cache = m.cache[:startPos]
	for i := range int(n) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x, err := m.inputRow(in, i)
		if err != nil {
			return nil, err
		}
		h := make([]float32, m.cfg.Hidden)
		var prev []float32
		if len(m.cache) > 0 {
			prev = m.cache[len(m.cache)-1]
		}
		for j := range h {
			v := x[j]
			if prev != nil {
				v += 0.5 * prev[j]
			}
			h[j] = float32(math.Tanh(float64(v)))
		}
		m.cache = append(m.cache, h)
	}
	return m.logits(m.cache[len(m.cache)-1]), nil
}

func (m *ToyLM) inputRow(in runner.StepInput, i int) ([]float32, error) {
	if in.Embeddings != nil {
		row := in.Embeddings[i]
		if len(row) != m.cfg.Hidden {
			return nil, fmt.Errorf("toy: embedding row %d has width %d, want %d", i, len(row), m.cfg.Hidden)
		}
		return row, nil
	}
	tok := in.Tokens[i]
	if tok < 0 || tok >= m.cfg.Vocab {
		return nil, fmt.Errorf("toy: token %d outside vocabulary of %d", tok, m.cfg.Vocab)
	}
	return m.emb[tok], nil
}

func (m *ToyLM) logits(h []float32) []float32 {
	out := make([]float32, m.cfg.Vocab)
	for j := range out {
		var sum float32
		for i, hv := range h {
			sum += hv * m.w[i][j]
		}
		out[j] = sum + m.bias[j]
	}
	return out
}

// Reset drops every cached position.
func (m *ToyLM) Reset() {
	m.cache = m.cache[:0]
}

func randMatrix(rows, cols int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	scale := float32(1 / math.Sqrt(float64(cols)))
	out := make([][]float32, rows)
	for i := range out {
		out[i] = make([]float32, cols)
		for j := range out[i] {
			out[i][j] = (rng.Float32()*2 - 1) * scale
		}
	}
	return out
}
