package toy

import (
	"context"
	"fmt"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

// Encode turns image or audio features into embedding rows of width Hidden.
//
// Images ([1, C, H, W]) produce one row per PatchSize square, holding the
// per-channel patch mean projected to Hidden. Audio ([B, bins, frames])
// produces one row per FrameStride frames per batch item, holding the
// per-bin window mean projected the same way.
func (m *ToyLM) Encode(ctx context.Context, kind multimodal.Kind, features []float32, shape []int) ([][]float32, error) {
	if !m.loaded {
		return nil, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch kind {
	case multimodal.KindImage:
		return m.encodeImage(features, shape)
	case multimodal.KindAudio:
		return m.encodeAudio(features, shape)
	case multimodal.KindText, multimodal.KindTokens:
		return nil, fmt.Errorf("toy: no encoder for %s", kind)
	default:
		return nil, fmt.Errorf("toy: no encoder for %s", kind)
	}
}

func (m *ToyLM) encodeImage(features []float32, shape []int) ([][]float32, error) {
	if len(shape) != 4 || shape[0] != 1 {
		return nil, fmt.Errorf("toy: image shape %v, want [1 C H W]", shape)
	}
	c, h, w := shape[1], shape[2], shape[3]
	if len(features) != c*h*w {
		return nil, fmt.Errorf("toy: image features %d, shape needs %d", len(features), c*h*w)
	}
	p := m.cfg.PatchSize
	proj := m.projection(multimodal.KindImage, c)

	var rows [][]float32
	for py := 0; py < h; py += p {
		for px := 0; px < w; px += p {
			mean := make([]float32, c)
			ye, xe := min(py+p, h), min(px+p, w)
			count := float32((ye - py) * (xe - px))
			for ch := range c {
				var sum float32
				for y := py; y < ye; y++ {
					for x := px; x < xe; x++ {
						sum += features[ch*h*w+y*w+x]
					}
				}
				mean[ch] = sum / count
			}
			rows = append(rows, project(mean, proj))
		}
	}
	return rows, nil
}

func (m *ToyLM) encodeAudio(features []float32, shape []int) ([][]float32, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("toy: audio shape %v, want [B bins frames]", shape)
	}
	batch, bins, frames := shape[0], shape[1], shape[2]
	if len(features) != batch*bins*frames {
		return nil, fmt.Errorf("toy: audio features %d, shape needs %d", len(features), batch*bins*frames)
	}
	stride := m.cfg.FrameStride
	proj := m.projection(multimodal.KindAudio, bins)

	var rows [][]float32
	for b := range batch {
		base := b * bins * frames
		for f := 0; f < frames; f += stride {
			fe := min(f+stride, frames)
			mean := make([]float32, bins)
			for k := range bins {
				var sum float32
				for t := f; t < fe; t++ {
					sum += features[base+k*frames+t]
				}
				mean[k] = sum / float32(fe-f)
			}
			rows = append(rows, project(mean, proj))
		}
	}
	return rows, nil
}

// projection returns the [dim][Hidden] matrix for a modality, creating it
// from the model seed on first use.
func (m *ToyLM) projection(kind multimodal.Kind, dim int) [][]float32 {
	key := projKey{kind: kind, dim: dim}
	if p, ok := m.proj[key]; ok {
		return p
	}
	p := randMatrix(dim, m.cfg.Hidden, m.cfg.Seed+int64(kind)*1000+int64(dim))
	m.proj[key] = p
	return p
}

func project(v []float32, proj [][]float32) []float32 {
	out := make([]float32, len(proj[0]))
	for i, x := range v {
		for j, w := range proj[i] {
			out[j] += x * w
		}
	}
	return out
}
