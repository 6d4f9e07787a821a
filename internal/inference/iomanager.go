package inference

import (
	"fmt"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

// IOManager converts image and audio payloads into flat float32 features.
// Images are scaled to [0, 1] and shaped [1, C, H, W]; audio keeps its
// [batch, bins, frames] layout.
type IOManager struct{}

func (IOManager) Prepare(in multimodal.Input) ([]float32, []int, error) {
	switch in.Kind() {
	case multimodal.KindImage:
		img, _ := in.Image()
		if err := img.Validate(); err != nil {
			return nil, nil, err
		}
		features := make([]float32, len(img.Data))
		for i, px := range img.Data {
			features[i] = float32(px) / 255
		}
		return features, []int{1, img.Channels, img.Height, img.Width}, nil
	case multimodal.KindAudio:
		a, _ := in.Audio()
		if err := a.Validate(); err != nil {
			return nil, nil, err
		}
		features := append([]float32(nil), a.Data...)
		return features, []int{a.BatchSize, a.Bins, a.Frames}, nil
	case multimodal.KindText, multimodal.KindTokens:
		return nil, nil, fmt.Errorf("%s input has no features: %w", in.Kind(), ErrUnsupportedModality)
	default:
		return nil, nil, fmt.Errorf("%s input: %w", in.Kind(), ErrUnsupportedModality)
	}
}
