package multimodal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ReadImage decodes a PNG, JPEG, GIF, BMP or WebP image into an RGB Image.
func ReadImage(r io.Reader) (Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	if _, ok := shapeSize(cfg.Width, cfg.Height, 3); !ok {
		return Image{}, fmt.Errorf("decode %s image: size %dx%d exceeds limits", format, cfg.Width, cfg.Height)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Image{}, fmt.Errorf("decode %s image: empty bounds", format)
	}

	plane := w * h
	data := make([]uint8, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = uint8(cr >> 8)
			data[plane+i] = uint8(cg >> 8)
			data[2*plane+i] = uint8(cb >> 8)
		}
	}
	return Image{Width: w, Height: h, Channels: 3, Data: data}, nil
}

// LoadImage reads an image file from disk.
func LoadImage(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer f.Close()
	img, err := ReadImage(f)
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ReadAudio reads batch*bins*frames little-endian float32 values.
func ReadAudio(r io.Reader, batch, bins, frames int) (Audio, error) {
	a := Audio{BatchSize: batch, Bins: bins, Frames: frames}
	n, ok := shapeSize(batch, bins, frames)
	if !ok {
		return Audio{}, a.Validate()
	}
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Audio{}, fmt.Errorf("read audio features: %w", err)
	}
	a.Data = make([]float32, n)
	for i := range a.Data {
		a.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return a, nil
}

// LoadAudio reads a raw float32 feature file from disk.
func LoadAudio(path string, batch, bins, frames int) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, err
	}
	defer f.Close()
	a, err := ReadAudio(f, batch, bins, frames)
	if err != nil {
		return Audio{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
