// Package multimodal defines the input units a generation call is built from.
package multimodal

import (
	"fmt"
	"math/bits"
)

// Kind tags the payload carried by an Input.
type Kind uint8

const (
	KindText Kind = iota + 1
	KindTokens
	KindImage
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTokens:
		return "tokens"
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Shape limits for image and audio payloads.
const (
	MaxDim      = 1 << 16
	MaxElements = 1 << 26
)

// shapeSize multiplies dims, reporting false when any dimension is outside
// [1, MaxDim] or the product exceeds MaxElements.
func shapeSize(dims ...int) (int, bool) {
	n := uint64(1)
	for _, d := range dims {
		if d <= 0 || d > MaxDim {
			return 0, false
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > MaxElements {
			return 0, false
		}
		n = lo
	}
	return int(n), true
}

// Image is a raw image in CHW layout with 8-bit channels.
type Image struct {
	Width    int
	Height   int
	Channels int
	Data     []uint8
}

// Validate reports whether the pixel buffer matches the declared shape.
func (img Image) Validate() error {
	want, ok := shapeSize(img.Width, img.Height, img.Channels)
	if !ok {
		return fmt.Errorf("invalid image shape %dx%dx%d", img.Channels, img.Height, img.Width)
	}
	if len(img.Data) != want {
		return fmt.Errorf("image data has %d bytes, shape needs %d", len(img.Data), want)
	}
	return nil
}

// Audio is a batch of preprocessed audio features (for example mel bins by frames).
type Audio struct {
	BatchSize int
	Bins      int
	Frames    int
	Data      []float32
}

// Validate reports whether the feature buffer matches the declared shape.
func (a Audio) Validate() error {
	want, ok := shapeSize(a.BatchSize, a.Bins, a.Frames)
	if !ok {
		return fmt.Errorf("invalid audio shape %dx%dx%d", a.BatchSize, a.Bins, a.Frames)
	}
	if len(a.Data) != want {
		return fmt.Errorf("audio data has %d values, shape needs %d", len(a.Data), want)
	}
	return nil
}

// Input is one unit of a generation request. Exactly one payload is set,
// selected by Kind. Inputs are built with the constructors below and are not
// modified afterwards.
type Input struct {
	kind   Kind
	text   string
	tokens []int
	image  Image
	audio  Audio
}

func Text(s string) Input {
	return Input{kind: KindText, text: s}
}

// Tokens wraps a raw token id sequence. The slice is copied.
func Tokens(ids []int) Input {
	return Input{kind: KindTokens, tokens: append([]int(nil), ids...)}
}

func FromImage(img Image) Input {
	return Input{kind: KindImage, image: img}
}

func FromAudio(a Audio) Input {
	return Input{kind: KindAudio, audio: a}
}

func (in Input) Kind() Kind { return in.kind }

func (in Input) IsText() bool { return in.kind == KindText }

func (in Input) IsTokens() bool { return in.kind == KindTokens }

// IsTextual reports whether the input is text or a raw token sequence, i.e.
// whether the encoder can apply BOS/EOS markers to it directly.
func (in Input) IsTextual() bool {
	return in.kind == KindText || in.kind == KindTokens
}

// Text returns the text payload and whether the input is text.
func (in Input) Text() (string, bool) {
	return in.text, in.kind == KindText
}

// Tokens returns a copy of the token payload and whether the input is a token sequence.
func (in Input) Tokens() ([]int, bool) {
	if in.kind != KindTokens {
		return nil, false
	}
	return append([]int(nil), in.tokens...), true
}

func (in Input) Image() (Image, bool) {
	return in.image, in.kind == KindImage
}

func (in Input) Audio() (Audio, bool) {
	return in.audio, in.kind == KindAudio
}

func (in Input) String() string {
	switch in.kind {
	case KindText:
		return fmt.Sprintf("text(%d bytes)", len(in.text))
	case KindTokens:
		return fmt.Sprintf("tokens(%d)", len(in.tokens))
	case KindImage:
		return fmt.Sprintf("image(%dx%dx%d)", in.image.Channels, in.image.Height, in.image.Width)
	case KindAudio:
		return fmt.Sprintf("audio(%dx%dx%d)", in.audio.BatchSize, in.audio.Bins, in.audio.Frames)
	default:
		return "invalid"
	}
}
