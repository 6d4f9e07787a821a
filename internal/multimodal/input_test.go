package multimodal

import (
	"reflect"
	"testing"
)

func TestInputAccessorsMatchKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		in       Input
		kind     Kind
		textual  bool
		wantText string
	}{
		{name: "text", in: Text("hi"), kind: KindText, textual: true, wantText: "hi"},
		{name: "tokens", in: Tokens([]int{1, 2}), kind: KindTokens, textual: true},
		{name: "image", in: FromImage(Image{Width: 1, Height: 1, Channels: 1, Data: []uint8{0}}), kind: KindImage},
		{name: "audio", in: FromAudio(Audio{BatchSize: 1, Bins: 1, Frames: 1, Data: []float32{0}}), kind: KindAudio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Kind(); got != tc.kind {
				t.Fatalf("kind: got %v want %v", got, tc.kind)
			}
			if got := tc.in.IsTextual(); got != tc.textual {
				t.Fatalf("textual: got %v want %v", got, tc.textual)
			}
			text, ok := tc.in.Text()
			if ok != (tc.kind == KindText) || text != tc.wantText {
				t.Fatalf("text: got %q,%v", text, ok)
			}
			if _, ok := tc.in.Image(); ok != (tc.kind == KindImage) {
				t.Fatalf("image accessor ok=%v for %v", ok, tc.kind)
			}
			if _, ok := tc.in.Audio(); ok != (tc.kind == KindAudio) {
				t.Fatalf("audio accessor ok=%v for %v", ok, tc.kind)
			}
		})
	}
}

func TestTokensAreCopied(t *testing.T) {
	t.Parallel()

	ids := []int{5, 6, 7}
	in := Tokens(ids)
	ids[0] = 99

	got, ok := in.Tokens()
	if !ok {
		t.Fatalf("expected tokens input")
	}
	if !reflect.DeepEqual(got, []int{5, 6, 7}) {
		t.Fatalf("tokens mutated through caller slice: %v", got)
	}
	got[1] = 42
	again, _ := in.Tokens()
	if again[1] != 6 {
		t.Fatalf("tokens mutated through returned slice: %v", again)
	}
}

func TestImageValidate(t *testing.T) {
	t.Parallel()

	ok := Image{Width: 2, Height: 2, Channels: 3, Data: make([]uint8, 12)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	short := Image{Width: 2, Height: 2, Channels: 3, Data: make([]uint8, 11)}
	if err := short.Validate(); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if err := (Image{}).Validate(); err == nil {
		t.Fatalf("expected shape error")
	}
}

func TestAudioValidate(t *testing.T) {
	t.Parallel()

	a := Audio{BatchSize: 1, Bins: 2, Frames: 3, Data: make([]float32, 6)}
	if err := a.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Data = a.Data[:5]
	if err := a.Validate(); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestShapeValidateRejectsOversizedDims(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
	}{
		{"audio product wraps to zero", Audio{BatchSize: 1 << 24, Bins: 1 << 40, Frames: 1}.Validate()},
		{"audio product wraps negative", Audio{BatchSize: 1 << 31, Bins: 1 << 31, Frames: 2}.Validate()},
		{"audio dim over limit", Audio{BatchSize: 1, Bins: MaxDim + 1, Frames: 1, Data: make([]float32, MaxDim+1)}.Validate()},
		{"audio elements over limit", Audio{BatchSize: MaxDim, Bins: MaxDim, Frames: 1}.Validate()},
		{"image product wraps to zero", Image{Width: 1 << 32, Height: 1 << 32, Channels: 1}.Validate()},
		{"image negative dim", Image{Width: -1, Height: -1, Channels: 1, Data: []uint8{0}}.Validate()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatalf("expected shape error")
			}
		})
	}
}

func TestShapeSize(t *testing.T) {
	t.Parallel()

	if n, ok := shapeSize(2, 3, 4); !ok || n != 24 {
		t.Fatalf("shapeSize(2,3,4) = %d,%v", n, ok)
	}
	if n, ok := shapeSize(MaxDim, 1024); !ok || n != MaxElements {
		t.Fatalf("shapeSize at element limit = %d,%v", n, ok)
	}
	if _, ok := shapeSize(MaxDim, 1025); ok {
		t.Fatalf("expected element limit to be enforced")
	}
	if _, ok := shapeSize(0, 5); ok {
		t.Fatalf("expected zero dimension to be rejected")
	}
}
