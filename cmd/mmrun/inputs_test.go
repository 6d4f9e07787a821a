package main

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

func TestParseInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg  string
		kind multimodal.Kind
	}{
		{"text:hello: world", multimodal.KindText},
		{"plain prompt", multimodal.KindText},
		{"what:is this", multimodal.KindText},
		{"tokens:1,2, 3", multimodal.KindTokens},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			t.Parallel()

			in, err := parseInput(tt.arg)
			if err != nil {
				t.Fatalf("parseInput: %v", err)
			}
			if in.Kind() != tt.kind {
				t.Fatalf("kind = %v, want %v", in.Kind(), tt.kind)
			}
		})
	}

	in, _ := parseInput("text:hello: world")
	if text, _ := in.Text(); text != "hello: world" {
		t.Fatalf("text = %q", text)
	}
	in, _ = parseInput("tokens:1,2, 3")
	if ids, _ := in.Tokens(); !reflect.DeepEqual(ids, []int{1, 2, 3}) {
		t.Fatalf("tokens = %v", ids)
	}
}

func TestParseInputErrors(t *testing.T) {
	t.Parallel()

	for _, arg := range []string{
		"tokens:",
		"tokens:1,x",
		"tokens:-4",
		"image:/does/not/exist.png",
		"audio:/tmp/a.bin",
		"audio:/tmp/a.bin@1x2",
		"audio:/tmp/a.bin@1x0x2",
		"audio:/tmp/a.bin@16777216x1099511627776x1",
	} {
		if _, err := parseInputs([]string{arg}); err == nil {
			t.Fatalf("expected error for %q", arg)
		}
	}
}

func TestParseShapeRejectsOversizedDims(t *testing.T) {
	t.Parallel()

	if _, err := parseShape("1x65537x1", 3); err == nil {
		t.Fatalf("expected dimension limit error")
	}
	dims, err := parseShape("1x65536x1", 3)
	if err != nil || dims[1] != 65536 {
		t.Fatalf("parseShape at limit = %v, %v", dims, err)
	}
}

func TestParseAudioInput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feat@v1.bin")
	buf := make([]byte, 4*6)
	for i := range 6 {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(i)))
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write features: %v", err)
	}

	in, err := parseInput("audio:" + path + "@1x2x3")
	if err != nil {
		t.Fatalf("parseInput: %v", err)
	}
	a, ok := in.Audio()
	if !ok {
		t.Fatalf("expected audio input, got %v", in.Kind())
	}
	if a.BatchSize != 1 || a.Bins != 2 || a.Frames != 3 || a.Data[5] != 5 {
		t.Fatalf("unexpected audio %+v", a)
	}
}
