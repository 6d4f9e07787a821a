package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/mmrun/internal/multimodal"
)

// parseInputs turns repeated --input values into runner inputs. Accepted
// forms:
//
//	text:<text>
//	tokens:<id>,<id>,...
//	image:<path>
//	audio:<path>@<batch>x<bins>x<frames>
//
// A value without a recognised prefix is taken as text.
func parseInputs(args []string) ([]multimodal.Input, error) {
	inputs := make([]multimodal.Input, 0, len(args))
	for _, arg := range args {
		in, err := parseInput(arg)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", arg, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func parseInput(arg string) (multimodal.Input, error) {
	kind, rest, ok := strings.Cut(arg, ":")
	if !ok {
		return multimodal.Text(arg), nil
	}
	switch kind {
	case "text":
		return multimodal.Text(rest), nil
	case "tokens":
		ids, err := parseTokenIDs(rest)
		if err != nil {
			return multimodal.Input{}, err
		}
		return multimodal.Tokens(ids), nil
	case "image":
		img, err := multimodal.LoadImage(rest)
		if err != nil {
			return multimodal.Input{}, err
		}
		return multimodal.FromImage(img), nil
	case "audio":
		path, shape, ok := cutLast(rest, "@")
		if !ok {
			return multimodal.Input{}, fmt.Errorf("audio input needs a shape suffix @<batch>x<bins>x<frames>")
		}
		dims, err := parseShape(shape, 3)
		if err != nil {
			return multimodal.Input{}, err
		}
		a, err := multimodal.LoadAudio(path, dims[0], dims[1], dims[2])
		if err != nil {
			return multimodal.Input{}, err
		}
		return multimodal.FromAudio(a), nil
	default:
		return multimodal.Text(arg), nil
	}
}

func parseTokenIDs(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("no token ids")
	}
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid token id %q", f)
		}
		ids[i] = id
	}
	return ids, nil
}

func parseShape(s string, n int) ([]int, error) {
	parts := strings.Split(s, "x")
	if len(parts) != n {
		return nil, fmt.Errorf("shape %q needs %d dimensions", s, n)
	}
	dims := make([]int, n)
	for i, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil || d <= 0 || d > multimodal.MaxDim {
			return nil, fmt.Errorf("invalid dimension %q in shape %q", p, s)
		}
		dims[i] = d
	}
	return dims, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
