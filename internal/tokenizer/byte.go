package tokenizer

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Byte-level vocabulary layout: ids 0-255 are raw bytes, followed by the
// special tokens.
const (
	ByteBOS = 256
	ByteEOS = 257
	BytePAD = 258

	ByteVocabSize = 259
)

var ErrUnknownToken = errors.New("unknown token id")

// ByteTokenizer is a byte-level tokenizer. Input is normalized to NFC and
// then every byte becomes one token, so normalized text round-trips exactly.
type ByteTokenizer struct {
	eos []int
}

// NewByteTokenizer returns a byte tokenizer. Extra end-of-sequence ids may be
// supplied; ByteEOS is always included.
func NewByteTokenizer(extraEOS ...int) *ByteTokenizer {
	eos := []int{ByteEOS}
	for _, id := range extraEOS {
		if !slices.Contains(eos, id) {
			eos = append(eos, id)
		}
	}
	return &ByteTokenizer{eos: eos}
}

func (t *ByteTokenizer) Encode(text string, numBOS, numEOS int) ([]int, error) {
	if numBOS < 0 || numEOS < 0 {
		return nil, fmt.Errorf("negative marker count (bos=%d eos=%d)", numBOS, numEOS)
	}
	text = norm.NFC.String(text)
	ids := make([]int, 0, numBOS+len(text)+numEOS)
	for range numBOS {
		ids = append(ids, ByteBOS)
	}
	for i := 0; i < len(text); i++ {
		ids = append(ids, int(text[i]))
	}
	for range numEOS {
		ids = append(ids, ByteEOS)
	}
	return ids, nil
}

func (t *ByteTokenizer) Decode(_, cur int) (string, error) {
	switch {
	case cur >= 0 && cur < 256:
		return string([]byte{byte(cur)}), nil
	case cur == ByteBOS, cur == ByteEOS, cur == BytePAD:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownToken, cur)
	}
}

func (t *ByteTokenizer) VocabSize() int { return ByteVocabSize }

func (t *ByteTokenizer) BOSID() int { return ByteBOS }

func (t *ByteTokenizer) EOSIDs() []int { return append([]int(nil), t.eos...) }

// DecodeAll concatenates the fragments of ids, skipping special tokens.
func DecodeAll(tok Tokenizer, ids []int) (string, error) {
	var out []byte
	prev := tok.BOSID()
	for _, id := range ids {
		piece, err := tok.Decode(prev, id)
		if err != nil {
			return "", err
		}
		out = append(out, piece...)
		prev = id
	}
	return string(out), nil
}
