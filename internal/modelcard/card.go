// Package modelcard reads the YAML files that describe a runnable model:
// its metadata, tokenizer, toy model dimensions and generation defaults.
package modelcard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
)

// Card is one model description.
type Card struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	MaxContextLen int64  `yaml:"max_context_len"`

	// Metadata holds extra metadata keys such as get_bos_id. Values here win
	// over the ones derived from the tokenizer.
	Metadata map[string]int64 `yaml:"metadata"`

	Tokenizer TokenizerSpec        `yaml:"tokenizer"`
	Model     ModelSpec            `yaml:"model"`
	Sampling  SamplingSpec         `yaml:"sampling"`
	Defaults  runner.ConfigOptions `yaml:"defaults"`

	// Path is the file the card was read from.
	Path string `yaml:"-"`
}

type TokenizerSpec struct {
	// Kind selects the tokenizer. Only "byte" is built in.
	Kind     string `yaml:"kind"`
	ExtraEOS []int  `yaml:"extra_eos"`
}

type ModelSpec struct {
	Hidden      int   `yaml:"hidden"`
	Seed        int64 `yaml:"seed"`
	PatchSize   int   `yaml:"patch_size"`
	FrameStride int   `yaml:"frame_stride"`
}

type SamplingSpec struct {
	Seed int64   `yaml:"seed"`
	TopK int     `yaml:"top_k"`
	TopP float32 `yaml:"top_p"`
}

// Parse decodes a card and validates it. Unknown fields are rejected.
func Parse(r io.Reader) (*Card, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Card
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("model card is empty")
		}
		return nil, fmt.Errorf("parse model card: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads the card at path.
func Load(path string) (*Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

func (c *Card) Validate() error {
	if c.MaxContextLen <= 0 {
		return fmt.Errorf("max_context_len must be positive, got %d", c.MaxContextLen)
	}
	switch strings.ToLower(c.Tokenizer.Kind) {
	case "", "byte":
	default:
		return fmt.Errorf("unsupported tokenizer kind %q", c.Tokenizer.Kind)
	}
	if c.Model.Hidden < 0 {
		return fmt.Errorf("model.hidden must not be negative, got %d", c.Model.Hidden)
	}
	if p := c.Sampling.TopP; p < 0 || p > 1 {
		return fmt.Errorf("sampling.top_p must be in [0, 1], got %g", p)
	}
	return nil
}

// NewTokenizer builds the tokenizer named by the card.
func (c *Card) NewTokenizer() tokenizer.Tokenizer {
	return tokenizer.NewByteTokenizer(c.Tokenizer.ExtraEOS...)
}

// RunnerMetadata returns the metadata map handed to the runner. BOS, EOS and
// vocabulary size come from tok unless the card overrides them.
func (c *Card) RunnerMetadata(tok tokenizer.Tokenizer) runner.Metadata {
	md := runner.Metadata{
		runner.KeyMaxContextLen: c.MaxContextLen,
		runner.KeyMaxSeqLen:     c.MaxContextLen,
		runner.KeyVocabSize:     int64(tok.VocabSize()),
		runner.KeyBOSID:         int64(tok.BOSID()),
		runner.KeyUseKVCache:    1,
	}
	if eos := tok.EOSIDs(); len(eos) > 0 {
		md[runner.KeyEOSID] = int64(eos[0])
	}
	for k, v := range c.Metadata {
		md[k] = v
	}
	md[runner.KeyMaxContextLen] = c.MaxContextLen
	return md
}

// Entry is a discovered card file.
type Entry struct {
	Name string
	Path string
}

// Discover lists the .yaml and .yml files in dir, sorted by path. Cards are
// not parsed.
func Discover(dir string) ([]Entry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		out = append(out, Entry{
			Name: strings.TrimSuffix(name, filepath.Ext(name)),
			Path: filepath.Join(dir, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
