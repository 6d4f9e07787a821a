package runner

// GenerationConfig controls one generate call. It is passed by value and
// never modified by the Runner.
type GenerationConfig struct {
	// MaxNewTokens caps the tokens produced, including the one predicted by
	// prefill. Zero or below means "whatever context remains".
	MaxNewTokens int
	// SeqLen caps the total sequence length. Zero or below means unset.
	SeqLen int
	// Temperature is passed to the sampler unexamined.
	Temperature float32
	// Echo replays the last input before generation when it is text.
	Echo bool
	// Warming runs the full pipeline without user-visible output or report.
	Warming bool
	// NumBOS and NumEOS apply to the first input of a fresh sequence only.
	NumBOS int
	NumEOS int
	// IgnoreEOS disables the early stop on end-of-sequence tokens.
	IgnoreEOS bool
}

// DefaultGenerationConfig returns the defaults used when nothing is configured.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxNewTokens: -1,
		SeqLen:       -1,
		Temperature:  0.8,
		Echo:         true,
	}
}

// ResolveMaxNewTokens returns the number of tokens the next decode may
// produce given the context window and the positions already committed.
// One position is reserved for the token predicted by prefill, which the
// decode loop feeds back first, so an unset limit resolves to
// maxContextLen-pos-1. An explicit limit already counts that token as the
// first one emitted, so it is only clipped to maxContextLen-pos: a caller
// asking for n tokens gets n callbacks, and the last decoded token is never
// fed back, so the window is not overrun. The result is never negative.
func (c GenerationConfig) ResolveMaxNewTokens(maxContextLen, pos int64) int {
	limit := maxContextLen
	if c.SeqLen > 0 {
		limit = min(limit, int64(c.SeqLen))
	}
	remaining := limit - pos

	var result int64
	if c.MaxNewTokens > 0 {
		result = min(int64(c.MaxNewTokens), remaining)
	} else {
		result = remaining - 1
	}
	return int(max(result, 0))
}

// ConfigOptions is a partially specified GenerationConfig. Nil fields fall
// back to the defaults given to ResolveConfig.
type ConfigOptions struct {
	MaxNewTokens *int     `json:"max_new_tokens,omitempty" yaml:"max_new_tokens"`
	SeqLen       *int     `json:"seq_len,omitempty" yaml:"seq_len"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature"`
	Echo         *bool    `json:"echo,omitempty" yaml:"echo"`
	Warming      *bool    `json:"warming,omitempty" yaml:"warming"`
	NumBOS       *int     `json:"num_bos,omitempty" yaml:"num_bos"`
	NumEOS       *int     `json:"num_eos,omitempty" yaml:"num_eos"`
	IgnoreEOS    *bool    `json:"ignore_eos,omitempty" yaml:"ignore_eos"`
}

// MergeOptions returns base with every field set in over replaced.
func MergeOptions(base, over ConfigOptions) ConfigOptions {
	out := base
	if over.MaxNewTokens != nil {
		out.MaxNewTokens = over.MaxNewTokens
	}
	if over.SeqLen != nil {
		out.SeqLen = over.SeqLen
	}
	if over.Temperature != nil {
		out.Temperature = over.Temperature
	}
	if over.Echo != nil {
		out.Echo = over.Echo
	}
	if over.Warming != nil {
		out.Warming = over.Warming
	}
	if over.NumBOS != nil {
		out.NumBOS = over.NumBOS
	}
	if over.NumEOS != nil {
		out.NumEOS = over.NumEOS
	}
	if over.IgnoreEOS != nil {
		out.IgnoreEOS = over.IgnoreEOS
	}
	return out
}

// ResolveConfig layers opts over defaults, then over DefaultGenerationConfig.
func ResolveConfig(opts ConfigOptions, defaults ConfigOptions) GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.apply(defaults)
	cfg.apply(opts)
	return cfg
}

func (c *GenerationConfig) apply(o ConfigOptions) {
	if o.MaxNewTokens != nil {
		c.MaxNewTokens = *o.MaxNewTokens
	}
	if o.SeqLen != nil {
		c.SeqLen = *o.SeqLen
	}
	if o.Temperature != nil {
		c.Temperature = float32(*o.Temperature)
	}
	if o.Echo != nil {
		c.Echo = *o.Echo
	}
	if o.Warming != nil {
		c.Warming = *o.Warming
	}
	if o.NumBOS != nil && *o.NumBOS >= 0 {
		c.NumBOS = *o.NumBOS
	}
	if o.NumEOS != nil && *o.NumEOS >= 0 {
		c.NumEOS = *o.NumEOS
	}
	if o.IgnoreEOS != nil {
		c.IgnoreEOS = *o.IgnoreEOS
	}
}
