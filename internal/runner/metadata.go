package runner

import "fmt"

// Metadata keys exported by model cards. The names match the method names
// exported alongside the model program.
const (
	KeyMaxContextLen = "get_max_context_len"
	KeyMaxSeqLen     = "get_max_seq_len"
	KeyBOSID         = "get_bos_id"
	KeyEOSID         = "get_eos_id"
	KeyVocabSize     = "get_vocab_size"
	KeyUseKVCache    = "use_kv_cache"
)

// Metadata is the read-only model description supplied at construction.
type Metadata map[string]int64

// Lookup returns the value for key and whether it is present.
func (m Metadata) Lookup(key string) (int64, bool) {
	v, ok := m[key]
	return v, ok
}

// MaxContextLen returns the context window size. It is required.
func (m Metadata) MaxContextLen() (int64, error) {
	v, ok := m[KeyMaxContextLen]
	if !ok {
		return 0, fmt.Errorf("metadata: missing %s", KeyMaxContextLen)
	}
	if v <= 0 {
		return 0, fmt.Errorf("metadata: %s must be positive, got %d", KeyMaxContextLen, v)
	}
	return v, nil
}

// Clone returns a copy so callers cannot mutate the Runner's view.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
