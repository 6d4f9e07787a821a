package inference

import (
	"slices"

	"github.com/samcharles93/mmrun/internal/runner"
	"github.com/samcharles93/mmrun/internal/tokenizer"
)

// BuildStopTokens returns the end of sequence ids: the metadata EOS id when
// present, followed by the tokenizer's own, without duplicates or negatives.
func BuildStopTokens(tok tokenizer.Tokenizer, md runner.Metadata) []int {
	var stop []int
	add := func(id int) {
		if id >= 0 && !slices.Contains(stop, id) {
			stop = append(stop, id)
		}
	}
	if id, ok := md.Lookup(runner.KeyEOSID); ok {
		add(int(id))
	}
	if tok != nil {
		for _, id := range tok.EOSIDs() {
			add(id)
		}
	}
	return stop
}
