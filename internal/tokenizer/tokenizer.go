package tokenizer

// Tokenizer converts between text and token ids.
//
// Encode prepends numBOS begin-of-sequence markers and appends numEOS
// end-of-sequence markers. Decode returns the text fragment for cur given the
// previously emitted token prev, so byte-fallback and space-prefix rules can
// look one token back.
type Tokenizer interface {
	Encode(text string, numBOS, numEOS int) ([]int, error)
	Decode(prev, cur int) (string, error)
	VocabSize() int
	BOSID() int
	EOSIDs() []int
}
