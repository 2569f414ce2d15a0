// Package tokenizer converts text to and from token-ID sequences for
// language-model preprocessing units.
package tokenizer

// Tokenizer encodes text into token IDs and back.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)
	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)
	// VocabSize returns the vocabulary size.
	VocabSize() int
	// EosToken returns the end-of-sequence token ID, or -1.
	EosToken() int32
}
