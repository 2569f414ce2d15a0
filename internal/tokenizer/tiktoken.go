package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Encoding names accepted by NewTikToken.
const (
	EncodingCL100kBase = "cl100k_base"
	EncodingP50kBase   = "p50k_base"
	EncodingR50kBase   = "r50k_base"
)

// TikToken wraps pkoukk/tiktoken-go. The BPE tables download on first
// use unless TIKTOKEN_CACHE_DIR points at a warm cache.
type TikToken struct {
	enc  *tiktoken.Tiktoken
	name string
}

// NewTikToken loads the named encoding.
func NewTikToken(encoding string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errdefs.Wrap(err, "tokenizer", "NewTikToken", encoding)
	}
	return &TikToken{enc: enc, name: encoding}, nil
}

// NewTikTokenForModel loads the encoding a model name maps to
// ("gpt-4" and friends).
func NewTikTokenForModel(model string) (*TikToken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, errdefs.Wrap(err, "tokenizer", "NewTikTokenForModel", model)
	}
	return &TikToken{enc: enc, name: model}, nil
}

// Name returns the encoding or model name the tokenizer was built from.
func (t *TikToken) Name() string { return t.name }

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	ids := t.enc.Encode(text, nil, nil)
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = int(tok)
	}
	return t.enc.Decode(ids), nil
}

// VocabSize returns the vocabulary size of the underlying encoding.
func (t *TikToken) VocabSize() int {
	switch t.name {
	case EncodingCL100kBase:
		return 100256
	case EncodingP50kBase, EncodingR50kBase:
		return 50257
	default:
		return 100000
	}
}

// EosToken returns the <|endoftext|> token ID for the encoding, or -1.
func (t *TikToken) EosToken() int32 {
	switch t.name {
	case EncodingCL100kBase:
		return 100257
	case EncodingP50kBase, EncodingR50kBase:
		return 50256
	default:
		return -1
	}
}
