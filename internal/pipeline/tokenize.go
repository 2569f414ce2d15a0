package pipeline

import (
	"context"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
	"github.com/quiver-ml/quiver/internal/tokenizer"
)

// Default keys for the tokenize preprocessing unit.
const (
	TextKey   = "text"
	TokensKey = "tokens"
)

// NewTokenizeUnit builds a preprocessing unit that reads UTF-8 bytes
// from the TextKey tensor, encodes them with tok, and produces an int32
// token tensor of shape [1, n] under TokensKey.
func NewTokenizeUnit(name string, tok tokenizer.Tokenizer, opts ...FunctionOption) (*FunctionUnit, error) {
	if tok == nil {
		return nil, errdefs.InvalidArgumentf("unit %q: nil tokenizer", name)
	}

	fn := func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
		text := in.Get(TextKey)
		if text.DType() != tensor.Uint8 {
			return nil, errdefs.InvalidArgumentf(
				"unit %q: %s tensor must be uint8 bytes, got %s", name, TextKey, text.DType())
		}

		ids, err := tok.Encode(string(text.Bytes()))
		if err != nil {
			return nil, errdefs.Wrap(err, "TokenizeUnit", "Execute", name)
		}
		if len(ids) == 0 {
			// The shape model has no zero-length axis; empty text is a
			// caller error.
			return nil, errdefs.InvalidArgumentf("unit %q: text produced no tokens", name)
		}

		toks, err := tensor.New(TokensKey, tensor.Int32, tensor.Shape{1, len(ids)}, tensor.LayoutNC)
		if err != nil {
			return nil, err
		}
		copy(toks.AsInt32(), ids)

		out := tensor.NewMap()
		if err := out.Set(TokensKey, toks); err != nil {
			return nil, err
		}
		return out, nil
	}

	opts = append([]FunctionOption{WithRequires(TextKey), WithProduces(TokensKey)}, opts...)
	return NewFunctionUnit(name, fn, opts...)
}

// TextTensor wraps a string's UTF-8 bytes as a uint8 tensor suitable for
// a tokenize unit's input.
func TextTensor(text string) (*tensor.Tensor, error) {
	if text == "" {
		return nil, errdefs.InvalidArgumentf("empty text")
	}
	return tensor.FromBytes(TextKey, tensor.Uint8, tensor.Shape{len(text)},
		tensor.LayoutN, tensor.MemCPU, []byte(text), true)
}
