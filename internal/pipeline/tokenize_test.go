package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// wordTokenizer is a deterministic test tokenizer: one token per byte.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) ([]int32, error) {
	ids := make([]int32, len(text))
	for i := range text {
		ids[i] = int32(text[i])
	}
	return ids, nil
}

func (wordTokenizer) Decode(tokens []int32) (string, error) {
	b := make([]byte, len(tokens))
	for i, tok := range tokens {
		b[i] = byte(tok)
	}
	return string(b), nil
}

func (wordTokenizer) VocabSize() int  { return 256 }
func (wordTokenizer) EosToken() int32 { return -1 }

func TestTokenizeUnit(t *testing.T) {
	u, err := NewTokenizeUnit("tok", wordTokenizer{})
	require.NoError(t, err)
	assert.Equal(t, []string{TextKey}, u.Requires())
	assert.Equal(t, []string{TokensKey}, u.Produces())

	text, err := TextTensor("hi")
	require.NoError(t, err)
	in := tensor.NewMap()
	require.NoError(t, in.Set(TextKey, text))

	out, err := u.Execute(context.Background(), in)
	require.NoError(t, err)
	toks := out.Get(TokensKey)
	require.NotNil(t, toks)
	assert.True(t, toks.Shape().Equal(tensor.Shape{1, 2}))
	assert.Equal(t, []int32{'h', 'i'}, toks.AsInt32())
}

func TestTokenizeUnitMissingText(t *testing.T) {
	u, err := NewTokenizeUnit("tok", wordTokenizer{})
	require.NoError(t, err)
	_, err = u.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrMissingInput)
}

func TestTokenizeUnitWrongDType(t *testing.T) {
	u, err := NewTokenizeUnit("tok", wordTokenizer{})
	require.NoError(t, err)

	wrong, err := tensor.New(TextKey, tensor.Float32, tensor.Shape{4}, tensor.LayoutN)
	require.NoError(t, err)
	in := tensor.NewMap()
	require.NoError(t, in.Set(TextKey, wrong))

	_, err = u.Execute(context.Background(), in)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestTextTensorRejectsEmpty(t *testing.T) {
	_, err := TextTensor("")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}
