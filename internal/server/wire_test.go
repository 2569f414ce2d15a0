package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

func TestFloat32DataWidensIntegers(t *testing.T) {
	ten, err := tensor.New("ids", tensor.Int32, tensor.Shape{4}, tensor.LayoutN)
	require.NoError(t, err)
	copy(ten.AsInt32(), []int32{1, -2, 3, -4})

	data, err := float32Data(ten)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 3, -4}, data)
}

func TestFloat32DataRejectsStrings(t *testing.T) {
	ten, err := tensor.New("s", tensor.String, tensor.Shape{1}, tensor.LayoutN)
	require.NoError(t, err)
	_, err = float32Data(ten)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestFloat16ToFloat32(t *testing.T) {
	assert.Equal(t, float32(0), float16ToFloat32(0x0000))
	assert.Equal(t, float32(1), float16ToFloat32(0x3c00))
	assert.Equal(t, float32(-2), float16ToFloat32(0xc000))
	assert.Equal(t, float32(0.5), float16ToFloat32(0x3800))
	// Smallest subnormal: 2^-24.
	assert.InDelta(t, 5.9604645e-8, float16ToFloat32(0x0001), 1e-12)
}

func TestLayoutFor(t *testing.T) {
	assert.Equal(t, tensor.LayoutNCHW, layoutFor(tensor.Shape{1, 3, 224, 224}))
	assert.Equal(t, tensor.LayoutNC, layoutFor(tensor.Shape{1, 8}))
	assert.Equal(t, tensor.LayoutN, layoutFor(tensor.Shape{5}))
}
