package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

func TestNewByteSize(t *testing.T) {
	tests := []struct {
		name  string
		dtype DataType
		shape Shape
		want  int
	}{
		{"float32 image", Float32, Shape{1, 3, 224, 224}, 1 * 3 * 224 * 224 * 4},
		{"float64 matrix", Float64, Shape{2, 3}, 48},
		{"float16 vector", Float16, Shape{10}, 20},
		{"int8 vector", Int8, Shape{7}, 7},
		{"int16 matrix", Int16, Shape{4, 4}, 32},
		{"int64 scalar shape", Int64, Shape{1}, 8},
		{"uint8 volume", Uint8, Shape{2, 2, 2}, 8},
		{"bool flags", Bool, Shape{5}, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tn, err := New(tc.name, tc.dtype, tc.shape, LayoutN)
			require.NoError(t, err)
			assert.Equal(t, tc.want, tn.ByteSize())
			assert.Equal(t, tc.want, len(tn.Bytes()))
			assert.Equal(t, tc.shape.NumElements()*tc.dtype.Size(), tn.ByteSize())
		})
	}
}

func TestNewRejectsInvalidShape(t *testing.T) {
	_, err := New("bad", Float32, Shape{1, -3}, LayoutNC)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)

	_, err = New("deep", Float32, Shape{1, 1, 1, 1, 1, 1, 1, 1, 1}, LayoutN)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestReshape(t *testing.T) {
	tn, err := New("act", Float32, Shape{1, 3, 224, 224}, LayoutNCHW)
	require.NoError(t, err)

	require.NoError(t, tn.Reshape(Shape{1, 150528}))
	assert.True(t, tn.Shape().Equal(Shape{1, 150528}))

	err = tn.Reshape(Shape{1, 3, 224, 223})
	assert.ErrorIs(t, err, errdefs.ErrShapeMismatch)
	// Failed reshape leaves the tensor unchanged.
	assert.True(t, tn.Shape().Equal(Shape{1, 150528}))
}

func TestCloneIsBufferIndependent(t *testing.T) {
	src, err := New("src", Uint8, Shape{4}, LayoutN)
	require.NoError(t, err)
	copy(src.AsUint8(), []uint8{1, 2, 3, 4})

	dup := src.Clone()
	dup.AsUint8()[0] = 99

	assert.Equal(t, uint8(1), src.AsUint8()[0])
	assert.Equal(t, uint8(99), dup.AsUint8()[0])
	assert.True(t, dup.OwnsData())
}

func TestFromBytes(t *testing.T) {
	data := make([]byte, 6*4)
	tn, err := FromBytes("wrapped", Float32, Shape{2, 3}, LayoutNC, MemExternal, data, false)
	require.NoError(t, err)
	assert.False(t, tn.OwnsData())
	assert.Equal(t, MemExternal, tn.Space())

	// Size mismatch is rejected.
	_, err = FromBytes("short", Float32, Shape{2, 3}, LayoutNC, MemCPU, make([]byte, 5), true)
	assert.ErrorIs(t, err, errdefs.ErrShapeMismatch)

	_, err = FromBytes("nil", Float32, Shape{2, 3}, LayoutNC, MemCPU, nil, true)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestRetainRelease(t *testing.T) {
	tn, err := New("rc", Float32, Shape{2}, LayoutN)
	require.NoError(t, err)
	assert.Equal(t, 1, tn.RefCount())

	view := tn.Retain()
	assert.Equal(t, 2, tn.RefCount())
	assert.Equal(t, 2, view.RefCount())

	view.Release()
	assert.Equal(t, 1, tn.RefCount())
	assert.NotNil(t, tn.Bytes())

	tn.Release()
	assert.Nil(t, tn.Bytes())
}

func TestReleaseNeverFreesExternalBuffers(t *testing.T) {
	data := make([]byte, 8)
	tn, err := FromBytes("pool", Float64, Shape{1}, LayoutN, MemExternal, data, false)
	require.NoError(t, err)

	tn.Release()
	// The external buffer is dropped, not freed.
	assert.NotNil(t, tn.Bytes())
}

func TestTypedViews(t *testing.T) {
	tn, err := New("ints", Int64, Shape{3}, LayoutN)
	require.NoError(t, err)

	ids := tn.AsInt64()
	ids[0], ids[1], ids[2] = 10, 20, 30
	assert.Equal(t, []int64{10, 20, 30}, tn.AsInt64())

	assert.Panics(t, func() { tn.AsFloat32() })
}
