package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

func newTestTensor(t *testing.T, name string) *Tensor {
	t.Helper()
	tn, err := New(name, Float32, Shape{2}, LayoutN)
	require.NoError(t, err)
	return tn
}

func TestMapSetGet(t *testing.T) {
	m := NewMap()
	a := newTestTensor(t, "a")

	require.NoError(t, m.Set("a", a))
	assert.Same(t, a, m.Get("a"))
	assert.True(t, m.Has("a"))
	assert.Equal(t, 1, m.Len())

	// Overwrite keeps the original position.
	b := newTestTensor(t, "b")
	require.NoError(t, m.Set("c", newTestTensor(t, "c")))
	require.NoError(t, m.Set("a", b))
	assert.Same(t, b, m.Get("a"))
	assert.Equal(t, []string{"a", "c"}, m.Keys())
}

func TestMapRejectsBadArgs(t *testing.T) {
	m := NewMap()
	assert.ErrorIs(t, m.Set("", newTestTensor(t, "x")), errdefs.ErrInvalidArgument)
	assert.ErrorIs(t, m.Set("x", nil), errdefs.ErrInvalidArgument)
	assert.Equal(t, 0, m.Len())
}

func TestMapRemovePreservesOrder(t *testing.T) {
	m := NewMap()
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, m.Set(k, newTestTensor(t, k)))
	}

	m.Remove("b")
	assert.False(t, m.Has("b"))
	assert.Equal(t, []string{"a", "c", "d"}, m.Keys())
	assert.Equal(t, "c", m.Get("c").Name())

	// Removing an absent key is a no-op.
	m.Remove("zz")
	assert.Equal(t, 3, m.Len())
}

func TestMapCloneIsShallow(t *testing.T) {
	m := NewMap()
	a := newTestTensor(t, "a")
	require.NoError(t, m.Set("a", a))

	dup := m.Clone()
	assert.Same(t, a, dup.Get("a"))

	// Mutating the clone's entry set does not touch the source.
	require.NoError(t, dup.Set("b", newTestTensor(t, "b")))
	assert.False(t, m.Has("b"))
}

func TestMapClearKeepsTensorsAlive(t *testing.T) {
	m := NewMap()
	a := newTestTensor(t, "a")
	require.NoError(t, m.Set("a", a))

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.NotNil(t, a.Bytes())
	assert.Equal(t, 1, a.RefCount())
}

func TestMapRangeOrder(t *testing.T) {
	m := NewMap()
	for _, k := range []string{"x", "y", "z"} {
		require.NoError(t, m.Set(k, newTestTensor(t, k)))
	}

	var seen []string
	m.Range(func(key string, _ *Tensor) bool {
		seen = append(seen, key)
		return true
	})
	assert.Equal(t, []string{"x", "y", "z"}, seen)
}

func TestMapMergeInto(t *testing.T) {
	src, dst := NewMap(), NewMap()
	require.NoError(t, src.Set("a", newTestTensor(t, "a")))
	require.NoError(t, dst.Set("b", newTestTensor(t, "b")))

	require.NoError(t, src.MergeInto(dst))
	assert.Equal(t, []string{"b", "a"}, dst.Keys())
}
