// Package tensor is the public surface of the tensor value model: typed
// n-dimensional buffers with reference-counted storage, and the
// insertion-ordered tensor map that pipeline units exchange.
//
// Example:
//
//	t, _ := tensor.New("input", tensor.Float32, tensor.Shape{1, 3, 224, 224}, tensor.LayoutNCHW)
//	m := tensor.NewMap()
//	_ = m.Set("input", t)
package tensor

import "github.com/quiver-ml/quiver/internal/tensor"

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Element types.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int8    DataType = tensor.Int8
	Int16   DataType = tensor.Int16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
	String  DataType = tensor.String
)

// Shape is a tensor's dimension list, outermost first.
type Shape = tensor.Shape

// MaxDims is the maximum supported tensor rank.
const MaxDims = tensor.MaxDims

// Layout tags the semantic ordering of tensor dimensions.
type Layout = tensor.Layout

// Layouts.
const (
	LayoutNCHW Layout = tensor.LayoutNCHW
	LayoutNHWC Layout = tensor.LayoutNHWC
	LayoutNC   Layout = tensor.LayoutNC
	LayoutN    Layout = tensor.LayoutN
)

// MemorySpace tags where a tensor's buffer lives.
type MemorySpace = tensor.MemorySpace

// Memory spaces.
const (
	MemCPU      MemorySpace = tensor.MemCPU
	MemGPU      MemorySpace = tensor.MemGPU
	MemNPU      MemorySpace = tensor.MemNPU
	MemShared   MemorySpace = tensor.MemShared
	MemExternal MemorySpace = tensor.MemExternal
)

// Tensor is a typed n-dimensional buffer.
type Tensor = tensor.Tensor

// Map is an insertion-ordered, unique-key tensor mapping.
type Map = tensor.Map

// New creates a tensor with a zero-initialized owned buffer.
func New(name string, dtype DataType, shape Shape, layout Layout) (*Tensor, error) {
	return tensor.New(name, dtype, shape, layout)
}

// FromBytes wraps an existing byte slice without copying.
func FromBytes(name string, dtype DataType, shape Shape, layout Layout,
	space MemorySpace, data []byte, owns bool) (*Tensor, error) {
	return tensor.FromBytes(name, dtype, shape, layout, space, data, owns)
}

// NewMap creates an empty tensor map.
func NewMap() *Map { return tensor.NewMap() }

// ConvertLayout produces a copy of t in the target layout.
func ConvertLayout(t *Tensor, target Layout) (*Tensor, error) {
	return tensor.ConvertLayout(t, target)
}
