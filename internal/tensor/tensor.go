package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// buffer is a reference-counted byte buffer shared between tensor views.
// Buffers wrapping external memory (owns == false) are never freed here;
// reaching refcount zero only drops the reference.
type buffer struct {
	data     []byte
	owns     bool
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

func newBuffer(data []byte, owns bool) *buffer {
	b := &buffer{data: data, owns: owns}
	b.refCount.Store(1)
	return b
}

func (b *buffer) addRef() {
	b.refCount.Add(1)
}

func (b *buffer) release() {
	if b.refCount.Add(-1) == 0 && b.owns {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.data = nil
	}
}

// Tensor is an n-dimensional typed buffer with a layout tag and a
// memory-space tag. Views created by Retain share the underlying
// reference-counted buffer.
type Tensor struct {
	name   string
	dtype  DataType
	shape  Shape
	stride []int
	layout Layout
	space  MemorySpace
	buf    *buffer
}

// New creates a tensor with a zero-initialized owned buffer on CPU memory.
// The byte size is computed as NumElements * dtype.Size().
func New(name string, dtype DataType, shape Shape, layout Layout) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errdefs.InvalidArgumentf("invalid shape: %v", err)
	}

	byteSize := shape.NumElements() * dtype.Size()
	return &Tensor{
		name:   name,
		dtype:  dtype,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		layout: layout,
		space:  MemCPU,
		buf:    newBuffer(make([]byte, byteSize), true),
	}, nil
}

// FromBytes wraps an existing byte slice without copying. When owns is
// false the buffer is treated as externally managed (pool or foreign
// memory) and is never freed by the runtime.
func FromBytes(
	name string, dtype DataType, shape Shape, layout Layout,
	space MemorySpace, data []byte, owns bool,
) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, errdefs.InvalidArgumentf("invalid shape: %v", err)
	}
	if data == nil {
		return nil, errdefs.InvalidArgumentf("nil data buffer")
	}

	want := shape.NumElements() * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("%w: buffer is %d bytes, shape %v of %s requires %d",
			errdefs.ErrShapeMismatch, len(data), shape, dtype, want)
	}

	return &Tensor{
		name:   name,
		dtype:  dtype,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		layout: layout,
		space:  space,
		buf:    newBuffer(data, owns),
	}, nil
}

// Name returns the tensor's name.
func (t *Tensor) Name() string { return t.name }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Strides returns the tensor's row-major memory strides.
func (t *Tensor) Strides() []int { return t.stride }

// Layout returns the tensor's layout tag.
func (t *Tensor) Layout() Layout { return t.layout }

// Space returns the tensor's memory-space tag.
func (t *Tensor) Space() MemorySpace { return t.space }

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// ByteSize returns the total buffer size in bytes.
func (t *Tensor) ByteSize() int { return t.NumElements() * t.dtype.Size() }

// OwnsData reports whether the tensor owns its buffer.
func (t *Tensor) OwnsData() bool { return t.buf.owns }

// RefCount returns the current buffer reference count.
func (t *Tensor) RefCount() int { return int(t.buf.refCount.Load()) }

// Bytes returns the raw byte slice.
// WARNING: direct access to underlying memory. Use with caution.
func (t *Tensor) Bytes() []byte { return t.buf.data }

// Retain returns a new view sharing the buffer and increments its
// reference count. The view keeps the source's metadata.
func (t *Tensor) Retain() *Tensor {
	t.buf.addRef()
	view := *t
	view.shape = t.shape.Clone()
	view.stride = append([]int(nil), t.stride...)
	return &view
}

// Release decrements the buffer reference count. The buffer is freed at
// zero, and only when owned; external buffers are merely dropped so their
// allocator can reclaim them.
func (t *Tensor) Release() {
	t.buf.release()
}

// Clone creates a deep copy with its own owned buffer. Mutating the copy
// never changes the source.
func (t *Tensor) Clone() *Tensor {
	data := make([]byte, len(t.buf.data))
	copy(data, t.buf.data)
	return &Tensor{
		name:   t.name,
		dtype:  t.dtype,
		shape:  t.shape.Clone(),
		stride: append([]int(nil), t.stride...),
		layout: t.layout,
		space:  t.space,
		buf:    newBuffer(data, true),
	}
}

// Reshape changes the tensor's shape in place. The new shape must preserve
// the element count; otherwise the tensor is left unchanged and
// ErrShapeMismatch is returned.
func (t *Tensor) Reshape(newShape Shape) error {
	if err := newShape.Validate(); err != nil {
		return errdefs.InvalidArgumentf("invalid shape: %v", err)
	}
	if newShape.NumElements() != t.shape.NumElements() {
		return fmt.Errorf("%w: cannot reshape %v (%d elements) to %v (%d elements)",
			errdefs.ErrShapeMismatch,
			t.shape, t.shape.NumElements(), newShape, newShape.NumElements())
	}
	t.shape = newShape.Clone()
	t.stride = newShape.ComputeStrides()
	return nil
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%q)[%s]%v %s on %s", t.name, t.dtype, t.shape, t.layout, t.space)
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	t.checkDType(Float32)
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (t *Tensor) AsFloat64() []float64 {
	t.checkDType(Float64)
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (t *Tensor) AsInt32() []int32 {
	t.checkDType(Int32)
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (t *Tensor) AsInt64() []int64 {
	t.checkDType(Int64)
	return unsafe.Slice((*int64)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsInt16 interprets the data as []int16.
// Panics if the tensor's dtype is not Int16.
func (t *Tensor) AsInt16() []int16 {
	t.checkDType(Int16)
	return unsafe.Slice((*int16)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsInt8 interprets the data as []int8.
// Panics if the tensor's dtype is not Int8.
func (t *Tensor) AsInt8() []int8 {
	t.checkDType(Int8)
	return unsafe.Slice((*int8)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsUint8 interprets the data as []uint8.
// Panics if the tensor's dtype is not Uint8.
func (t *Tensor) AsUint8() []uint8 {
	t.checkDType(Uint8)
	return t.buf.data // Already []byte = []uint8
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (t *Tensor) AsBool() []bool {
	t.checkDType(Bool)
	return unsafe.Slice((*bool)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

// AsFloat16Bits interprets the data as raw IEEE-754 half-precision bit
// patterns. Panics if the tensor's dtype is not Float16.
func (t *Tensor) AsFloat16Bits() []uint16 {
	t.checkDType(Float16)
	return unsafe.Slice((*uint16)(unsafe.Pointer(&t.buf.data[0])), t.NumElements())
}

func (t *Tensor) checkDType(want DataType) {
	if t.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", t.dtype, want))
	}
}
