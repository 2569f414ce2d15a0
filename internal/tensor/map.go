package tensor

import (
	"github.com/quiver-ml/quiver/internal/errdefs"
)

type entry struct {
	key string
	t   *Tensor
}

// Map is an insertion-ordered, unique-key mapping from string identifiers
// to tensors. It is the sole data-exchange currency between pipeline units.
// Lookups go through a hash index; iteration follows insertion order.
//
// Map is not safe for concurrent mutation; the pipeline serializes access
// to its scratchpad.
type Map struct {
	entries []entry
	index   map[string]int
}

// NewMap creates an empty tensor map.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Set inserts or overwrites the tensor under key. Overwriting preserves
// the key's original position. Empty keys and nil tensors are rejected
// with ErrInvalidArgument; the map is never partially mutated on failure.
func (m *Map) Set(key string, t *Tensor) error {
	if key == "" {
		return errdefs.InvalidArgumentf("empty tensor map key")
	}
	if t == nil {
		return errdefs.InvalidArgumentf("nil tensor for key %q", key)
	}

	if i, ok := m.index[key]; ok {
		m.entries[i].t = t
		return nil
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, entry{key: key, t: t})
	return nil
}

// Get returns the tensor under key, or nil when absent.
func (m *Map) Get(key string) *Tensor {
	if i, ok := m.index[key]; ok {
		return m.entries[i].t
	}
	return nil
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Remove deletes the entry under key, preserving the order of the
// remaining entries. Removing an absent key is a no-op.
func (m *Map) Remove(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].key] = j
	}
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, t *Tensor) bool) {
	for _, e := range m.entries {
		if !fn(e.key, e.t) {
			return
		}
	}
}

// Clear removes every entry. Tensors themselves are not released; they may
// be referenced elsewhere.
func (m *Map) Clear() {
	m.entries = m.entries[:0]
	m.index = make(map[string]int)
}

// Clone returns a shallow copy: entries are re-inserted in order and
// tensor references are shared, buffers are not duplicated.
func (m *Map) Clone() *Map {
	out := &Map{
		entries: make([]entry, len(m.entries)),
		index:   make(map[string]int, len(m.entries)),
	}
	copy(out.entries, m.entries)
	for k, v := range m.index {
		out.index[k] = v
	}
	return out
}

// MergeInto copies every entry of m into dst in insertion order,
// overwriting duplicate keys.
func (m *Map) MergeInto(dst *Map) error {
	for _, e := range m.entries {
		if err := dst.Set(e.key, e.t); err != nil {
			return err
		}
	}
	return nil
}
