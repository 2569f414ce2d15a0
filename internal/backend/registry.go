package backend

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Resolver lazily resolves a backend kind that has no registered
// descriptor yet. The plugin factory implements this by scanning its
// resident inference-engine plugins.
type Resolver interface {
	Resolve(kind Kind) (Descriptor, error)
}

// Registry maps backend kinds to descriptors. All operations take one
// coarse mutex; the registry is safe for concurrent use but mutation is
// always serialized.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[Kind]Descriptor
	resolver    Resolver
	logger      *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithResolver attaches a lazy kind resolver, consulted by Create on a
// registry miss before failing.
func WithResolver(res Resolver) RegistryOption {
	return func(r *Registry) { r.resolver = res }
}

// NewRegistry creates an empty backend registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		descriptors: make(map[Kind]Descriptor),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetResolver attaches or replaces the lazy kind resolver.
func (r *Registry) SetResolver(res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = res
}

// Register installs a descriptor for its kind. Registration is idempotent
// per kind and last-write-wins: a second descriptor for the same kind
// replaces the first. The overwrite is logged so silent replacement never
// goes unnoticed.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return errdefs.InvalidArgumentf("descriptor has no name")
	}
	if d.New == nil {
		return errdefs.InvalidArgumentf("descriptor %q has no constructor", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.descriptors[d.Kind]; exists {
		r.logger.Warn("backend descriptor overwritten",
			zap.Stringer("kind", d.Kind),
			zap.String("previous", prev.Name),
			zap.String("replacement", d.Name))
	}
	r.descriptors[d.Kind] = d
	return nil
}

// Lookup returns the descriptor for kind, if registered.
func (r *Registry) Lookup(kind Kind) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[kind]
	return d, ok
}

// Create constructs an engine of the given kind. On a registry miss the
// attached resolver (plugin factory) is consulted once; if it supplies a
// descriptor, the descriptor is registered and used.
func (r *Registry) Create(kind Kind, cfg Config) (Engine, error) {
	r.mu.RLock()
	d, ok := r.descriptors[kind]
	resolver := r.resolver
	r.mu.RUnlock()

	if !ok {
		if resolver == nil {
			return nil, fmt.Errorf("%w: %s", errdefs.ErrNotRegistered, kind)
		}
		resolved, err := resolver.Resolve(kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (%v)", errdefs.ErrNotRegistered, kind, err)
		}
		if err := r.Register(resolved); err != nil {
			return nil, err
		}
		d = resolved
	}

	eng, err := d.New(cfg)
	if err != nil {
		return nil, errdefs.Wrap(err, "Registry", "Create", "engine construction")
	}
	return eng, nil
}

// Kinds returns the sorted, deduplicated set of registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.descriptors))
	for k := range r.descriptors {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors)
}
