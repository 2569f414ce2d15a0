package backend

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend/stub"
	"github.com/quiver-ml/quiver/internal/backend/webgpu"
)

// Bootstrap registers the built-in backends with reg. It is explicit
// rather than init-driven so hosts control when registration happens,
// and idempotent: re-registering a kind overwrites the prior descriptor.
func Bootstrap(reg *Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, d := range []Descriptor{
		stub.Descriptor(),
		webgpu.Descriptor(),
	} {
		if err := reg.Register(d); err != nil {
			return err
		}
		logger.Debug("backend registered",
			zap.Stringer("kind", d.Kind), zap.String("name", d.Name))
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, bootstrapping the built-in
// backends on first use. Hosts that need an isolated registry or a
// logger use NewRegistry and Bootstrap directly.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
		// Built-in descriptors always validate.
		_ = Bootstrap(defaultReg, nil)
	})
	return defaultReg
}
