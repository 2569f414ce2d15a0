package plugin

import (
	"fmt"
	goplugin "plugin"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// library abstracts a resolved dynamic-library handle so loading can be
// exercised in tests without compiling real plugin objects.
type library interface {
	Lookup(name string) (goplugin.Symbol, error)
}

// openLibrary opens a dynamic library via the platform loader.
// Overridden in tests.
var openLibrary = func(path string) (library, error) {
	return goplugin.Open(path)
}

// loadEntryPoints resolves the two required entry points and invokes
// them. Either symbol missing, a wrong signature, or a nil result aborts
// the load; no partial state is retained.
func loadEntryPoints(lib library) (*Info, *Interface, error) {
	infoSym, err := lib.Lookup(SymbolInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolve %s: %v", errdefs.ErrPluginLoadFailure, SymbolInfo, err)
	}
	infoFn, ok := infoSym.(func() *Info)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has wrong signature", errdefs.ErrPluginLoadFailure, SymbolInfo)
	}

	ifaceSym, err := lib.Lookup(SymbolInterface)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolve %s: %v", errdefs.ErrPluginLoadFailure, SymbolInterface, err)
	}
	ifaceFn, ok := ifaceSym.(func() *Interface)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has wrong signature", errdefs.ErrPluginLoadFailure, SymbolInterface)
	}

	info := infoFn()
	if info == nil {
		return nil, nil, fmt.Errorf("%w: plugin metadata is nil", errdefs.ErrPluginLoadFailure)
	}
	iface := ifaceFn()
	if iface == nil {
		return nil, nil, fmt.Errorf("%w: plugin interface is nil", errdefs.ErrPluginLoadFailure)
	}
	if err := iface.validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errdefs.ErrPluginLoadFailure, err)
	}
	return info, iface, nil
}
