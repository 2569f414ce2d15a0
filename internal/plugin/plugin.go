// Package plugin discovers, loads, versions, and unloads dynamically
// linked backend modules. A loadable library must export two symbols,
// QuiverPluginInfo and QuiverPluginInterface, which return the plugin's
// static metadata and operation table. Inference-engine plugins
// additionally expose a backend descriptor through CreateInstance.
package plugin

import (
	"fmt"
	"sync"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

// Exported symbol names required of every plugin library.
const (
	SymbolInfo      = "QuiverPluginInfo"
	SymbolInterface = "QuiverPluginInterface"
)

// Type classifies what a plugin provides.
type Type int

// Plugin types.
const (
	TypeInferenceEngine Type = iota
	TypePreprocessor
	TypePostprocessor
	TypeCustom
)

// String returns a human-readable type name.
func (t Type) String() string {
	switch t {
	case TypeInferenceEngine:
		return "inference-engine"
	case TypePreprocessor:
		return "preprocessor"
	case TypePostprocessor:
		return "postprocessor"
	default:
		return "custom"
	}
}

// State tracks a plugin's lifecycle.
type State int

// Plugin lifecycle states. Loaded means the library is resolved and both
// entry points were found; Initialized means the plugin's Initialize
// succeeded.
const (
	StateUnloaded State = iota
	StateLoaded
	StateInitialized
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Info is the static metadata a plugin publishes via SymbolInfo.
type Info struct {
	Name         string
	Version      string
	Author       string
	License      string
	Type         Type
	Dependencies []string
}

// Interface is the operation table a plugin publishes via SymbolInterface.
// Only Initialize, Finalize, and CreateInstance are mandatory; the rest
// default to benign behavior when nil.
type Interface struct {
	Initialize      func(options map[string]string) error
	Finalize        func() error
	CreateInstance  func(config any) (any, error)
	DestroyInstance func(instance any) error
	// CheckCompatibility is advisory; nil means always compatible.
	CheckCompatibility func(requirement string) bool
	SelfTest           func() error
	ConfigSchema       func() string
	Control            func(op string, arg any) (any, error)
}

func (i *Interface) validate() error {
	if i.Initialize == nil || i.Finalize == nil || i.CreateInstance == nil {
		return errdefs.InvalidArgumentf(
			"plugin interface missing a mandatory operation (initialize/finalize/create_instance)")
	}
	return nil
}

// Plugin is one loaded module. Its mutex serializes initialize, finalize,
// and instance creation, separately from the factory's mutex so slow
// library calls never block factory bookkeeping.
type Plugin struct {
	mu      sync.Mutex
	info    Info
	version Version
	iface   *Interface
	lib     library
	path    string
	state   State
}

// Info returns the plugin's metadata.
func (p *Plugin) Info() Info { return p.info }

// Version returns the plugin's parsed version.
func (p *Plugin) Version() Version { return p.version }

// Path returns the library path the plugin was loaded from.
func (p *Plugin) Path() string { return p.path }

// State returns the plugin's lifecycle state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize runs the plugin's initialize entry point. Idempotent: an
// already initialized plugin returns nil.
func (p *Plugin) Initialize(options map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateInitialized {
		return nil
	}
	if p.state != StateLoaded {
		return fmt.Errorf("%w: plugin %q is %s", errdefs.ErrPluginLoadFailure, p.info.Name, p.state)
	}
	if err := p.iface.Initialize(options); err != nil {
		p.state = StateError
		return errdefs.Wrap(err, "Plugin", "Initialize", p.info.Name)
	}
	p.state = StateInitialized
	return nil
}

// Finalize runs the plugin's finalize entry point, returning the plugin
// to the loaded state.
func (p *Plugin) Finalize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateInitialized {
		return nil
	}
	if err := p.iface.Finalize(); err != nil {
		p.state = StateError
		return errdefs.Wrap(err, "Plugin", "Finalize", p.info.Name)
	}
	p.state = StateLoaded
	return nil
}

// CreateInstance asks the plugin for a new extension instance.
func (p *Plugin) CreateInstance(config any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateInitialized {
		return nil, fmt.Errorf("%w: plugin %q not initialized", errdefs.ErrPluginLoadFailure, p.info.Name)
	}
	return p.iface.CreateInstance(config)
}

// DestroyInstance releases an instance produced by CreateInstance.
func (p *Plugin) DestroyInstance(instance any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.iface.DestroyInstance == nil {
		return nil
	}
	return p.iface.DestroyInstance(instance)
}

// CheckCompatibility evaluates an advisory requirement string. Plugins
// that leave the hook nil are considered compatible with anything.
func (p *Plugin) CheckCompatibility(requirement string) bool {
	if p.iface.CheckCompatibility == nil {
		return true
	}
	return p.iface.CheckCompatibility(requirement)
}

// SelfTest runs the plugin's self test, if provided.
func (p *Plugin) SelfTest() error {
	if p.iface.SelfTest == nil {
		return nil
	}
	return p.iface.SelfTest()
}

// ConfigSchema returns the plugin's configuration schema, if provided.
func (p *Plugin) ConfigSchema() string {
	if p.iface.ConfigSchema == nil {
		return ""
	}
	return p.iface.ConfigSchema()
}

// Control forwards an arbitrary control operation to the plugin.
func (p *Plugin) Control(op string, arg any) (any, error) {
	if p.iface.Control == nil {
		return nil, errdefs.InvalidArgumentf("plugin %q has no control hook", p.info.Name)
	}
	return p.iface.Control(op, arg)
}
