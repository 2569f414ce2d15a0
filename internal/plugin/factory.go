package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
)

// libraryExtensions are the file extensions considered loadable on the
// supported platforms.
var libraryExtensions = []string{".so", ".dylib", ".dll"}

// DiscoverFunc receives each valid plugin found during discovery.
type DiscoverFunc func(path string, info Info)

// Factory owns every plugin it has loaded and the ordered set of search
// paths scanned for candidate libraries. One coarse mutex guards the
// factory's arrays; each plugin carries its own mutex for slow library
// calls.
type Factory struct {
	mu          sync.Mutex
	plugins     []*Plugin
	searchPaths []string
	registry    *backend.Registry
	onLoad      func(*Plugin)
	logger      *zap.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithFactoryLogger sets the factory logger.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(f *Factory) { f.logger = l }
}

// WithRegistry attaches the backend registry that inference-engine
// plugins register their descriptors into.
func WithRegistry(r *backend.Registry) FactoryOption {
	return func(f *Factory) { f.registry = r }
}

// WithOnLoad sets a callback invoked after every successful full load.
func WithOnLoad(cb func(*Plugin)) FactoryOption {
	return func(f *Factory) { f.onLoad = cb }
}

// NewFactory creates an empty plugin factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddSearchPath appends a directory to the ordered search-path list.
// Adding a duplicate is a no-op success.
func (f *Factory) AddSearchPath(dir string) error {
	if dir == "" {
		return errdefs.InvalidArgumentf("empty search path")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.searchPaths {
		if p == dir {
			return nil
		}
	}
	f.searchPaths = append(f.searchPaths, dir)
	return nil
}

// RemoveSearchPath removes a directory from the search-path list,
// preserving the order of the remaining entries.
func (f *Factory) RemoveSearchPath(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, p := range f.searchPaths {
		if p == dir {
			f.searchPaths = append(f.searchPaths[:i], f.searchPaths[i+1:]...)
			return
		}
	}
}

// SearchPaths returns a copy of the ordered search-path list.
func (f *Factory) SearchPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searchPaths...)
}

// Plugins returns the resident plugins in load order.
func (f *Factory) Plugins() []*Plugin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Plugin(nil), f.plugins...)
}

// Len returns the resident plugin count.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plugins)
}

// isCandidate reports whether the filename carries a loadable extension.
func isCandidate(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range libraryExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// deriveName maps a library filename to its plugin name: the extension
// and any leading "lib" prefix are stripped ("libnpu.so" -> "npu").
func deriveName(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.TrimPrefix(name, "lib")
}

// Discover walks every search path and probe-loads each candidate
// library: the module is opened, its metadata read, and the handle
// dropped without registering anything. The callback receives each valid
// plugin's path and metadata. Returns the count of valid plugins, or an
// error when no search path is usable.
func (f *Factory) Discover(cb DiscoverFunc) (int, error) {
	f.mu.Lock()
	paths := append([]string(nil), f.searchPaths...)
	f.mu.Unlock()

	usable := 0
	found := 0
	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			f.logger.Warn("skipping unusable search path", zap.String("dir", dir), zap.Error(err))
			continue
		}
		usable++

		for _, e := range entries {
			if e.IsDir() || !isCandidate(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			info, err := f.probe(path)
			if err != nil {
				f.logger.Debug("probe rejected candidate", zap.String("path", path), zap.Error(err))
				continue
			}
			found++
			if cb != nil {
				cb(path, *info)
			}
		}
	}

	if usable == 0 {
		return 0, fmt.Errorf("%w: no usable search path", errdefs.ErrPluginNotFound)
	}
	return found, nil
}

// probe performs a load-metadata-then-drop cycle, never touching the
// resident array.
func (f *Factory) probe(path string) (*Info, error) {
	lib, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errdefs.ErrPluginLoadFailure, path, err)
	}
	info, _, err := loadEntryPoints(lib)
	if err != nil {
		return nil, err
	}
	// The Go runtime cannot unload a library; the probe handle is simply
	// dropped.
	return info, nil
}

// Load returns the resident plugin with the given name, or scans the
// search paths for a library whose derived filename matches and performs
// a full load.
func (f *Factory) Load(name string) (*Plugin, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty plugin name")
	}

	f.mu.Lock()
	for _, p := range f.plugins {
		if p.info.Name == name {
			f.mu.Unlock()
			return p, nil
		}
	}
	paths := append([]string(nil), f.searchPaths...)
	f.mu.Unlock()

	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !isCandidate(e.Name()) || deriveName(e.Name()) != name {
				continue
			}
			return f.LoadFromFile(filepath.Join(dir, e.Name()))
		}
	}
	return nil, fmt.Errorf("%w: %q not resolved against any search path", errdefs.ErrPluginNotFound, name)
}

// LoadFromFile performs a full load: the library handle is retained and
// the plugin appended to the resident array. Loading a path that is
// already resident returns the existing instance. Any failure leaves no
// partial state behind.
func (f *Factory) LoadFromFile(path string) (*Plugin, error) {
	f.mu.Lock()
	for _, p := range f.plugins {
		if p.path == path {
			f.mu.Unlock()
			return p, nil
		}
	}
	f.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrPluginLoadFailure, path, err)
	}

	lib, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errdefs.ErrPluginLoadFailure, path, err)
	}
	info, iface, err := loadEntryPoints(lib)
	if err != nil {
		return nil, err
	}

	version, err := ParseVersion(info.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin %q: %v", errdefs.ErrPluginLoadFailure, info.Name, err)
	}

	p := &Plugin{
		info:    *info,
		version: version,
		iface:   iface,
		lib:     lib,
		path:    path,
		state:   StateLoaded,
	}

	f.mu.Lock()
	// A concurrent load of the same path may have won the race.
	for _, existing := range f.plugins {
		if existing.path == path {
			f.mu.Unlock()
			return existing, nil
		}
	}
	f.plugins = append(f.plugins, p)
	onLoad := f.onLoad
	f.mu.Unlock()

	f.logger.Info("plugin loaded",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Stringer("type", info.Type),
		zap.String("path", path))
	if onLoad != nil {
		onLoad(p)
	}
	return p, nil
}

// Unload finalizes an initialized plugin, drops its library handle, and
// removes it from the resident array preserving the order of the rest.
func (f *Factory) Unload(p *Plugin) error {
	if p == nil {
		return errdefs.InvalidArgumentf("nil plugin")
	}

	if err := p.Finalize(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, resident := range f.plugins {
		if resident == p {
			f.plugins = append(f.plugins[:i], f.plugins[i+1:]...)
			break
		}
	}
	// The Go runtime offers no dlclose; dropping the handle is the
	// closest available semantics.
	p.mu.Lock()
	p.lib = nil
	p.state = StateUnloaded
	p.mu.Unlock()
	return nil
}

// Close unloads every resident plugin.
func (f *Factory) Close() error {
	var firstErr error
	for _, p := range f.Plugins() {
		if err := f.Unload(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CheckDependencies verifies the plugin's declared dependency
// constraints against resident plugins. Constraints name a plugin and
// optionally bound its version ("tokenizer >= 1.2.0"). A missing
// dependency is advisory and only logged; an unsatisfied version bound
// is an error.
func (f *Factory) CheckDependencies(p *Plugin) error {
	for _, dep := range p.info.Dependencies {
		name, op, want, err := parseRequirement(dep)
		if err != nil {
			return err
		}

		f.mu.Lock()
		var resident *Plugin
		for _, r := range f.plugins {
			if r.info.Name == name {
				resident = r
				break
			}
		}
		f.mu.Unlock()

		if resident == nil {
			f.logger.Warn("plugin dependency not resident",
				zap.String("plugin", p.info.Name), zap.String("dependency", dep))
			continue
		}
		if op == "" {
			continue
		}
		if !satisfies(resident.version.Compare(want), op) {
			return fmt.Errorf("%w: %s requires %q, resident %s is %s",
				errdefs.ErrVersionMismatch, p.info.Name, dep, name, resident.version)
		}
	}
	return nil
}

// RegisterInferenceEngine loads (if necessary) the named plugin, checks
// that it declares the inference-engine type, initializes it, retrieves
// its backend descriptor via CreateInstance, and registers the
// descriptor under the requested kind.
func (f *Factory) RegisterInferenceEngine(kind backend.Kind, pluginName string) error {
	if f.registry == nil {
		return errdefs.InvalidArgumentf("factory has no backend registry attached")
	}

	p, err := f.Load(pluginName)
	if err != nil {
		return err
	}
	desc, err := f.descriptorFrom(p)
	if err != nil {
		return err
	}
	if desc.Kind != kind {
		return errdefs.InvalidArgumentf(
			"plugin %q supplies backend kind %s, not %s", pluginName, desc.Kind, kind)
	}
	return f.registry.Register(desc)
}

// CreateInferenceEngine builds an engine of the given kind: the backend
// registry is tried first; on a miss the resident inference-engine
// plugins are scanned for a matching descriptor, which is registered and
// used for one retry.
func (f *Factory) CreateInferenceEngine(kind backend.Kind, cfg backend.Config) (backend.Engine, error) {
	if f.registry == nil {
		return nil, errdefs.InvalidArgumentf("factory has no backend registry attached")
	}

	if d, ok := f.registry.Lookup(kind); ok {
		return d.New(cfg)
	}

	d, err := f.Resolve(kind)
	if err != nil {
		return nil, err
	}
	if err := f.registry.Register(d); err != nil {
		return nil, err
	}
	return d.New(cfg)
}

// Resolve implements backend.Resolver: it scans resident
// inference-engine plugins for one whose descriptor matches the kind.
func (f *Factory) Resolve(kind backend.Kind) (backend.Descriptor, error) {
	for _, p := range f.Plugins() {
		if p.info.Type != TypeInferenceEngine {
			continue
		}
		desc, err := f.descriptorFrom(p)
		if err != nil {
			f.logger.Warn("plugin descriptor retrieval failed",
				zap.String("plugin", p.info.Name), zap.Error(err))
			continue
		}
		if desc.Kind == kind {
			return desc, nil
		}
	}
	return backend.Descriptor{}, fmt.Errorf(
		"%w: no resident plugin supplies backend kind %s", errdefs.ErrPluginNotFound, kind)
}

// descriptorFrom initializes the plugin if needed and obtains its
// backend descriptor via CreateInstance(nil).
func (f *Factory) descriptorFrom(p *Plugin) (backend.Descriptor, error) {
	if p.info.Type != TypeInferenceEngine {
		return backend.Descriptor{}, errdefs.InvalidArgumentf(
			"plugin %q is %s, not an inference engine", p.info.Name, p.info.Type)
	}
	if err := f.CheckDependencies(p); err != nil {
		return backend.Descriptor{}, err
	}
	if err := p.Initialize(nil); err != nil {
		return backend.Descriptor{}, err
	}

	instance, err := p.CreateInstance(nil)
	if err != nil {
		return backend.Descriptor{}, errdefs.Wrap(err, "Factory", "descriptorFrom", p.info.Name)
	}
	switch d := instance.(type) {
	case *backend.Descriptor:
		return *d, nil
	case backend.Descriptor:
		return d, nil
	default:
		return backend.Descriptor{}, fmt.Errorf(
			"%w: plugin %q instance is %T, not a backend descriptor",
			errdefs.ErrPluginLoadFailure, p.info.Name, instance)
	}
}

// parseRequirement splits "name", "name >= M.m.p" style constraints.
func parseRequirement(s string) (name, op string, v Version, err error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return fields[0], "", Version{}, nil
	case 3:
		switch fields[1] {
		case ">=", ">", "=", "==", "<=", "<":
		default:
			return "", "", Version{}, errdefs.InvalidArgumentf("requirement %q: bad operator", s)
		}
		v, err = ParseVersion(fields[2])
		if err != nil {
			return "", "", Version{}, err
		}
		return fields[0], fields[1], v, nil
	default:
		return "", "", Version{}, errdefs.InvalidArgumentf("requirement %q: want \"name [op version]\"", s)
	}
}

func satisfies(cmp int, op string) bool {
	switch op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "=", "==":
		return cmp == 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	default:
		return true
	}
}
