// Package manager owns loaded models: it resolves engines through the
// backend registry, tracks (model ID -> engine + handle) bindings, and
// serializes inference per model. It is the only surface the HTTP front
// end talks to.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// Model is one resident model binding. Its mutex serializes engine
// calls: engines are never invoked concurrently on the same instance.
type Model struct {
	mu     sync.Mutex
	id     string
	path   string
	kind   backend.Kind
	engine backend.Engine
	handle backend.ModelHandle
	loaded time.Time
	infers int64
}

// ID returns the model's identifier.
func (m *Model) ID() string { return m.id }

// Path returns the model file path.
func (m *Model) Path() string { return m.path }

// Kind returns the backend kind serving the model.
func (m *Model) Kind() backend.Kind { return m.kind }

// Handle returns the backend model handle for introspection.
func (m *Model) Handle() backend.ModelHandle { return m.handle }

// Info is a point-in-time description of a resident model.
type Info struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Backend    string    `json:"backend"`
	Engine     string    `json:"engine"`
	LoadedAt   time.Time `json:"loaded_at"`
	Inferences int64     `json:"inferences"`
}

// Manager tracks resident models. All public operations are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	models   map[string]*Model
	registry *backend.Registry
	metrics  *Metrics
	logger   *zap.Logger

	defaultKind backend.Kind
	engineCfg   backend.Config
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics registers the manager's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Manager) { m.metrics = NewMetrics(reg) }
}

// WithDefaultKind sets the backend kind used when LoadModel gets
// KindAuto semantics (kind < 0).
func WithDefaultKind(kind backend.Kind) Option {
	return func(m *Manager) { m.defaultKind = kind }
}

// WithEngineConfig sets the config passed to engine construction.
func WithEngineConfig(cfg backend.Config) Option {
	return func(m *Manager) { m.engineCfg = cfg }
}

// New creates a manager resolving engines through registry.
func New(registry *backend.Registry, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, errdefs.InvalidArgumentf("nil backend registry")
	}
	m := &Manager{
		models:      make(map[string]*Model),
		registry:    registry,
		logger:      zap.NewNop(),
		defaultKind: backend.KindStub,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m, nil
}

// LoadModel builds an engine of the given kind (pass a negative kind for
// the manager default), loads the model at path, and registers it under
// id. An empty id gets a generated UUID. The chosen id is returned.
func (m *Manager) LoadModel(ctx context.Context, path, id string, kind backend.Kind) (string, error) {
	if path == "" {
		m.metrics.LoadFailures.Inc()
		return "", errdefs.InvalidArgumentf("empty model path")
	}
	if kind < 0 {
		kind = m.defaultKind
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if _, exists := m.models[id]; exists {
		m.mu.Unlock()
		m.metrics.LoadFailures.Inc()
		return "", errdefs.InvalidArgumentf("model id %q already loaded", id)
	}
	m.mu.Unlock()

	engine, err := m.registry.Create(kind, m.engineCfg)
	if err != nil {
		m.metrics.LoadFailures.Inc()
		return "", errors.Wrapf(err, "creating %s engine for model %q", kind, id)
	}

	handle, err := engine.LoadModel(ctx, path)
	if err != nil {
		_ = engine.Close()
		m.metrics.LoadFailures.Inc()
		return "", errors.Wrapf(err, "loading model %q from %s", id, path)
	}

	model := &Model{
		id:     id,
		path:   path,
		kind:   kind,
		engine: engine,
		handle: handle,
		loaded: time.Now(),
	}

	m.mu.Lock()
	if _, exists := m.models[id]; exists {
		m.mu.Unlock()
		_ = engine.UnloadModel(handle)
		_ = engine.Close()
		m.metrics.LoadFailures.Inc()
		return "", errdefs.InvalidArgumentf("model id %q already loaded", id)
	}
	m.models[id] = model
	m.mu.Unlock()

	m.metrics.ModelsLoaded.Inc()
	m.logger.Info("model loaded",
		zap.String("id", id),
		zap.String("path", path),
		zap.Stringer("backend", kind),
		zap.String("engine", engine.Name()))
	return id, nil
}

// UnloadModel releases the model's handle and engine and removes it.
func (m *Manager) UnloadModel(id string) error {
	m.mu.Lock()
	model, ok := m.models[id]
	if ok {
		delete(m.models, id)
	}
	m.mu.Unlock()

	if !ok {
		return errors.Wrapf(errdefs.ErrModelNotFound, "model %q", id)
	}

	model.mu.Lock()
	defer model.mu.Unlock()

	err := model.engine.UnloadModel(model.handle)
	if closeErr := model.engine.Close(); err == nil {
		err = closeErr
	}
	m.metrics.ModelsLoaded.Dec()
	m.logger.Info("model unloaded", zap.String("id", id))
	return err
}

// Get returns the resident model under id.
func (m *Manager) Get(id string) (*Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	model, ok := m.models[id]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrModelNotFound, "model %q", id)
	}
	return model, nil
}

// Models lists resident models sorted by id.
func (m *Manager) Models() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.models))
	for _, model := range m.models {
		model.mu.Lock()
		infos = append(infos, Info{
			ID:         model.id,
			Path:       model.path,
			Backend:    model.kind.String(),
			Engine:     model.engine.Name(),
			LoadedAt:   model.loaded,
			Inferences: model.infers,
		})
		model.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Infer runs the model over inputs, serialized per model.
func (m *Manager) Infer(ctx context.Context, id string, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	model, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	model.mu.Lock()
	defer model.mu.Unlock()

	start := time.Now()
	outputs, err := model.engine.Infer(ctx, model.handle, inputs)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.Inferences.WithLabelValues(id, status).Inc()
	m.metrics.InferLatency.WithLabelValues(id).Observe(elapsed.Seconds())

	if err != nil {
		return nil, errors.Wrapf(err, "inference on model %q", id)
	}
	model.infers++
	return outputs, nil
}

// InferSingle is the single-input, single-output convenience form.
func (m *Manager) InferSingle(ctx context.Context, id string, input *tensor.Tensor) (*tensor.Tensor, error) {
	if input == nil {
		return nil, errdefs.InvalidArgumentf("nil input tensor")
	}
	outputs, err := m.Infer(ctx, id, []*tensor.Tensor{input})
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errdefs.InvalidArgumentf("model %q produced no outputs", id)
	}
	return outputs[0], nil
}

// Len returns the resident model count.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.models)
}

// Close unloads every resident model.
func (m *Manager) Close() error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.models))
	for id := range m.models {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.UnloadModel(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
