package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// ModelUnit invokes a loaded model through its backend engine. The unit
// does not own the engine or the handle; binding and unbinding is the
// caller's job (normally the model manager).
type ModelUnit struct {
	base
	engine backend.Engine
	handle backend.ModelHandle
}

// ModelOption configures a ModelUnit.
type ModelOption func(*ModelUnit)

// WithModelTimeout sets the unit's inference budget.
func WithModelTimeout(d time.Duration) ModelOption {
	return func(u *ModelUnit) { u.timeout = d }
}

// NewModelUnit builds a model unit reading the given input keys, in
// order, as the model's inputs. Output keys come from the bound handle's
// output introspection at execution time; engine and handle may be bound
// later via Bind.
func NewModelUnit(name string, inputKeys []string, opts ...ModelOption) (*ModelUnit, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty unit name")
	}
	if len(inputKeys) == 0 {
		return nil, errdefs.InvalidArgumentf("unit %q: no input keys", name)
	}
	u := &ModelUnit{base: base{name: name, requires: inputKeys}}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Bind attaches the engine and model handle the unit runs against.
func (u *ModelUnit) Bind(engine backend.Engine, handle backend.ModelHandle) {
	u.engine = engine
	u.handle = handle
}

// Kind returns KindModel.
func (u *ModelUnit) Kind() Kind { return KindModel }

// Produces returns the bound model's output names. Empty until Bind.
func (u *ModelUnit) Produces() []string {
	if u.handle == nil {
		return nil
	}
	names := make([]string, 0, u.handle.OutputCount())
	for i := 0; i < u.handle.OutputCount(); i++ {
		names = append(names, u.outputName(i, nil))
	}
	return names
}

// Execute gathers the declared inputs in order, runs inference, and
// names each output from the handle's introspection.
func (u *ModelUnit) Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error) {
	if u.engine == nil || u.handle == nil {
		return nil, fmt.Errorf("%w: unit %q has no bound engine", errdefs.ErrEngineNotReady, u.name)
	}
	if err := u.checkRequired(in); err != nil {
		return nil, err
	}

	inputs := make([]*tensor.Tensor, len(u.requires))
	for i, key := range u.requires {
		inputs[i] = in.Get(key)
	}

	return runBounded(ctx, u.timeout, u.name, func(ctx context.Context) (*tensor.Map, error) {
		outputs, err := u.engine.Infer(ctx, u.handle, inputs)
		if err != nil {
			return nil, errdefs.Wrap(err, "ModelUnit", "Execute", u.name)
		}
		out := tensor.NewMap()
		for i, t := range outputs {
			if err := out.Set(u.outputName(i, t), t); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// outputName resolves output slot i's key: the handle's declared name,
// the tensor's own name, then a positional fallback.
func (u *ModelUnit) outputName(i int, t *tensor.Tensor) string {
	if info, err := u.handle.OutputInfo(i); err == nil && info.Name != "" {
		return info.Name
	}
	if t != nil && t.Name() != "" {
		return t.Name()
	}
	return fmt.Sprintf("output_%d", i)
}
