package pipeline

import (
	"context"
	"time"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// Transform is a user-supplied unit body. It receives the current
// scratchpad contents and the unit's private context value, and returns
// the tensors it produced.
type Transform func(ctx context.Context, in *tensor.Map, userData any) (*tensor.Map, error)

// FunctionUnit wraps an arbitrary transform as a processing unit.
type FunctionUnit struct {
	base
	fn       Transform
	userData any
}

// FunctionOption configures a FunctionUnit.
type FunctionOption func(*FunctionUnit)

// WithRequires declares the input keys the transform needs.
func WithRequires(keys ...string) FunctionOption {
	return func(u *FunctionUnit) { u.requires = keys }
}

// WithProduces declares the output keys the transform emits.
func WithProduces(keys ...string) FunctionOption {
	return func(u *FunctionUnit) { u.produces = keys }
}

// WithTimeout sets the unit's execution budget.
func WithTimeout(d time.Duration) FunctionOption {
	return func(u *FunctionUnit) { u.timeout = d }
}

// WithUserData attaches a private context value passed to every
// invocation of the transform.
func WithUserData(v any) FunctionOption {
	return func(u *FunctionUnit) { u.userData = v }
}

// NewFunctionUnit builds a function unit around fn.
func NewFunctionUnit(name string, fn Transform, opts ...FunctionOption) (*FunctionUnit, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty unit name")
	}
	if fn == nil {
		return nil, errdefs.InvalidArgumentf("unit %q: nil transform", name)
	}
	u := &FunctionUnit{base: base{name: name}, fn: fn}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Kind returns KindFunction.
func (u *FunctionUnit) Kind() Kind { return KindFunction }

// Execute checks the required keys and invokes the transform.
func (u *FunctionUnit) Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error) {
	if err := u.checkRequired(in); err != nil {
		return nil, err
	}
	return runBounded(ctx, u.timeout, u.name, func(ctx context.Context) (*tensor.Map, error) {
		return u.fn(ctx, in, u.userData)
	})
}
