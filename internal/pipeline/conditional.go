package pipeline

import (
	"context"
	"time"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// ConditionKey is the tensor name a condition transform must produce;
// its first byte is read as the boolean.
const ConditionKey = "condition"

// ContinueKey is the tensor name a loop continuation must produce.
const ContinueKey = "continue"

// Condition evaluates the current scratchpad and produces a map holding
// a boolean tensor under the expected key.
type Condition func(ctx context.Context, in *tensor.Map) (*tensor.Map, error)

// ConditionalUnit evaluates a condition and executes one of two branch
// units. A nil branch for the selected side is a successful no-op.
type ConditionalUnit struct {
	base
	cond      Condition
	whenTrue  Unit
	whenFalse Unit
}

// ConditionalOption configures a ConditionalUnit.
type ConditionalOption func(*ConditionalUnit)

// WithConditionalTimeout sets the budget covering the condition and the
// selected branch together.
func WithConditionalTimeout(d time.Duration) ConditionalOption {
	return func(u *ConditionalUnit) { u.timeout = d }
}

// NewConditionalUnit builds a conditional unit. Either branch may be nil.
func NewConditionalUnit(name string, cond Condition, whenTrue, whenFalse Unit, opts ...ConditionalOption) (*ConditionalUnit, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty unit name")
	}
	if cond == nil {
		return nil, errdefs.InvalidArgumentf("unit %q: nil condition", name)
	}
	u := &ConditionalUnit{base: base{name: name}, cond: cond, whenTrue: whenTrue, whenFalse: whenFalse}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Kind returns KindConditional.
func (u *ConditionalUnit) Kind() Kind { return KindConditional }

// Execute evaluates the condition tensor and runs the selected branch.
func (u *ConditionalUnit) Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error) {
	if err := u.checkRequired(in); err != nil {
		return nil, err
	}
	return runBounded(ctx, u.timeout, u.name, func(ctx context.Context) (*tensor.Map, error) {
		condOut, err := u.cond(ctx, in)
		if err != nil {
			return nil, errdefs.Wrap(err, "ConditionalUnit", "Execute", u.name)
		}
		truthy, err := boolFromMap(condOut, ConditionKey, u.name)
		if err != nil {
			return nil, err
		}

		branch := u.whenFalse
		if truthy {
			branch = u.whenTrue
		}
		if branch == nil {
			return tensor.NewMap(), nil
		}
		return branch.Execute(ctx, in)
	})
}
