package pipeline

import (
	"context"
	"time"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// LoopUnit repeatedly evaluates a continuation condition against the
// current working map and, while true, executes the body, replacing the
// working map with the body's output. The iteration cap is a hard stop:
// an unconditionally-true continuation still halts at MaxIterations.
type LoopUnit struct {
	base
	cond          Condition
	body          Unit
	maxIterations int
}

// LoopOption configures a LoopUnit.
type LoopOption func(*LoopUnit)

// WithLoopTimeout sets the budget covering all iterations together.
func WithLoopTimeout(d time.Duration) LoopOption {
	return func(u *LoopUnit) { u.timeout = d }
}

// NewLoopUnit builds a loop unit. maxIterations must be positive.
func NewLoopUnit(name string, cond Condition, body Unit, maxIterations int, opts ...LoopOption) (*LoopUnit, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty unit name")
	}
	if cond == nil {
		return nil, errdefs.InvalidArgumentf("unit %q: nil continuation", name)
	}
	if body == nil {
		return nil, errdefs.InvalidArgumentf("unit %q: nil body", name)
	}
	if maxIterations <= 0 {
		return nil, errdefs.InvalidArgumentf("unit %q: iteration cap must be positive, got %d", name, maxIterations)
	}
	u := &LoopUnit{base: base{name: name}, cond: cond, body: body, maxIterations: maxIterations}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Kind returns KindLoop.
func (u *LoopUnit) Kind() Kind { return KindLoop }

// MaxIterations returns the configured iteration cap.
func (u *LoopUnit) MaxIterations() int { return u.maxIterations }

// Execute runs the condition/body loop and returns the last working map.
func (u *LoopUnit) Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error) {
	if err := u.checkRequired(in); err != nil {
		return nil, err
	}
	return runBounded(ctx, u.timeout, u.name, func(ctx context.Context) (*tensor.Map, error) {
		working := in
		for i := 0; i < u.maxIterations; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			condOut, err := u.cond(ctx, working)
			if err != nil {
				return nil, errdefs.Wrap(err, "LoopUnit", "Execute", u.name)
			}
			proceed, err := boolFromMap(condOut, ContinueKey, u.name)
			if err != nil {
				return nil, err
			}
			if !proceed {
				break
			}

			next, err := u.body.Execute(ctx, working)
			if err != nil {
				return nil, err
			}
			working = next
		}
		return working, nil
	})
}
