// Package pipeline implements the dataflow executor: an ordered list of
// processing units sharing one scratchpad tensor map. Units are a closed
// variant set (function, model, parallel, conditional, loop); composite
// units own their children and execute them recursively.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// Kind identifies a unit variant.
type Kind int

// Unit kinds.
const (
	KindFunction Kind = iota
	KindModel
	KindParallel
	KindConditional
	KindLoop
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindModel:
		return "model"
	case KindParallel:
		return "parallel"
	case KindConditional:
		return "conditional"
	case KindLoop:
		return "loop"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Unit is one node of the computation graph: a mapping from a tensor map
// to a tensor map. Execute must not mutate the input map; it returns a
// fresh map holding only the keys the unit produced.
type Unit interface {
	// Name returns the unit's display name, used in failure reports.
	Name() string
	// Kind returns the unit variant.
	Kind() Kind
	// Requires lists the input keys that must be present in the input map.
	Requires() []string
	// Produces lists the output keys the unit is expected to emit.
	// Advisory: the executor merges whatever Execute actually returns.
	Produces() []string
	// Timeout returns the unit's execution budget. Zero means unbounded.
	Timeout() time.Duration
	// Execute runs the unit over in and returns its outputs.
	Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error)
}

// base carries the configuration common to every unit variant.
type base struct {
	name     string
	requires []string
	produces []string
	timeout  time.Duration
}

func (b *base) Name() string           { return b.name }
func (b *base) Requires() []string     { return append([]string(nil), b.requires...) }
func (b *base) Produces() []string     { return append([]string(nil), b.produces...) }
func (b *base) Timeout() time.Duration { return b.timeout }

// checkRequired verifies every declared input key is present in the map.
func (b *base) checkRequired(in *tensor.Map) error {
	for _, key := range b.requires {
		if !in.Has(key) {
			return fmt.Errorf("%w: unit %q requires key %q", errdefs.ErrMissingInput, b.name, key)
		}
	}
	return nil
}

// runBounded applies the unit's timeout budget to fn. The budget is
// enforced: on expiry the unit's result is discarded and the failure is
// ErrTimeout. fn keeps running on its goroutine until it observes the
// cancelled context, so unit bodies should honor ctx on long operations.
func runBounded(ctx context.Context, budget time.Duration, name string,
	fn func(ctx context.Context) (*tensor.Map, error)) (*tensor.Map, error) {

	if budget <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		out *tensor.Map
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := fn(ctx)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: unit %q exceeded %s", errdefs.ErrTimeout, name, budget)
		}
		return r.out, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: unit %q exceeded %s", errdefs.ErrTimeout, name, budget)
		}
		return nil, ctx.Err()
	}
}

// boolFromMap reads the named tensor from a condition result and
// interprets its first byte as a boolean.
func boolFromMap(m *tensor.Map, key, unit string) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("%w: unit %q condition returned no map", errdefs.ErrInvalidCondition, unit)
	}
	t := m.Get(key)
	if t == nil {
		return false, fmt.Errorf("%w: unit %q condition lacks tensor %q", errdefs.ErrInvalidCondition, unit, key)
	}
	raw := t.Bytes()
	if len(raw) == 0 {
		return false, fmt.Errorf("%w: unit %q condition tensor %q is empty", errdefs.ErrInvalidCondition, unit, key)
	}
	return raw[0] != 0, nil
}
