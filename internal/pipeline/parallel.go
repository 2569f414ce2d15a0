package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// ParallelUnit fans the same input map out to every sub-unit on its own
// goroutine and merges the results deterministically: sub-unit i's key k
// lands in the merged map as "i_k", in sub-unit order regardless of
// completion order. The first failing sub-unit's error wins, lowest
// index first.
type ParallelUnit struct {
	base
	units []Unit
}

// ParallelOption configures a ParallelUnit.
type ParallelOption func(*ParallelUnit)

// WithParallelTimeout sets the fan-out's overall budget.
func WithParallelTimeout(d time.Duration) ParallelOption {
	return func(u *ParallelUnit) { u.timeout = d }
}

// NewParallelUnit builds a parallel unit owning the given sub-units.
func NewParallelUnit(name string, units []Unit, opts ...ParallelOption) (*ParallelUnit, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty unit name")
	}
	if len(units) == 0 {
		return nil, errdefs.InvalidArgumentf("unit %q: no sub-units", name)
	}
	for i, sub := range units {
		if sub == nil {
			return nil, errdefs.InvalidArgumentf("unit %q: nil sub-unit at %d", name, i)
		}
	}
	u := &ParallelUnit{base: base{name: name}, units: units}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Kind returns KindParallel.
func (u *ParallelUnit) Kind() Kind { return KindParallel }

// Units returns the owned sub-units in order.
func (u *ParallelUnit) Units() []Unit { return append([]Unit(nil), u.units...) }

// Requires returns the union of the sub-units' requirements, first
// occurrence order.
func (u *ParallelUnit) Requires() []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, sub := range u.units {
		for _, k := range sub.Requires() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Execute runs every sub-unit concurrently over the same input map and
// merges their outputs under index prefixes.
func (u *ParallelUnit) Execute(ctx context.Context, in *tensor.Map) (*tensor.Map, error) {
	return runBounded(ctx, u.timeout, u.name, func(ctx context.Context) (*tensor.Map, error) {
		results := make([]*tensor.Map, len(u.units))
		errs := make([]error, len(u.units))

		var wg sync.WaitGroup
		for i, sub := range u.units {
			wg.Add(1)
			go func(i int, sub Unit) {
				defer wg.Done()
				results[i], errs[i] = sub.Execute(ctx, in)
			}(i, sub)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("parallel unit %q: sub-unit %d (%s): %w",
					u.name, i, u.units[i].Name(), err)
			}
		}

		// Deterministic merge in sub-unit order.
		out := tensor.NewMap()
		for i, res := range results {
			if res == nil {
				continue
			}
			var mergeErr error
			res.Range(func(key string, t *tensor.Tensor) bool {
				mergeErr = out.Set(fmt.Sprintf("%d_%s", i, key), t)
				return mergeErr == nil
			})
			if mergeErr != nil {
				return nil, mergeErr
			}
		}
		return out, nil
	})
}
