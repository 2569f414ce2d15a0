package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// byteTensor builds a one-element uint8 tensor holding v.
func byteTensor(t *testing.T, name string, v byte) *tensor.Tensor {
	t.Helper()
	ten, err := tensor.New(name, tensor.Uint8, tensor.Shape{1}, tensor.LayoutN)
	require.NoError(t, err)
	ten.Bytes()[0] = v
	return ten
}

// produceUnit emits one byte tensor under key.
func produceUnit(t *testing.T, name, key string, v byte) Unit {
	t.Helper()
	u, err := NewFunctionUnit(name,
		func(_ context.Context, _ *tensor.Map, _ any) (*tensor.Map, error) {
			out := tensor.NewMap()
			require.NoError(t, out.Set(key, byteTensor(t, key, v)))
			return out, nil
		},
		WithProduces(key))
	require.NoError(t, err)
	return u
}

// constCondition returns a condition producing a fixed boolean tensor.
func constCondition(t *testing.T, key string, v bool) Condition {
	t.Helper()
	return func(_ context.Context, _ *tensor.Map) (*tensor.Map, error) {
		b := byte(0)
		if v {
			b = 1
		}
		out := tensor.NewMap()
		require.NoError(t, out.Set(key, byteTensor(t, key, b)))
		return out, nil
	}
}

func TestPipelineChainsUnitOutputs(t *testing.T) {
	p, err := New("chain")
	require.NoError(t, err)

	// A writes "x"; B reads "x" and writes "y".
	require.NoError(t, p.Attach(produceUnit(t, "A", "x", 1)))
	b, err := NewFunctionUnit("B",
		func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
			out := tensor.NewMap()
			require.NoError(t, out.Set("y", byteTensor(t, "y", in.Get("x").Bytes()[0]+1)))
			return out, nil
		},
		WithRequires("x"), WithProduces("y"))
	require.NoError(t, err)
	require.NoError(t, p.Attach(b))

	out := tensor.NewMap()
	require.NoError(t, p.Execute(context.Background(), nil, out))
	assert.True(t, out.Has("x"))
	assert.True(t, out.Has("y"))
	assert.Equal(t, byte(2), out.Get("y").Bytes()[0])

	// Without A, B's required key never appears.
	require.True(t, p.Detach("A"))
	out = tensor.NewMap()
	err = p.Execute(context.Background(), nil, out)
	assert.ErrorIs(t, err, errdefs.ErrMissingInput)
	assert.Contains(t, err.Error(), `"B"`)
}

func TestPipelineSeedsScratchpadFromInputs(t *testing.T) {
	p, err := New("seed")
	require.NoError(t, err)

	echo, err := NewFunctionUnit("echo",
		func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
			out := tensor.NewMap()
			require.NoError(t, out.Set("copy", in.Get("seed")))
			return out, nil
		},
		WithRequires("seed"))
	require.NoError(t, err)
	require.NoError(t, p.Attach(echo))

	in := tensor.NewMap()
	seed := byteTensor(t, "seed", 7)
	require.NoError(t, in.Set("seed", seed))

	out := tensor.NewMap()
	require.NoError(t, p.Execute(context.Background(), in, out))
	// Inputs flow through to the output map, and references are shared.
	assert.Same(t, seed, out.Get("seed"))
	assert.Same(t, seed, out.Get("copy"))
}

func TestPipelineFailureKeepsPartialScratchpad(t *testing.T) {
	// Mid-run failure is not rolled back; a second run over the same
	// pipeline starts from a cleared scratchpad regardless.
	p, err := New("partial")
	require.NoError(t, err)

	require.NoError(t, p.Attach(produceUnit(t, "first", "x", 1)))
	boom, err := NewFunctionUnit("boom",
		func(_ context.Context, _ *tensor.Map, _ any) (*tensor.Map, error) {
			return nil, fmt.Errorf("deliberate failure")
		})
	require.NoError(t, err)
	require.NoError(t, p.Attach(boom))

	out := tensor.NewMap()
	err = p.Execute(context.Background(), nil, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"boom"`)
	// The failed run never reached the output copy.
	assert.Equal(t, 0, out.Len())
	// But the first unit's write survives on the scratchpad.
	assert.True(t, p.scratchpad.Has("x"))
}

func TestPipelineNilOutputRejected(t *testing.T) {
	p, err := New("nil-out")
	require.NoError(t, err)
	assert.ErrorIs(t, p.Execute(context.Background(), nil, nil), errdefs.ErrInvalidArgument)
}

func TestExecuteAsync(t *testing.T) {
	p, err := New("async")
	require.NoError(t, err)
	require.NoError(t, p.Attach(produceUnit(t, "A", "x", 9)))

	out := tensor.NewMap()
	done := make(chan error, 1)
	p.ExecuteAsync(context.Background(), nil, out, func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("async execution never completed")
	}
	assert.True(t, out.Has("x"))
}

func TestPipelineCloneIsolatesScratchpad(t *testing.T) {
	p, err := New("orig")
	require.NoError(t, err)
	require.NoError(t, p.Attach(produceUnit(t, "A", "x", 1)))

	clone := p.Clone()
	require.Len(t, clone.Units(), 1)

	out := tensor.NewMap()
	require.NoError(t, clone.Execute(context.Background(), nil, out))
	assert.True(t, clone.scratchpad.Has("x"))
	assert.Equal(t, 0, p.scratchpad.Len())
}

func TestFunctionUnitTimeoutEnforced(t *testing.T) {
	slow, err := NewFunctionUnit("slow",
		func(ctx context.Context, _ *tensor.Map, _ any) (*tensor.Map, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return tensor.NewMap(), nil
			}
		},
		WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = slow.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrTimeout)
}

func TestFunctionUnitUserData(t *testing.T) {
	u, err := NewFunctionUnit("ctx",
		func(_ context.Context, _ *tensor.Map, userData any) (*tensor.Map, error) {
			assert.Equal(t, 42, userData)
			return tensor.NewMap(), nil
		},
		WithUserData(42))
	require.NoError(t, err)
	_, err = u.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
}

func TestParallelUnitPrefixesMergedKeys(t *testing.T) {
	// Two sub-units both producing "out" never collide.
	sub0 := produceUnit(t, "sub0", "out", 10)
	sub1 := produceUnit(t, "sub1", "out", 20)
	par, err := NewParallelUnit("fanout", []Unit{sub0, sub1})
	require.NoError(t, err)

	out, err := par.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
	assert.Equal(t, []string{"0_out", "1_out"}, out.Keys())
	assert.Equal(t, byte(10), out.Get("0_out").Bytes()[0])
	assert.Equal(t, byte(20), out.Get("1_out").Bytes()[0])
}

func TestParallelUnitFirstErrorWins(t *testing.T) {
	ok := produceUnit(t, "ok", "out", 1)
	bad, err := NewFunctionUnit("bad",
		func(_ context.Context, _ *tensor.Map, _ any) (*tensor.Map, error) {
			return nil, errdefs.InvalidArgumentf("sub-unit failure")
		})
	require.NoError(t, err)

	par, err := NewParallelUnit("fanout", []Unit{ok, bad})
	require.NoError(t, err)

	_, err = par.Execute(context.Background(), tensor.NewMap())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub-unit 1")
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestParallelUnitSharesInput(t *testing.T) {
	var calls atomic.Int32
	reader := func(name string) Unit {
		u, err := NewFunctionUnit(name,
			func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
				calls.Add(1)
				out := tensor.NewMap()
				if err := out.Set("seen", in.Get("shared")); err != nil {
					return nil, err
				}
				return out, nil
			},
			WithRequires("shared"))
		require.NoError(t, err)
		return u
	}

	par, err := NewParallelUnit("fanout", []Unit{reader("r0"), reader("r1"), reader("r2")})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, par.Requires())

	in := tensor.NewMap()
	require.NoError(t, in.Set("shared", byteTensor(t, "shared", 3)))
	out, err := par.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, out.Len())
}

func TestConditionalUnitBranches(t *testing.T) {
	whenTrue := produceUnit(t, "T", "taken", 1)
	whenFalse := produceUnit(t, "F", "taken", 0)

	cond, err := NewConditionalUnit("branch", constCondition(t, ConditionKey, true), whenTrue, whenFalse)
	require.NoError(t, err)
	out, err := cond.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
	assert.Equal(t, byte(1), out.Get("taken").Bytes()[0])

	cond, err = NewConditionalUnit("branch", constCondition(t, ConditionKey, false), whenTrue, whenFalse)
	require.NoError(t, err)
	out, err = cond.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
	assert.Equal(t, byte(0), out.Get("taken").Bytes()[0])
}

func TestConditionalUnitNilBranchIsNoop(t *testing.T) {
	cond, err := NewConditionalUnit("branch", constCondition(t, ConditionKey, false),
		produceUnit(t, "T", "taken", 1), nil)
	require.NoError(t, err)

	out, err := cond.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}

func TestConditionalUnitMalformedCondition(t *testing.T) {
	// Condition produced a map without the expected tensor.
	noTensor := func(_ context.Context, _ *tensor.Map) (*tensor.Map, error) {
		return tensor.NewMap(), nil
	}
	cond, err := NewConditionalUnit("branch", noTensor, produceUnit(t, "T", "x", 1), nil)
	require.NoError(t, err)
	_, err = cond.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrInvalidCondition)

	// Condition produced no map at all.
	nilMap := func(_ context.Context, _ *tensor.Map) (*tensor.Map, error) {
		return nil, nil
	}
	cond, err = NewConditionalUnit("branch", nilMap, produceUnit(t, "T", "x", 1), nil)
	require.NoError(t, err)
	_, err = cond.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrInvalidCondition)
}

func TestLoopUnitHardStopsAtCap(t *testing.T) {
	var bodyRuns atomic.Int32
	body, err := NewFunctionUnit("body",
		func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
			bodyRuns.Add(1)
			return in, nil
		})
	require.NoError(t, err)

	// Always-true continuation still halts at the cap.
	loop, err := NewLoopUnit("loop", constCondition(t, ContinueKey, true), body, 5)
	require.NoError(t, err)
	_, err = loop.Execute(context.Background(), tensor.NewMap())
	require.NoError(t, err)
	assert.Equal(t, int32(5), bodyRuns.Load())
}

func TestLoopUnitStopsWhenConditionFalls(t *testing.T) {
	// Body increments a counter tensor; continuation allows values < 3.
	body, err := NewFunctionUnit("inc",
		func(_ context.Context, in *tensor.Map, _ any) (*tensor.Map, error) {
			next := in.Get("n").Clone()
			next.Bytes()[0]++
			out := tensor.NewMap()
			if err := out.Set("n", next); err != nil {
				return nil, err
			}
			return out, nil
		},
		WithRequires("n"))
	require.NoError(t, err)

	cond := func(_ context.Context, in *tensor.Map) (*tensor.Map, error) {
		b := byte(0)
		if in.Get("n").Bytes()[0] < 3 {
			b = 1
		}
		out := tensor.NewMap()
		if err := out.Set(ContinueKey, byteTensor(t, ContinueKey, b)); err != nil {
			return nil, err
		}
		return out, nil
	}

	loop, err := NewLoopUnit("count", cond, body, 100)
	require.NoError(t, err)

	in := tensor.NewMap()
	require.NoError(t, in.Set("n", byteTensor(t, "n", 0)))
	out, err := loop.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, byte(3), out.Get("n").Bytes()[0])
}

func TestLoopUnitRejectsNonPositiveCap(t *testing.T) {
	body := produceUnit(t, "body", "x", 1)
	_, err := NewLoopUnit("loop", constCondition(t, ContinueKey, true), body, 0)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestUnitKindStrings(t *testing.T) {
	assert.Equal(t, "function", KindFunction.String())
	assert.Equal(t, "model", KindModel.String())
	assert.Equal(t, "parallel", KindParallel.String())
	assert.Equal(t, "conditional", KindConditional.String())
	assert.Equal(t, "loop", KindLoop.String())
}
