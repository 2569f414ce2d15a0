package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/pool"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// Pipeline executes an ordered list of units over one shared scratchpad
// map. Execution is not transactional: a unit failure aborts the run but
// scratchpad mutations made by earlier units are not rolled back.
//
// One execution (sync or async) per Pipeline may be in flight at a time;
// the scratchpad is shared state. Callers needing concurrency clone the
// pipeline, which shares the unit graph but not the scratchpad.
type Pipeline struct {
	name       string
	units      []Unit
	scratchpad *tensor.Map
	debug      bool
	pool       *pool.Pool
	logger     *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithDebug enables per-unit execution logging.
func WithDebug(debug bool) PipelineOption {
	return func(p *Pipeline) { p.debug = debug }
}

// WithPool attaches an external memory pool; units reach it via Pool().
func WithPool(mp *pool.Pool) PipelineOption {
	return func(p *Pipeline) { p.pool = mp }
}

// New creates an empty pipeline.
func New(name string, opts ...PipelineOption) (*Pipeline, error) {
	if name == "" {
		return nil, errdefs.InvalidArgumentf("empty pipeline name")
	}
	p := &Pipeline{name: name, scratchpad: tensor.NewMap(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Pool returns the attached memory pool, or nil.
func (p *Pipeline) Pool() *pool.Pool { return p.pool }

// Units returns the attached units in execution order.
func (p *Pipeline) Units() []Unit { return append([]Unit(nil), p.units...) }

// Attach appends a unit to the execution order.
func (p *Pipeline) Attach(u Unit) error {
	if u == nil {
		return errdefs.InvalidArgumentf("nil unit")
	}
	p.units = append(p.units, u)
	return nil
}

// Detach removes the named unit, preserving the order of the rest.
func (p *Pipeline) Detach(name string) bool {
	for i, u := range p.units {
		if u.Name() == name {
			p.units = append(p.units[:i], p.units[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a pipeline sharing this one's unit graph and pool but
// carrying a fresh scratchpad, safe to execute concurrently with the
// original.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{
		name:       p.name,
		units:      append([]Unit(nil), p.units...),
		scratchpad: tensor.NewMap(),
		debug:      p.debug,
		pool:       p.pool,
		logger:     p.logger,
	}
}

// Execute clears the scratchpad, seeds it with in, runs every unit in
// attachment order passing the whole scratchpad, and on success copies
// the scratchpad's final contents into out. The first unit failure
// aborts the run; the error names the failing unit. in may be nil for an
// empty seed.
func (p *Pipeline) Execute(ctx context.Context, in, out *tensor.Map) error {
	if out == nil {
		return errdefs.InvalidArgumentf("pipeline %q: nil output map", p.name)
	}

	p.scratchpad.Clear()
	if in != nil {
		if err := in.MergeInto(p.scratchpad); err != nil {
			return errdefs.Wrap(err, "Pipeline", "Execute", p.name)
		}
	}

	for i, u := range p.units {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		produced, err := u.Execute(ctx, p.scratchpad)
		if err != nil {
			p.logger.Warn("pipeline unit failed",
				zap.String("pipeline", p.name),
				zap.String("unit", u.Name()),
				zap.Stringer("kind", u.Kind()),
				zap.Int("position", i),
				zap.Error(err))
			return fmt.Errorf("pipeline %q: unit %q (position %d): %w", p.name, u.Name(), i, err)
		}
		if produced != nil {
			if err := produced.MergeInto(p.scratchpad); err != nil {
				return errdefs.Wrap(err, "Pipeline", "Execute", u.Name())
			}
		}

		if p.debug {
			p.logger.Debug("pipeline unit done",
				zap.String("pipeline", p.name),
				zap.String("unit", u.Name()),
				zap.Stringer("kind", u.Kind()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("scratchpad_keys", p.scratchpad.Len()))
		}
	}

	return p.scratchpad.MergeInto(out)
}

// ExecuteAsync runs Execute on its own goroutine and invokes done with
// the result. The single-execution-in-flight contract still applies.
func (p *Pipeline) ExecuteAsync(ctx context.Context, in, out *tensor.Map, done func(error)) {
	go func() {
		err := p.Execute(ctx, in, out)
		if done != nil {
			done(err)
		}
	}()
}
