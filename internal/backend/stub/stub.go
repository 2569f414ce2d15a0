// Package stub implements the debug inference backend. It performs no
// numeric work: loaded models report a fixed introspection surface and
// inference emits zero-filled (or echoed) outputs. The stub exists so the
// pipeline, registry, and manager can be exercised without an accelerator.
package stub

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/modelfile"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// MemoryModel is the pseudo-path accepted by LoadModel for a synthetic
// model that needs no file on disk.
const MemoryModel = ":memory:"

// Engine is the stub backend engine.
type Engine struct {
	cfg    backend.Config
	logger *zap.Logger
	echo   bool
	in     backend.TensorInfo
	out    backend.TensorInfo
}

// handle is the stub's model handle.
type handle struct {
	path string
	in   backend.TensorInfo
	out  backend.TensorInfo
}

func (h *handle) Path() string     { return h.path }
func (h *handle) InputCount() int  { return 1 }
func (h *handle) OutputCount() int { return 1 }

func (h *handle) InputInfo(i int) (backend.TensorInfo, error) {
	if i != 0 {
		return backend.TensorInfo{}, errdefs.InvalidArgumentf("input index %d out of range", i)
	}
	return h.in, nil
}

func (h *handle) OutputInfo(i int) (backend.TensorInfo, error) {
	if i != 0 {
		return backend.TensorInfo{}, errdefs.InvalidArgumentf("output index %d out of range", i)
	}
	return h.out, nil
}

// New creates a stub engine. Recognized options:
//
//	mode:         "zero" (default) or "echo"
//	input_shape:  e.g. "1x8" (default 1x8)
//	output_shape: e.g. "1x4" (default matches input_shape)
func New(cfg backend.Config) (backend.Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inShape, err := parseShape(option(cfg, "input_shape", "1x8"))
	if err != nil {
		return nil, errdefs.InvalidArgumentf("input_shape: %v", err)
	}
	outShape := inShape
	if s, ok := cfg.Options["output_shape"]; ok {
		if outShape, err = parseShape(s); err != nil {
			return nil, errdefs.InvalidArgumentf("output_shape: %v", err)
		}
	}

	mode := option(cfg, "mode", "zero")
	if mode != "zero" && mode != "echo" {
		return nil, errdefs.InvalidArgumentf("mode %q (valid: zero, echo)", mode)
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		echo:   mode == "echo",
		in:     backend.TensorInfo{Name: "input", DType: tensor.Float32, Shape: inShape, Layout: tensor.LayoutNC},
		out:    backend.TensorInfo{Name: "output", DType: tensor.Float32, Shape: outShape, Layout: tensor.LayoutNC},
	}, nil
}

// Descriptor returns the registry descriptor for the stub backend.
func Descriptor() backend.Descriptor {
	return backend.Descriptor{Kind: backend.KindStub, Name: "debug-stub", New: New}
}

// Kind implements backend.Engine.
func (e *Engine) Kind() backend.Kind { return backend.KindStub }

// Name implements backend.Engine.
func (e *Engine) Name() string { return "debug-stub" }

// LoadModel accepts MemoryModel for a synthetic model, or a real model
// file whose container format is validated via inspection.
func (e *Engine) LoadModel(ctx context.Context, path string) (backend.ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errdefs.InvalidArgumentf("empty model path")
	}

	if path != MemoryModel {
		info, err := modelfile.Inspect(path)
		if err != nil {
			return nil, errdefs.Wrap(err, "stub", "LoadModel", "model inspection")
		}
		e.logger.Info("stub model loaded",
			zap.String("path", path),
			zap.Stringer("format", info.Format),
			zap.String("model", info.Name),
			zap.Uint64("tensors", info.TensorCount))
	}

	return &handle{path: path, in: e.in, out: e.out}, nil
}

// UnloadModel implements backend.Engine. The stub holds no per-model state.
func (e *Engine) UnloadModel(h backend.ModelHandle) error {
	if h == nil {
		return errdefs.InvalidArgumentf("nil model handle")
	}
	return nil
}

// Infer produces one output tensor shaped by the handle's output
// introspection: zero-filled by default, a clone of the first input in
// echo mode.
func (e *Engine) Infer(
	ctx context.Context, h backend.ModelHandle, inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh, ok := h.(*handle)
	if !ok || sh == nil {
		return nil, fmt.Errorf("%w: foreign model handle", errdefs.ErrEngineNotReady)
	}
	if len(inputs) != sh.InputCount() {
		return nil, errdefs.InvalidArgumentf(
			"model expects %d inputs, got %d", sh.InputCount(), len(inputs))
	}

	if e.echo {
		return []*tensor.Tensor{inputs[0].Clone()}, nil
	}

	info, err := sh.OutputInfo(0)
	if err != nil {
		return nil, err
	}
	out, err := tensor.New(info.Name, info.DType, info.Shape, info.Layout)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

// Close implements backend.Engine.
func (e *Engine) Close() error { return nil }

func option(cfg backend.Config, key, def string) string {
	if v, ok := cfg.Options[key]; ok {
		return v
	}
	return def
}

// parseShape parses "AxBxC" into a shape.
func parseShape(s string) (tensor.Shape, error) {
	parts := strings.Split(s, "x")
	shape := make(tensor.Shape, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad dimension %q", p)
		}
		shape = append(shape, n)
	}
	return shape, shape.Validate()
}
