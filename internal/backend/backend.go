// Package backend defines the pluggable inference-backend contract and the
// process-wide registry mapping backend kinds to engine constructors.
package backend

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/tensor"
)

// Kind identifies a concrete inference backend implementation.
type Kind int

// Known backend kinds. Plugins may register additional kinds above KindUser.
const (
	KindStub Kind = iota
	KindONNX
	KindWebGPU
	KindNPU
	// KindUser is the first kind value available to out-of-tree plugins.
	KindUser Kind = 1000
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindStub:
		return "stub"
	case KindONNX:
		return "onnx"
	case KindWebGPU:
		return "webgpu"
	case KindNPU:
		return "npu"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a string into a Kind.
// Returns an error for unrecognized values.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "stub":
		return KindStub, nil
	case "onnx":
		return KindONNX, nil
	case "webgpu":
		return KindWebGPU, nil
	case "npu":
		return KindNPU, nil
	default:
		return 0, fmt.Errorf("unknown backend kind: %q (valid: stub, onnx, webgpu, npu)", s)
	}
}

// Config carries engine construction options.
type Config struct {
	// Device selects a device within the backend ("cpu", "gpu:0", ...).
	// Interpretation is backend-specific.
	Device string
	// Options holds backend-specific key/value settings.
	Options map[string]string
	// Logger receives engine diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// TensorInfo describes one model input or output slot.
type TensorInfo struct {
	Name   string
	DType  tensor.DataType
	Shape  tensor.Shape
	Layout tensor.Layout
}

// ModelHandle is an opaque handle to a loaded model, exposing the
// introspection surface used by model units to shape their outputs.
type ModelHandle interface {
	// Path returns the model path the handle was loaded from.
	Path() string
	// InputCount returns the number of model inputs.
	InputCount() int
	// OutputCount returns the number of model outputs.
	OutputCount() int
	// InputInfo describes input slot i.
	InputInfo(i int) (TensorInfo, error)
	// OutputInfo describes output slot i.
	OutputInfo(i int) (TensorInfo, error)
}

// Engine is a live backend instance. Engine operations are never called
// concurrently on the same instance; serialization is the caller's job
// (the model manager holds one engine per model).
type Engine interface {
	// Kind returns the backend kind that produced this engine.
	Kind() Kind
	// Name returns a human-readable engine name.
	Name() string
	// LoadModel loads the model at path and returns its handle.
	LoadModel(ctx context.Context, path string) (ModelHandle, error)
	// UnloadModel releases the handle's resources.
	UnloadModel(h ModelHandle) error
	// Infer runs the model over inputs and returns its outputs.
	Infer(ctx context.Context, h ModelHandle, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
	// Close releases the engine itself.
	Close() error
}

// Descriptor is the registered (kind, name, constructor) triple for a
// backend.
type Descriptor struct {
	Kind Kind
	Name string
	New  func(Config) (Engine, error)
}
