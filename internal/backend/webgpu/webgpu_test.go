package webgpu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// newEngineOrSkip skips when no native WebGPU implementation is present
// (CI machines without a GPU or wgpu_native).
func newEngineOrSkip(t *testing.T) backend.Engine {
	t.Helper()
	eng, err := New(backend.Config{})
	if err != nil {
		t.Skipf("webgpu unavailable: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestWorkgroups(t *testing.T) {
	assert.Equal(t, uint32(1), workgroups(1))
	assert.Equal(t, uint32(1), workgroups(64))
	assert.Equal(t, uint32(2), workgroups(65))
	assert.Equal(t, uint32(16), workgroups(1024))
}

func TestDescriptor(t *testing.T) {
	d := Descriptor()
	assert.Equal(t, backend.KindWebGPU, d.Kind)
	assert.Equal(t, "webgpu", d.Name)
	assert.NotNil(t, d.New)
}

func TestLayoutFor(t *testing.T) {
	assert.Equal(t, tensor.LayoutNCHW, layoutFor(tensor.Shape{1, 3, 4, 4}))
	assert.Equal(t, tensor.LayoutNC, layoutFor(tensor.Shape{1, 8}))
	assert.Equal(t, tensor.LayoutN, layoutFor(tensor.Shape{8}))
}

func TestInferPassthrough(t *testing.T) {
	eng := newEngineOrSkip(t)

	// No model file on hand: fabricate a handle directly; Infer only
	// consults its output introspection.
	h := &handle{
		path: "synthetic",
		in:   backend.TensorInfo{Name: "input", DType: tensor.Float32, Shape: tensor.Shape{1, 16}, Layout: tensor.LayoutNC},
		out:  backend.TensorInfo{Name: "output", DType: tensor.Float32, Shape: tensor.Shape{1, 16}, Layout: tensor.LayoutNC},
	}

	in, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 16}, tensor.LayoutNC)
	require.NoError(t, err)
	for i := range in.AsFloat32() {
		in.AsFloat32()[i] = float32(i) * 0.5
	}

	outputs, err := eng.Infer(context.Background(), h, []*tensor.Tensor{in})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, in.AsFloat32(), outputs[0].AsFloat32())
}

func TestInferValidation(t *testing.T) {
	eng := newEngineOrSkip(t)
	h := &handle{path: "synthetic",
		in:  backend.TensorInfo{Name: "input", DType: tensor.Float32, Shape: tensor.Shape{1, 4}, Layout: tensor.LayoutNC},
		out: backend.TensorInfo{Name: "output", DType: tensor.Float32, Shape: tensor.Shape{1, 4}, Layout: tensor.LayoutNC},
	}

	_, err := eng.Infer(context.Background(), h, nil)
	assert.Error(t, err)

	wrong, err := tensor.New("input", tensor.Int32, tensor.Shape{1, 4}, tensor.LayoutNC)
	require.NoError(t, err)
	_, err = eng.Infer(context.Background(), h, []*tensor.Tensor{wrong})
	assert.Error(t, err)
}
