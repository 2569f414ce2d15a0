package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/backend/stub"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

func stubModel(t *testing.T, options map[string]string) (backend.Engine, backend.ModelHandle) {
	t.Helper()
	eng, err := stub.New(backend.Config{Options: options})
	require.NoError(t, err)
	h, err := eng.LoadModel(context.Background(), stub.MemoryModel)
	require.NoError(t, err)
	return eng, h
}

func TestModelUnitRequiresBinding(t *testing.T) {
	u, err := NewModelUnit("infer", []string{"input"})
	require.NoError(t, err)

	_, err = u.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrEngineNotReady)
	assert.Nil(t, u.Produces())
}

func TestModelUnitRunsInference(t *testing.T) {
	eng, h := stubModel(t, map[string]string{"mode": "echo"})
	u, err := NewModelUnit("infer", []string{"input"})
	require.NoError(t, err)
	u.Bind(eng, h)
	assert.Equal(t, []string{"output"}, u.Produces())

	in := tensor.NewMap()
	x, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 8}, tensor.LayoutNC)
	require.NoError(t, err)
	x.AsFloat32()[0] = 3.5
	require.NoError(t, in.Set("input", x))

	out, err := u.Execute(context.Background(), in)
	require.NoError(t, err)
	got := out.Get("output")
	require.NotNil(t, got)
	// Echo mode clones the input; the output key still comes from the
	// handle's introspection.
	assert.Equal(t, float32(3.5), got.AsFloat32()[0])
}

func TestModelUnitOutputShapeFromIntrospection(t *testing.T) {
	eng, h := stubModel(t, map[string]string{"input_shape": "1x8", "output_shape": "1x4"})
	u, err := NewModelUnit("infer", []string{"input"})
	require.NoError(t, err)
	u.Bind(eng, h)

	in := tensor.NewMap()
	x, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 8}, tensor.LayoutNC)
	require.NoError(t, err)
	require.NoError(t, in.Set("input", x))

	out, err := u.Execute(context.Background(), in)
	require.NoError(t, err)
	got := out.Get("output")
	require.NotNil(t, got)
	assert.True(t, got.Shape().Equal(tensor.Shape{1, 4}))
}

func TestModelUnitMissingInput(t *testing.T) {
	eng, h := stubModel(t, nil)
	u, err := NewModelUnit("infer", []string{"input"})
	require.NoError(t, err)
	u.Bind(eng, h)

	_, err = u.Execute(context.Background(), tensor.NewMap())
	assert.ErrorIs(t, err, errdefs.ErrMissingInput)
}

func TestModelUnitInPipeline(t *testing.T) {
	eng, h := stubModel(t, map[string]string{"mode": "echo"})
	u, err := NewModelUnit("infer", []string{"input"})
	require.NoError(t, err)
	u.Bind(eng, h)

	p, err := New("serve")
	require.NoError(t, err)
	require.NoError(t, p.Attach(u))

	in := tensor.NewMap()
	x, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 8}, tensor.LayoutNC)
	require.NoError(t, err)
	require.NoError(t, in.Set("input", x))

	out := tensor.NewMap()
	require.NoError(t, p.Execute(context.Background(), in, out))
	assert.True(t, out.Has("input"))
	assert.True(t, out.Has("output"))
}
