package manager

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/backend/stub"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	reg := backend.NewRegistry()
	require.NoError(t, reg.Register(stub.Descriptor()))
	m, err := New(reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestLoadModelGeneratesID(t *testing.T) {
	m := newTestManager(t)

	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "", backend.KindStub)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())

	model, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, stub.MemoryModel, model.Path())
	assert.Equal(t, backend.KindStub, model.Kind())
}

func TestLoadModelExplicitIDAndDuplicate(t *testing.T) {
	m := newTestManager(t)

	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "resnet", backend.KindStub)
	require.NoError(t, err)
	assert.Equal(t, "resnet", id)

	_, err = m.LoadModel(context.Background(), stub.MemoryModel, "resnet", backend.KindStub)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
	assert.Equal(t, 1, m.Len())
}

func TestLoadModelDefaultKind(t *testing.T) {
	m := newTestManager(t, WithDefaultKind(backend.KindStub))
	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "", -1)
	require.NoError(t, err)
	model, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, backend.KindStub, model.Kind())
}

func TestLoadModelUnknownBackend(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LoadModel(context.Background(), stub.MemoryModel, "", backend.KindNPU)
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestUnloadModel(t *testing.T) {
	m := newTestManager(t)
	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "", backend.KindStub)
	require.NoError(t, err)

	require.NoError(t, m.UnloadModel(id))
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.UnloadModel(id), errdefs.ErrModelNotFound)
	_, err = m.Get(id)
	assert.ErrorIs(t, err, errdefs.ErrModelNotFound)
}

func TestInfer(t *testing.T) {
	m := newTestManager(t, WithEngineConfig(backend.Config{
		Options: map[string]string{"mode": "echo"},
	}), WithMetrics(prometheus.NewRegistry()))

	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "echo", backend.KindStub)
	require.NoError(t, err)

	in, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 8}, tensor.LayoutNC)
	require.NoError(t, err)
	in.AsFloat32()[3] = 2.25

	outputs, err := m.Infer(context.Background(), id, []*tensor.Tensor{in})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, float32(2.25), outputs[0].AsFloat32()[3])

	infos := m.Models()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].Inferences)
}

func TestInferSingle(t *testing.T) {
	m := newTestManager(t, WithEngineConfig(backend.Config{
		Options: map[string]string{"mode": "echo"},
	}))
	id, err := m.LoadModel(context.Background(), stub.MemoryModel, "", backend.KindStub)
	require.NoError(t, err)

	in, err := tensor.New("input", tensor.Float32, tensor.Shape{1, 8}, tensor.LayoutNC)
	require.NoError(t, err)
	out, err := m.InferSingle(context.Background(), id, in)
	require.NoError(t, err)
	assert.Equal(t, in.ByteSize(), out.ByteSize())

	_, err = m.InferSingle(context.Background(), id, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidArgument)
}

func TestInferUnknownModel(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Infer(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, errdefs.ErrModelNotFound)
}

func TestModelsSortedByID(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []string{"b", "a", "c"} {
		_, err := m.LoadModel(context.Background(), stub.MemoryModel, id, backend.KindStub)
		require.NoError(t, err)
	}
	infos := m.Models()
	require.Len(t, infos, 3)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, "b", infos[1].ID)
	assert.Equal(t, "c", infos[2].ID)
}

func TestCloseUnloadsEverything(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 3; i++ {
		_, err := m.LoadModel(context.Background(), stub.MemoryModel, "", backend.KindStub)
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Len())
}
