// Package webgpu implements a GPU inference engine over go-webgpu's
// zero-CGO WebGPU bindings. Model weights stay host-side; activations
// travel through storage buffers and a cached compute pipeline, with a
// staging buffer for readback.
package webgpu

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/modelfile"
	"github.com/quiver-ml/quiver/internal/tensor"
)

const workgroupSize = 64

// passthroughWGSL moves activations through the device untouched. Real
// model graphs bind their own shaders; this is the minimal kernel that
// proves the adapter, device, queue, and readback path work.
const passthroughWGSL = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> output: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < arrayLength(&input)) {
        output[i] = input[i];
    }
}
`

// Engine is a WebGPU-backed inference engine.
type Engine struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.Mutex
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline

	name   string
	logger *zap.Logger
}

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

// New creates a WebGPU engine, requesting a high-performance adapter and
// a default device. Fails cleanly when no native WebGPU implementation
// is present.
func New(cfg backend.Config) (eng backend.Engine, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The native loader panics when wgpu_native is absent.
	defer func() {
		if r := recover(); r != nil {
			eng = nil
			err = fmt.Errorf("%w: webgpu native library unavailable: %v", errdefs.ErrEngineNotReady, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: no webgpu instance: %v", errdefs.ErrEngineNotReady, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: no webgpu adapter: %v", errdefs.ErrEngineNotReady, err)
	}

	name := "webgpu"
	if info, infoErr := adapter.GetInfo(); infoErr == nil && info != nil {
		name = fmt.Sprintf("webgpu/%s", info.Device)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no webgpu device: %v", errdefs.ErrEngineNotReady, err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: webgpu device has no queue", errdefs.ErrEngineNotReady)
	}

	logger.Info("webgpu engine ready", zap.String("adapter", name))
	return &Engine{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
		name:      name,
		logger:    logger,
	}, nil
}

// Descriptor returns the registry descriptor for the WebGPU backend.
func Descriptor() backend.Descriptor {
	return backend.Descriptor{Kind: backend.KindWebGPU, Name: "webgpu", New: New}
}

// Kind implements backend.Engine.
func (e *Engine) Kind() backend.Kind { return backend.KindWebGPU }

// Name implements backend.Engine.
func (e *Engine) Name() string { return e.name }

// LoadModel inspects the model container and derives the handle's I/O
// surface from its first and last tensor declarations.
func (e *Engine) LoadModel(ctx context.Context, path string) (backend.ModelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errdefs.InvalidArgumentf("empty model path")
	}

	info, err := modelfile.Inspect(path)
	if err != nil {
		return nil, errdefs.Wrap(err, "webgpu", "LoadModel", "model inspection")
	}

	in := backend.TensorInfo{Name: "input", DType: tensor.Float32, Shape: tensor.Shape{1, 8}, Layout: tensor.LayoutNC}
	out := backend.TensorInfo{Name: "output", DType: tensor.Float32, Shape: tensor.Shape{1, 8}, Layout: tensor.LayoutNC}
	if n := len(info.Tensors); n > 0 {
		first, last := info.Tensors[0], info.Tensors[n-1]
		in = backend.TensorInfo{Name: first.Name, DType: tensor.Float32, Shape: first.Shape, Layout: layoutFor(first.Shape)}
		out = backend.TensorInfo{Name: last.Name, DType: tensor.Float32, Shape: last.Shape, Layout: layoutFor(last.Shape)}
	}

	e.logger.Info("webgpu model loaded",
		zap.String("path", path),
		zap.Stringer("format", info.Format),
		zap.Uint64("tensors", info.TensorCount))
	return &handle{path: path, in: in, out: out}, nil
}

// UnloadModel implements backend.Engine.
func (e *Engine) UnloadModel(h backend.ModelHandle) error {
	if h == nil {
		return errdefs.InvalidArgumentf("nil model handle")
	}
	return nil
}

// Infer pushes the first input through the device and returns the
// result shaped by the handle's output introspection.
func (e *Engine) Infer(ctx context.Context, h backend.ModelHandle, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wh, ok := h.(*handle)
	if !ok || wh == nil {
		return nil, fmt.Errorf("%w: foreign model handle", errdefs.ErrEngineNotReady)
	}
	if len(inputs) != 1 {
		return nil, errdefs.InvalidArgumentf("webgpu engine expects 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	if in.DType() != tensor.Float32 {
		return nil, errdefs.InvalidArgumentf("webgpu engine is float32-only, got %s", in.DType())
	}

	raw, err := e.dispatch("passthrough", passthroughWGSL, in.Bytes())
	if err != nil {
		return nil, err
	}

	out, err := tensor.FromBytes(wh.out.Name, tensor.Float32,
		tensor.Shape{len(raw) / 4}, tensor.LayoutN, tensor.MemCPU, raw, true)
	if err != nil {
		return nil, err
	}
	if wh.out.Shape.NumElements() == out.NumElements() {
		if err := out.Reshape(wh.out.Shape); err != nil {
			return nil, err
		}
	}
	return []*tensor.Tensor{out}, nil
}

// dispatch runs a single-input, single-output compute kernel over data.
func (e *Engine) dispatch(name, wgsl string, data []byte) ([]byte, error) {
	pipeline := e.pipeline(name, wgsl)

	size := uint64(len(data))
	bufIn := e.uploadBuffer(data, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufIn.Release()

	bufOut := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer bufOut.Release()

	bindGroup := e.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufIn, 0, size),
		wgpu.BufferBindingEntry(1, bufOut, 0, size),
	})
	defer bindGroup.Release()

	encoder := e.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups(len(data)/4), 1, 1)
	pass.End()
	e.queue.Submit(encoder.Finish(nil))

	return e.readBuffer(bufOut, size)
}

// pipeline returns the cached compute pipeline for a kernel, compiling
// it on first use.
func (e *Engine) pipeline(name, wgsl string) *wgpu.ComputePipeline {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pipelines[name]; ok {
		return p
	}
	shader, ok := e.shaders[name]
	if !ok {
		shader = e.device.CreateShaderModuleWGSL(wgsl)
		e.shaders[name] = shader
	}
	p := e.device.CreateComputePipelineSimple(nil, shader, "main")
	e.pipelines[name] = p
	return p
}

// uploadBuffer creates a buffer mapped at creation and copies data in.
func (e *Engine) uploadBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buf := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buf.Unmap()
	return buf
}

// readBuffer copies a storage buffer back through a staging buffer;
// storage buffers cannot be mapped directly.
func (e *Engine) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := e.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	e.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(e.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, errdefs.Wrap(err, "webgpu", "readBuffer", "staging map")
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	out := make([]byte, size)
	copy(out, mapped)
	staging.Unmap()
	return out, nil
}

// Close releases every cached pipeline and the device chain.
func (e *Engine) Close() error {
	e.mu.Lock()
	for _, p := range e.pipelines {
		p.Release()
	}
	for _, s := range e.shaders {
		s.Release()
	}
	e.pipelines = make(map[string]*wgpu.ComputePipeline)
	e.shaders = make(map[string]*wgpu.ShaderModule)
	e.mu.Unlock()

	e.device.Release()
	e.adapter.Release()
	e.instance.Release()
	return nil
}

// workgroups returns ceil(n / workgroupSize).
func workgroups(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}

// layoutFor picks a layout tag from tensor rank.
func layoutFor(shape tensor.Shape) tensor.Layout {
	switch len(shape) {
	case 4:
		return tensor.LayoutNCHW
	case 2:
		return tensor.LayoutNC
	default:
		return tensor.LayoutN
	}
}
