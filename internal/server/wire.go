package server

import (
	"math"

	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/tensor"
)

// wireTensor is the JSON encoding of one tensor: float32 payloads only,
// which covers every model surface the HTTP front end serves.
type wireTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []wireTensor `json:"inputs"`
}

type inferResponse struct {
	Status  string       `json:"status"`
	Outputs []wireTensor `json:"outputs"`
}

// tensors materializes the request's inputs as float32 tensors.
func (r *inferRequest) tensors() ([]*tensor.Tensor, error) {
	if len(r.Inputs) == 0 {
		return nil, errdefs.InvalidArgumentf("request has no inputs")
	}

	out := make([]*tensor.Tensor, len(r.Inputs))
	for i, wt := range r.Inputs {
		shape := tensor.Shape(wt.Shape)
		if err := shape.Validate(); err != nil {
			return nil, errdefs.InvalidArgumentf("input %d: invalid shape: %v", i, err)
		}
		if shape.NumElements() != len(wt.Data) {
			return nil, errdefs.InvalidArgumentf(
				"input %d: shape %v wants %d elements, data has %d",
				i, wt.Shape, shape.NumElements(), len(wt.Data))
		}

		t, err := tensor.New(wt.Name, tensor.Float32, shape, layoutFor(shape))
		if err != nil {
			return nil, err
		}
		copy(t.AsFloat32(), wt.Data)
		out[i] = t
	}
	return out, nil
}

// inferResponseFrom flattens output tensors back to the wire form.
func inferResponseFrom(outputs []*tensor.Tensor) (*inferResponse, error) {
	resp := &inferResponse{Status: "ok", Outputs: make([]wireTensor, len(outputs))}
	for i, t := range outputs {
		data, err := float32Data(t)
		if err != nil {
			return nil, err
		}
		resp.Outputs[i] = wireTensor{
			Name:  t.Name(),
			Shape: t.Shape(),
			Data:  data,
		}
	}
	return resp, nil
}

// float32Data widens common numeric dtypes to float32 for transport.
func float32Data(t *tensor.Tensor) ([]float32, error) {
	switch t.DType() {
	case tensor.Float32:
		return append([]float32(nil), t.AsFloat32()...), nil
	case tensor.Float64:
		src := t.AsFloat64()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out, nil
	case tensor.Int32:
		src := t.AsInt32()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out, nil
	case tensor.Int64:
		src := t.AsInt64()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out, nil
	case tensor.Uint8:
		src := t.AsUint8()
		out := make([]float32, len(src))
		for i, v := range src {
			out[i] = float32(v)
		}
		return out, nil
	case tensor.Float16:
		bits := t.AsFloat16Bits()
		out := make([]float32, len(bits))
		for i, b := range bits {
			out[i] = float16ToFloat32(b)
		}
		return out, nil
	default:
		return nil, errdefs.InvalidArgumentf(
			"tensor %q: dtype %s not representable on the wire", t.Name(), t.DType())
	}
}

// float16ToFloat32 expands an IEEE 754 binary16 value.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var bits uint32
	switch {
	case exp == 0 && frac == 0:
		bits = sign << 31
	case exp == 0:
		// Subnormal: renormalize.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		bits = sign<<31 | e<<23 | (frac&0x3ff)<<13
	case exp == 0x1f:
		bits = sign<<31 | 0xff<<23 | frac<<13
	default:
		bits = sign<<31 | (exp-15+127)<<23 | frac<<13
	}
	return math.Float32frombits(bits)
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
