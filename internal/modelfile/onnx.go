package modelfile

import (
	"fmt"
	"io"
	"os"

	"github.com/quiver-ml/quiver/internal/tensor"
)

// Minimal protobuf wire decoder for ONNX ModelProto metadata: enough to
// read the producer, graph name, and the graph's input/output value
// info. Weights and nodes are skipped wholesale.

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// ONNX TensorProto.DataType values.
const (
	onnxFloat   = 1
	onnxUint8   = 2
	onnxInt8    = 3
	onnxInt16   = 5
	onnxInt32   = 6
	onnxInt64   = 7
	onnxString  = 8
	onnxBool    = 9
	onnxFloat16 = 10
	onnxDouble  = 11
)

type protoReader struct {
	data []byte
	pos  int
}

func (p *protoReader) done() bool { return p.pos >= len(p.data) }

func (p *protoReader) readVarint() (uint64, error) {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		if p.pos >= len(p.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := p.data[p.pos]
		p.pos++
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("varint overflow")
}

func (p *protoReader) readTag() (field int, wire int, err error) {
	tag, err := p.readVarint()
	if err != nil {
		return 0, 0, err
	}
	return int(tag >> 3), int(tag & 7), nil
}

func (p *protoReader) readBytes() ([]byte, error) {
	n, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	if p.pos+int(n) > len(p.data) {
		return nil, io.ErrUnexpectedEOF
	}
	out := p.data[p.pos : p.pos+int(n)]
	p.pos += int(n)
	return out, nil
}

func (p *protoReader) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := p.readVarint()
		return err
	case wire64Bit:
		p.pos += 8
	case wire32Bit:
		p.pos += 4
	case wireBytes:
		_, err := p.readBytes()
		return err
	default:
		return fmt.Errorf("unsupported wire type %d", wire)
	}
	if p.pos > len(p.data) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// parseONNX walks the ModelProto and fills info with the graph's I/O
// surface: inputs first, then outputs, in declaration order.
func parseONNX(path string, info *Info) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model file: %w", err)
	}

	p := &protoReader{data: data}
	var graph []byte
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // ir_version
			v, err := p.readVarint()
			if err != nil {
				return err
			}
			info.Version = uint32(v)
		case 2: // producer_name
			b, err := p.readBytes()
			if err != nil {
				return err
			}
			info.Architecture = string(b)
		case 7: // graph
			if graph, err = p.readBytes(); err != nil {
				return err
			}
		default:
			if err := p.skip(wire); err != nil {
				return err
			}
		}
	}
	if graph == nil {
		return fmt.Errorf("onnx model has no graph")
	}
	return parseONNXGraph(graph, info)
}

func parseONNXGraph(data []byte, info *Info) error {
	p := &protoReader{data: data}
	var inputs, outputs []TensorDecl
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		switch field {
		case 2: // name
			b, err := p.readBytes()
			if err != nil {
				return err
			}
			info.Name = string(b)
		case 11, 12: // input, output
			b, err := p.readBytes()
			if err != nil {
				return err
			}
			decl, err := parseValueInfo(b)
			if err != nil {
				return err
			}
			if field == 11 {
				inputs = append(inputs, decl)
			} else {
				outputs = append(outputs, decl)
			}
		default:
			if err := p.skip(wire); err != nil {
				return err
			}
		}
	}

	info.Tensors = append(inputs, outputs...)
	info.TensorCount = uint64(len(info.Tensors))
	return nil
}

// parseValueInfo reads a ValueInfoProto: name and nested
// type.tensor_type.{elem_type, shape.dim[].dim_value}.
func parseValueInfo(data []byte) (TensorDecl, error) {
	decl := TensorDecl{DType: tensor.Float32}
	p := &protoReader{data: data}
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return decl, err
		}
		switch field {
		case 1: // name
			b, err := p.readBytes()
			if err != nil {
				return decl, err
			}
			decl.Name = string(b)
		case 2: // type
			b, err := p.readBytes()
			if err != nil {
				return decl, err
			}
			if err := parseTypeProto(b, &decl); err != nil {
				return decl, err
			}
		default:
			if err := p.skip(wire); err != nil {
				return decl, err
			}
		}
	}
	return decl, nil
}

func parseTypeProto(data []byte, decl *TensorDecl) error {
	p := &protoReader{data: data}
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		if field != 1 { // tensor_type
			if err := p.skip(wire); err != nil {
				return err
			}
			continue
		}
		b, err := p.readBytes()
		if err != nil {
			return err
		}
		if err := parseTensorType(b, decl); err != nil {
			return err
		}
	}
	return nil
}

func parseTensorType(data []byte, decl *TensorDecl) error {
	p := &protoReader{data: data}
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		switch field {
		case 1: // elem_type
			v, err := p.readVarint()
			if err != nil {
				return err
			}
			decl.DType = onnxToDType(int(v))
		case 2: // shape
			b, err := p.readBytes()
			if err != nil {
				return err
			}
			if err := parseTensorShape(b, decl); err != nil {
				return err
			}
		default:
			if err := p.skip(wire); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseTensorShape(data []byte, decl *TensorDecl) error {
	p := &protoReader{data: data}
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		if field != 1 { // dim
			if err := p.skip(wire); err != nil {
				return err
			}
			continue
		}
		b, err := p.readBytes()
		if err != nil {
			return err
		}
		dim, err := parseDimension(b)
		if err != nil {
			return err
		}
		decl.Shape = append(decl.Shape, dim)
	}
	return nil
}

// parseDimension returns the static dim_value; symbolic dims
// (dim_param, typically a batch axis) map to 1.
func parseDimension(data []byte) (int, error) {
	p := &protoReader{data: data}
	dim := 1
	for !p.done() {
		field, wire, err := p.readTag()
		if err != nil {
			return 0, err
		}
		switch field {
		case 1: // dim_value
			v, err := p.readVarint()
			if err != nil {
				return 0, err
			}
			if v > 0 {
				dim = int(v)
			}
		default:
			if err := p.skip(wire); err != nil {
				return 0, err
			}
		}
	}
	return dim, nil
}

func onnxToDType(v int) tensor.DataType {
	switch v {
	case onnxFloat:
		return tensor.Float32
	case onnxUint8:
		return tensor.Uint8
	case onnxInt8:
		return tensor.Int8
	case onnxInt16:
		return tensor.Int16
	case onnxInt32:
		return tensor.Int32
	case onnxInt64:
		return tensor.Int64
	case onnxString:
		return tensor.String
	case onnxBool:
		return tensor.Bool
	case onnxFloat16:
		return tensor.Float16
	case onnxDouble:
		return tensor.Float64
	default:
		return tensor.Float32
	}
}
