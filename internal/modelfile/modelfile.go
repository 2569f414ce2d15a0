// Package modelfile inspects model files on disk without loading their
// weights. It recognizes GGUF containers and ONNX protobufs by magic
// bytes, reads the GGUF header, metadata, and tensor directory, and
// reads the graph I/O declarations from ONNX models.
//
// Specification: https://github.com/ggerganov/ggml/blob/master/docs/gguf.md
package modelfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/quiver-ml/quiver/internal/tensor"
)

// Format identifies a recognized model container format.
type Format int

// Recognized formats.
const (
	FormatUnknown Format = iota
	FormatGGUF
	FormatONNX
)

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case FormatGGUF:
		return "gguf"
	case FormatONNX:
		return "onnx"
	default:
		return "unknown"
	}
}

// Magic bytes for the GGUF format.
const (
	magicGGUFLE uint32 = 0x46554747 // "GGUF" little-endian.
	magicGGUFBE uint32 = 0x47475546 // "GGUF" big-endian (reversed).
)

// GGUF metadata value types.
const (
	valueTypeUint8   uint32 = 0
	valueTypeInt8    uint32 = 1
	valueTypeUint16  uint32 = 2
	valueTypeInt16   uint32 = 3
	valueTypeUint32  uint32 = 4
	valueTypeInt32   uint32 = 5
	valueTypeFloat32 uint32 = 6
	valueTypeBool    uint32 = 7
	valueTypeString  uint32 = 8
	valueTypeArray   uint32 = 9
	valueTypeUint64  uint32 = 10
	valueTypeInt64   uint32 = 11
	valueTypeFloat64 uint32 = 12
)

// TensorDecl describes one tensor recorded in a model file's directory.
type TensorDecl struct {
	Name  string
	DType tensor.DataType
	Shape tensor.Shape
}

// Info is the inspection result for a model file.
type Info struct {
	Path         string
	Format       Format
	Version      uint32
	Name         string // general.name metadata, when present
	Architecture string // general.architecture metadata, when present
	TensorCount  uint64
	Tensors      []TensorDecl
	FileSize     int64
}

// Sniff reports the container format of the file at path.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	var head [8]byte
	if _, err := io.ReadFull(f, head[:4]); err != nil {
		return FormatUnknown, fmt.Errorf("read magic: %w", err)
	}

	magic := binary.LittleEndian.Uint32(head[:4])
	if magic == magicGGUFLE || magic == magicGGUFBE {
		return FormatGGUF, nil
	}
	// ONNX files are protobufs that open with the ModelProto ir_version
	// field: tag 0x08 followed by a small varint.
	if head[0] == 0x08 && head[1] < 0x20 {
		return FormatONNX, nil
	}
	return FormatUnknown, nil
}

// Inspect reads the model file's directory. For GGUF the full header,
// metadata, and tensor list are parsed; for ONNX the graph's declared
// inputs and outputs are read from the ModelProto.
func Inspect(path string) (*Info, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat model file: %w", err)
	}

	info := &Info{Path: path, Format: format, FileSize: stat.Size()}
	switch format {
	case FormatGGUF:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open model file: %w", err)
		}
		defer f.Close()
		if err := parseGGUF(f, info); err != nil {
			return nil, fmt.Errorf("parse gguf: %w", err)
		}
		return info, nil
	case FormatONNX:
		if err := parseONNX(path, info); err != nil {
			return nil, fmt.Errorf("parse onnx: %w", err)
		}
		return info, nil
	default:
		return nil, fmt.Errorf("unrecognized model format: %s", path)
	}
}

type ggufReader struct {
	r     io.Reader
	order binary.ByteOrder
}

func parseGGUF(r io.Reader, info *Info) error {
	g := &ggufReader{r: r, order: binary.LittleEndian}

	var magic uint32
	if err := binary.Read(g.r, g.order, &magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	switch magic {
	case magicGGUFLE:
	case magicGGUFBE:
		g.order = binary.BigEndian
	default:
		return fmt.Errorf("invalid magic: 0x%08X", magic)
	}

	if err := binary.Read(g.r, g.order, &info.Version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if info.Version < 1 || info.Version > 3 {
		return fmt.Errorf("unsupported gguf version: %d", info.Version)
	}

	var kvCount uint64
	if err := binary.Read(g.r, g.order, &info.TensorCount); err != nil {
		return fmt.Errorf("read tensor count: %w", err)
	}
	if err := binary.Read(g.r, g.order, &kvCount); err != nil {
		return fmt.Errorf("read metadata count: %w", err)
	}

	for i := uint64(0); i < kvCount; i++ {
		key, value, err := g.readKV()
		if err != nil {
			return fmt.Errorf("metadata kv %d: %w", i, err)
		}
		switch key {
		case "general.name":
			if s, ok := value.(string); ok {
				info.Name = s
			}
		case "general.architecture":
			if s, ok := value.(string); ok {
				info.Architecture = s
			}
		}
	}

	info.Tensors = make([]TensorDecl, 0, info.TensorCount)
	for i := uint64(0); i < info.TensorCount; i++ {
		decl, err := g.readTensorDecl()
		if err != nil {
			return fmt.Errorf("tensor info %d: %w", i, err)
		}
		info.Tensors = append(info.Tensors, decl)
	}
	return nil
}

func (g *ggufReader) readString() (string, error) {
	var n uint64
	if err := binary.Read(g.r, g.order, &n); err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("string length %d exceeds sanity bound", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (g *ggufReader) readKV() (string, any, error) {
	key, err := g.readString()
	if err != nil {
		return "", nil, err
	}
	var vt uint32
	if err := binary.Read(g.r, g.order, &vt); err != nil {
		return "", nil, err
	}
	value, err := g.readValue(vt)
	if err != nil {
		return "", nil, fmt.Errorf("key %q: %w", key, err)
	}
	return key, value, nil
}

func (g *ggufReader) readValue(vt uint32) (any, error) {
	switch vt {
	case valueTypeUint8:
		var v uint8
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeInt8:
		var v int8
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeUint16:
		var v uint16
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeInt16:
		var v int16
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeUint32:
		var v uint32
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeInt32:
		var v int32
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeFloat32:
		var v float32
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeBool:
		var v uint8
		if err := binary.Read(g.r, g.order, &v); err != nil {
			return nil, err
		}
		return v != 0, nil
	case valueTypeString:
		return g.readString()
	case valueTypeUint64:
		var v uint64
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeInt64:
		var v int64
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeFloat64:
		var v float64
		return v, binary.Read(g.r, g.order, &v)
	case valueTypeArray:
		var elemType uint32
		if err := binary.Read(g.r, g.order, &elemType); err != nil {
			return nil, err
		}
		var n uint64
		if err := binary.Read(g.r, g.order, &n); err != nil {
			return nil, err
		}
		if n > 1<<24 {
			return nil, fmt.Errorf("array length %d exceeds sanity bound", n)
		}
		// Values are read to advance the stream; only the count matters here.
		for i := uint64(0); i < n; i++ {
			if _, err := g.readValue(elemType); err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown metadata value type: %d", vt)
	}
}

func (g *ggufReader) readTensorDecl() (TensorDecl, error) {
	var decl TensorDecl

	name, err := g.readString()
	if err != nil {
		return decl, err
	}
	decl.Name = name

	var nDims uint32
	if err := binary.Read(g.r, g.order, &nDims); err != nil {
		return decl, err
	}
	if nDims > tensor.MaxDims {
		return decl, fmt.Errorf("tensor %q has %d dimensions (max %d)", name, nDims, tensor.MaxDims)
	}

	// GGUF stores dimensions innermost-first; reverse to row-major.
	dims := make([]uint64, nDims)
	for i := range dims {
		if err := binary.Read(g.r, g.order, &dims[i]); err != nil {
			return decl, err
		}
	}
	decl.Shape = make(tensor.Shape, nDims)
	for i := range dims {
		decl.Shape[int(nDims)-1-i] = int(dims[i])
	}

	var ggmlType uint32
	if err := binary.Read(g.r, g.order, &ggmlType); err != nil {
		return decl, err
	}
	decl.DType = ggmlToDType(ggmlType)

	var offset uint64
	if err := binary.Read(g.r, g.order, &offset); err != nil {
		return decl, err
	}
	return decl, nil
}

// ggmlToDType maps GGML element types to runtime data types. Quantized
// block formats have no scalar equivalent and map to raw bytes.
func ggmlToDType(t uint32) tensor.DataType {
	switch t {
	case 0: // F32
		return tensor.Float32
	case 1: // F16
		return tensor.Float16
	case 24: // I8
		return tensor.Int8
	case 25: // I16
		return tensor.Int16
	case 26: // I32
		return tensor.Int32
	case 27: // I64
		return tensor.Int64
	case 28: // F64
		return tensor.Float64
	default:
		return tensor.Uint8
	}
}
