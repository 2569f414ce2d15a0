package tensor

// Layout tags the semantic ordering of tensor dimensions.
type Layout int

// Supported layouts.
const (
	LayoutNCHW Layout = iota
	LayoutNHWC
	LayoutNC
	LayoutN
)

// String returns a human-readable layout name.
func (l Layout) String() string {
	switch l {
	case LayoutNCHW:
		return "NCHW"
	case LayoutNHWC:
		return "NHWC"
	case LayoutNC:
		return "NC"
	case LayoutN:
		return "N"
	default:
		return "Unknown"
	}
}

// MemorySpace tags where a tensor's buffer lives.
type MemorySpace int

// Supported memory spaces.
const (
	MemCPU MemorySpace = iota
	MemGPU
	MemNPU
	MemShared
	// MemExternal marks memory owned by an outside allocator (for example
	// a memory pool). The runtime never frees external buffers.
	MemExternal
)

// String returns a human-readable memory-space name.
func (m MemorySpace) String() string {
	switch m {
	case MemCPU:
		return "CPU"
	case MemGPU:
		return "GPU"
	case MemNPU:
		return "NPU"
	case MemShared:
		return "Shared"
	case MemExternal:
		return "External"
	default:
		return "Unknown"
	}
}
