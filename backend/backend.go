// Package backend is the public surface of the inference-backend layer:
// the engine contract, the kind registry, and explicit bootstrap of the
// built-in backends.
package backend

import (
	"github.com/quiver-ml/quiver/internal/backend"
)

// Kind identifies a concrete inference backend implementation.
type Kind = backend.Kind

// Known backend kinds.
const (
	KindStub   Kind = backend.KindStub
	KindONNX   Kind = backend.KindONNX
	KindWebGPU Kind = backend.KindWebGPU
	KindNPU    Kind = backend.KindNPU
	// KindUser is the first kind value available to out-of-tree plugins.
	KindUser Kind = backend.KindUser
)

// ParseKind parses a string into a Kind.
func ParseKind(s string) (Kind, error) { return backend.ParseKind(s) }

// Config carries engine construction options.
type Config = backend.Config

// TensorInfo describes one model input or output slot.
type TensorInfo = backend.TensorInfo

// ModelHandle is an opaque handle to a loaded model.
type ModelHandle = backend.ModelHandle

// Engine is a live backend instance.
type Engine = backend.Engine

// Descriptor is the registered (kind, name, constructor) triple.
type Descriptor = backend.Descriptor

// Registry maps backend kinds to engine constructors.
type Registry = backend.Registry

// Resolver supplies descriptors for kinds missing from a registry.
type Resolver = backend.Resolver

// RegistryOption configures a Registry.
type RegistryOption = backend.RegistryOption

// WithLogger sets the registry logger.
var WithLogger = backend.WithLogger

// WithResolver attaches a descriptor resolver consulted on lookup miss.
var WithResolver = backend.WithResolver

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry { return backend.NewRegistry(opts...) }
