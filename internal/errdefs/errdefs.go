// Package errdefs defines the error taxonomy shared by the quiver runtime.
// Every subsystem reports failures through these sentinels so that callers
// can branch on errors.Is without knowing which layer produced them.
package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runtime.
var (
	// ErrAllocationFailure reports a failed buffer or array growth.
	ErrAllocationFailure = errors.New("allocation failure")
	// ErrInvalidArgument reports a null or empty required parameter.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrShapeMismatch reports an element-count mismatch on reshape or convert.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrUnsupportedConversion reports a layout pair with no conversion path.
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	// ErrMissingInput reports a declared unit input absent from scope.
	ErrMissingInput = errors.New("missing input")
	// ErrEngineNotReady reports a model unit invoked before its backend
	// handle was bound, or a backend kind with no live engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCondition reports a missing or malformed condition tensor.
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrPluginLoadFailure reports a library open, symbol resolution, or
	// metadata failure while loading a plugin.
	ErrPluginLoadFailure = errors.New("plugin load failure")
	// ErrPluginNotFound reports a plugin name unresolved against all
	// search paths.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrVersionMismatch reports an unmet dependency constraint.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrTimeout reports a unit that exceeded its configured budget.
	ErrTimeout = errors.New("timeout")
	// ErrNotRegistered reports a backend kind with no registered descriptor.
	ErrNotRegistered = errors.New("backend not registered")
	// ErrModelNotFound reports an unknown model id at the manager surface.
	ErrModelNotFound = errors.New("model not found")
)

// Wrap annotates err with the standard "component.op: action failed" context.
// Returns nil when err is nil.
func Wrap(err error, component, op, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, op, action, err)
}

// InvalidArgumentf builds an ErrInvalidArgument with a formatted detail.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether the failure is worth retrying. Argument and
// shape errors are deterministic; everything environmental is retryable.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrShapeMismatch),
		errors.Is(err, ErrUnsupportedConversion),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, ErrInvalidCondition),
		errors.Is(err, ErrVersionMismatch):
		return false
	}
	return true
}
