package waveblender

import (
	"errors"
	"fmt"
)

var (
	// ErrUnstable reports a grid whose time step violates the 3D Courant bound.
	ErrUnstable = errors.New("time step violates the Courant stability bound c·Δt/Δx ≤ 1/√3")

	// ErrClosed is returned by operations on an engine after Shutdown.
	ErrClosed = errors.New("engine is shut down")

	// ErrBackendUnavailable reports a compute backend that cannot be used.
	ErrBackendUnavailable = errors.New("compute backend unavailable")

	errNotPositive    = errors.New("must be positive")
	errNotFinite      = errors.New("must be finite")
	errOutOfUnitRange = errors.New("must be within [0, 1]")
)

// ConfigError reports an invalid configuration detected at Initialize. The
// engine refuses to start when one is returned.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AllocationError reports a failure to create a device array or buffer.
type AllocationError struct {
	Resource string
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocating %s: %v", e.Resource, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// ReadbackError reports a failed transfer of audio taps from the device.
// The engine recovers from it locally by skipping the extraction cycle.
type ReadbackError struct {
	Err error
}

func (e *ReadbackError) Error() string {
	return fmt.Sprintf("audio readback failed: %v", e.Err)
}

func (e *ReadbackError) Unwrap() error { return e.Err }

// IndexError reports an out-of-range source slot.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("source index %d out of range [0, %d)", e.Index, e.Len)
}

// backendUnavailable reports a compute backend that is missing at build or
// run time, with the underlying cause when there is one.
func backendUnavailable(cause error) error {
	err := ErrBackendUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
	}
	return &ConfigError{Field: "backend", Err: err}
}

// kernelUnresolved reports a compute kernel entry point the device could not
// find in its program.
func kernelUnresolved(name string, cause error) error {
	return &ConfigError{Field: "kernel " + name, Err: cause}
}
