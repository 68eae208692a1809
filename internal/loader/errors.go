// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrVirtualModuleNotFound is the sentinel matched by *VirtualModuleNotFoundError.
	ErrVirtualModuleNotFound = errors.New("virtual module not found")

	// ErrModuleLoad is the sentinel matched by *ModuleLoadError.
	ErrModuleLoad = errors.New("module load failed")
)

type (
	// VirtualModuleNotFoundError is returned when a virtual-root specifier
	// maps to a file that does not exist, or to no file at all. Path is set
	// in the first case and Err in the second.
	VirtualModuleNotFoundError struct {
		Specifier string
		Path      string
		Err       error
	}

	// ModuleLoadError is returned when a remote or file specifier cannot be
	// loaded. Transient is true when the failure was retryable and every
	// attempt failed; false means it failed permanently on first sight.
	ModuleLoadError struct {
		Specifier  string
		StatusCode int
		Transient  bool
		Attempts   int
		Err        error
	}
)

func (e *VirtualModuleNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("module %s not found: %v", e.Specifier, e.Err)
	}
	return fmt.Sprintf("module %s not found at %s", e.Specifier, e.Path)
}

// Unwrap returns ErrVirtualModuleNotFound and the resolution error, if any.
func (e *VirtualModuleNotFoundError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrVirtualModuleNotFound, e.Err}
	}
	return []error{ErrVirtualModuleNotFound}
}

func (e *ModuleLoadError) Error() string {
	var msg string
	switch {
	case e.StatusCode != 0:
		msg = fmt.Sprintf("failed to load %s: status code %d", e.Specifier, e.StatusCode)
	case e.Err != nil:
		msg = fmt.Sprintf("failed to load %s: %v", e.Specifier, e.Err)
	default:
		msg = "failed to load " + e.Specifier
	}
	if e.Transient {
		msg += fmt.Sprintf(" (after %d attempts)", e.Attempts)
	}
	return msg
}

// Unwrap returns ErrModuleLoad and the underlying cause.
func (e *ModuleLoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrModuleLoad, e.Err}
	}
	return []error{ErrModuleLoad}
}
