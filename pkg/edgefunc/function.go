// SPDX-License-Identifier: MPL-2.0

// Package edgefunc defines the public value types that describe user edge
// functions: the on-disk Function modules fed into a build and the route
// Declarations that bind them to URL paths.
//
// This package is a leaf dependency: it imports only the standard library.
package edgefunc

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidFunction is the sentinel error wrapped by InvalidFunctionError.
	ErrInvalidFunction = errors.New("invalid function")

	// ErrInvalidDeclaration is the sentinel error wrapped by InvalidDeclarationError.
	ErrInvalidDeclaration = errors.New("invalid declaration")
)

type (
	// Function is a single user edge function module. Name is the exported
	// key under which the module's default export is published to the
	// runtime; Path is the absolute path of the module source file.
	Function struct {
		Name string `json:"name" yaml:"name" toml:"name"`
		Path string `json:"path" yaml:"path" toml:"path"`
	}

	// Declaration binds a function to a URL path or pattern. Exactly one of
	// Path and Pattern is expected to be set.
	Declaration struct {
		Function string `json:"function" yaml:"function" toml:"function"`
		Path     string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
		Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty" toml:"pattern,omitempty"`
		Name     string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	}

	// InvalidFunctionError is returned when a Function has an empty name or a
	// non-absolute path.
	InvalidFunctionError struct {
		Function Function
		Reason   string
	}

	// InvalidDeclarationError is returned when a Declaration does not name a
	// function or names neither a path nor a pattern.
	InvalidDeclarationError struct {
		Declaration Declaration
		Reason      string
	}
)

// Validate reports whether f can be fed into a build.
func (f Function) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &InvalidFunctionError{Function: f, Reason: "name must not be empty"}
	}
	if !filepath.IsAbs(f.Path) {
		return &InvalidFunctionError{Function: f, Reason: "path must be absolute"}
	}
	return nil
}

// String returns "name (path)".
func (f Function) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.Path)
}

// Validate reports whether d is a usable route declaration.
func (d Declaration) Validate() error {
	if strings.TrimSpace(d.Function) == "" {
		return &InvalidDeclarationError{Declaration: d, Reason: "function must not be empty"}
	}
	if d.Path == "" && d.Pattern == "" {
		return &InvalidDeclarationError{Declaration: d, Reason: "one of path or pattern is required"}
	}
	if d.Path != "" && !strings.HasPrefix(d.Path, "/") {
		return &InvalidDeclarationError{Declaration: d, Reason: "path must start with '/'"}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidFunctionError) Error() string {
	return fmt.Sprintf("invalid function %q: %s", e.Function.Name, e.Reason)
}

// Unwrap returns ErrInvalidFunction for errors.Is() compatibility.
func (e *InvalidFunctionError) Unwrap() error { return ErrInvalidFunction }

// Error implements the error interface.
func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("invalid declaration for function %q: %s", e.Declaration.Function, e.Reason)
}

// Unwrap returns ErrInvalidDeclaration for errors.Is() compatibility.
func (e *InvalidDeclarationError) Unwrap() error { return ErrInvalidDeclaration }

// Names returns the function names in input order.
func Names(fns []Function) []string {
	out := make([]string, 0, len(fns))
	for _, f := range fns {
		out = append(out, f.Name)
	}
	return out
}
