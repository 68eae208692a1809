// SPDX-License-Identifier: MPL-2.0

// Package bundler turns the generated entry module and everything it imports
// into a single artifact file. Graph traversal and serialization belong to an
// external bundler; this package feeds it modules from the loader and writes
// its output atomically.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/loader"
	"github.com/edgeserve/edgeserve/pkg/fspath"
)

// ErrBundle is the sentinel matched by *BundleError.
var ErrBundle = errors.New("bundling failed")

type (
	// LoadFunc answers one module request from the bundler.
	LoadFunc func(ctx context.Context, specifier string) (*loader.LoadResult, error)

	// Bundler builds an artifact from roots, pulling every module through load.
	// importMapURL is an optional data URL resolving bare specifiers.
	Bundler interface {
		Build(ctx context.Context, roots []string, load LoadFunc, importMapURL string) ([]byte, error)
	}

	// Options describe one artifact build.
	Options struct {
		// Roots defaults to the generated entry specifier.
		Roots        []string
		Load         LoadFunc
		ImportMapURL string
		// Dest is the artifact path.
		Dest string
	}

	// BundleError wraps whatever the bundler reported, unchanged.
	BundleError struct {
		Err error
	}

	// ReportedError is a diagnostic sent by the bundler itself, such as a
	// syntax error or an unresolvable specifier.
	ReportedError struct {
		Message string
	}
)

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundling failed: %v", e.Err)
}

// Unwrap returns ErrBundle and the original error.
func (e *BundleError) Unwrap() []error { return []error{ErrBundle, e.Err} }

func (e *ReportedError) Error() string { return e.Message }

// WriteArtifact builds with b and writes the bytes to opts.Dest. A failed
// build leaves no file at Dest.
func WriteArtifact(ctx context.Context, b Bundler, opts Options) error {
	if opts.Load == nil {
		return errors.New("bundler: Load must be set")
	}
	roots := opts.Roots
	if len(roots) == 0 {
		roots = []string{entry.Specifier}
	}

	data, err := b.Build(ctx, roots, opts.Load, opts.ImportMapURL)
	if err != nil {
		return &BundleError{Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(opts.Dest), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := fspath.WriteFileAtomic(opts.Dest, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}
