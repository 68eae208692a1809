// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"

	"github.com/edgeserve/edgeserve/internal/binary"
	"github.com/edgeserve/edgeserve/internal/bundler"
	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/issue"
	"github.com/edgeserve/edgeserve/internal/loader"
	"github.com/edgeserve/edgeserve/internal/runtime"
)

// classifyError maps domain failures to issue catalog entries. Errors that
// are already actionable, or that match no entry, are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}

	ctx := issue.NewErrorContext()
	switch {
	case errors.Is(err, binary.ErrUnsupportedPlatform):
		ctx.WithOperation("install runtime").WithIssue(issue.UnsupportedPlatformId)
	case errors.Is(err, binary.ErrRangeMismatch), errors.Is(err, binary.ErrInvalidRange):
		ctx.WithOperation("resolve runtime version").WithIssue(issue.VersionOutOfRangeId)
	case errors.Is(err, binary.ErrVersionFetch), errors.Is(err, binary.ErrDownload):
		ctx.WithOperation("download runtime").WithIssue(issue.RuntimeDownloadFailedId)
	case errors.Is(err, entry.ErrDuplicateName):
		ctx.WithOperation("assemble entry module").WithIssue(issue.DuplicateFunctionId)
	case errors.Is(err, loader.ErrVirtualModuleNotFound):
		ctx.WithOperation("bundle functions").WithIssue(issue.ModuleNotFoundId)
	case errors.Is(err, bundler.ErrBundle), errors.Is(err, loader.ErrModuleLoad):
		ctx.WithOperation("bundle functions").WithIssue(issue.BundleFailedId)
	case errors.Is(err, runtime.ErrInvalidEnvFile):
		ctx.WithOperation("load environment").
			WithSuggestion("Env files accept plain KEY=value assignments only")
	default:
		return err
	}
	return ctx.Wrap(err).BuildError()
}
