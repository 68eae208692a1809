// SPDX-License-Identifier: MPL-2.0

package discovery

import "github.com/edgeserve/edgeserve/pkg/edgefunc"

const (
	// SeverityWarning indicates a recoverable discovery warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal discovery error diagnostic.
	SeverityError Severity = "error"

	// CodeDirMissing is reported for a function directory that does not exist.
	CodeDirMissing = "functions_dir_missing"
	// CodeNoModule is reported for a subdirectory without an entry module.
	CodeNoModule = "function_module_missing"
	// CodeShadowed is reported when a name was already found in an earlier
	// directory.
	CodeShadowed = "function_shadowed"
)

type (
	// Severity represents discovery diagnostic severity.
	Severity string

	// Diagnostic is a non-fatal discovery finding returned to callers for
	// rendering.
	Diagnostic struct {
		Severity Severity
		// Code is a machine-readable identifier such as "function_shadowed".
		Code    string
		Message string
		// Path is the file or directory the diagnostic refers to.
		Path  string
		Cause error
	}

	// Result bundles discovered functions with diagnostics.
	Result struct {
		Functions   []edgefunc.Function
		Diagnostics []Diagnostic
	}
)
