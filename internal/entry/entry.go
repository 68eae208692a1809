// SPDX-License-Identifier: MPL-2.0

// Package entry generates the synthetic entry module that imports every user
// function and exports them as a name-to-handler mapping.
package entry

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgeserve/edgeserve/pkg/edgefunc"
	"github.com/edgeserve/edgeserve/pkg/fspath"
)

const (
	// Specifier is the module specifier under which the generated entry is
	// served to the bundler.
	Specifier = "edge:bootstrap-entry"

	// ExternalSpecifier names the bootstrap module the runtime resolves
	// itself at execution time.
	ExternalSpecifier = "edge:bootstrap"

	// VirtualRoot prefixes function paths inside generated module text so
	// absolute filesystem paths never reach the bundler.
	VirtualRoot = "file:///root/"
)

var (
	// ErrDuplicateName is the sentinel matched by *DuplicateNameError.
	ErrDuplicateName = errors.New("duplicate function name")

	// ErrOutsideBase is returned when a function file is not under the base
	// path, so it has no virtual-root URL.
	ErrOutsideBase = errors.New("function path outside base path")
)

// DuplicateNameError is returned when two functions export the same name.
type DuplicateNameError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("function %q is declared twice (%s and %s)", e.Name, e.First, e.Second)
}

// Unwrap returns ErrDuplicateName.
func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// Assemble returns the entry module text for functions. Import aliases are
// positional (func0, func1, ...) and follow the input order.
func Assemble(basePath string, functions []edgefunc.Function) (string, error) {
	seen := make(map[string]string, len(functions))
	imports := make([]string, 0, len(functions))
	exports := make([]string, 0, len(functions))

	for i, fn := range functions {
		if prev, ok := seen[fn.Name]; ok {
			return "", &DuplicateNameError{Name: fn.Name, First: prev, Second: fn.Path}
		}
		seen[fn.Name] = fn.Path

		virtual, err := VirtualURL(basePath, fn.Path)
		if err != nil {
			return "", fmt.Errorf("function %q: %w", fn.Name, err)
		}

		alias := "func" + strconv.Itoa(i)
		imports = append(imports, fmt.Sprintf("import %s from %s;", alias, strconv.Quote(virtual)))
		exports = append(exports, fmt.Sprintf("%s: %s", strconv.Quote(fn.Name), alias))
	}

	return strings.Join(imports, "\n") + "\n\n" +
		"export const functions = {" + strings.Join(exports, ", ") + "};", nil
}

// DevEntry is Assemble followed by the bootstrap call the dev server needs to
// boot the exported functions.
func DevEntry(basePath string, functions []edgefunc.Function) (string, error) {
	text, err := Assemble(basePath, functions)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("import { boot } from %s;\n\n%s\n\nboot(functions);\n",
		strconv.Quote(ExternalSpecifier), text), nil
}

// BasePath returns the deepest directory containing every function file.
func BasePath(functions []edgefunc.Function) string {
	paths := make([]string, len(functions))
	for i, fn := range functions {
		paths[i] = fn.Path
	}
	return fspath.CommonDir(paths)
}

// VirtualURL expresses path, relative to basePath, under VirtualRoot.
func VirtualURL(basePath, path string) (string, error) {
	rel, err := filepath.Rel(basePath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return VirtualRoot + strings.Join(segments, "/"), nil
}

// PathFromVirtual maps a virtual-root URL back to a file under basePath.
func PathFromVirtual(basePath, specifier string) (string, error) {
	rel, ok := strings.CutPrefix(specifier, VirtualRoot)
	if !ok {
		return "", fmt.Errorf("%q is not under %s", specifier, VirtualRoot)
	}
	unescaped, err := url.PathUnescape(rel)
	if err != nil {
		return "", fmt.Errorf("invalid virtual path %q: %w", specifier, err)
	}
	return fspath.Within(basePath, unescaped)
}
