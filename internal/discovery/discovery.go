// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/edgeserve/edgeserve/pkg/edgefunc"
)

// Extensions lists the module extensions in lookup order.
var Extensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"} //nolint:gochecknoglobals // read-only table

// FindFunctions scans dirs for functions. Only I/O failures other than a
// missing directory are returned as errors.
func FindFunctions(dirs []string) (*Result, error) {
	res := &Result{}
	origin := map[string]string{}

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", dir, err)
		}

		found, diags, err := scanDir(abs)
		if err != nil {
			return nil, err
		}
		res.Diagnostics = append(res.Diagnostics, diags...)

		for _, fn := range found {
			if prev, ok := origin[fn.Name]; ok {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{
					Severity: SeverityWarning,
					Code:     CodeShadowed,
					Message:  fmt.Sprintf("function %q is already provided by %s", fn.Name, prev),
					Path:     fn.Path,
				})
				continue
			}
			origin[fn.Name] = fn.Path
			res.Functions = append(res.Functions, fn)
		}
	}
	return res, nil
}

func scanDir(dir string) ([]edgefunc.Function, []Diagnostic, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []Diagnostic{{
			Severity: SeverityWarning,
			Code:     CodeDirMissing,
			Message:  "functions directory does not exist",
			Path:     dir,
			Cause:    err,
		}}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading functions directory: %w", err)
	}

	var (
		fns   []edgefunc.Function
		diags []Diagnostic
	)
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if !e.IsDir() {
			ext := filepath.Ext(e.Name())
			if !slices.Contains(Extensions, ext) {
				continue
			}
			fns = append(fns, edgefunc.Function{Name: strings.TrimSuffix(e.Name(), ext), Path: path})
			continue
		}

		module, ok := dirModule(path, e.Name())
		if !ok {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeNoModule,
				Message:  fmt.Sprintf("directory %q has no %s.<ext> or index.<ext> module", e.Name(), e.Name()),
				Path:     path,
			})
			continue
		}
		fns = append(fns, edgefunc.Function{Name: e.Name(), Path: module})
	}

	slices.SortStableFunc(fns, func(a, b edgefunc.Function) int { return strings.Compare(a.Name, b.Name) })
	return fns, diags, nil
}

// dirModule returns the entry module inside a function directory.
func dirModule(dir, name string) (string, bool) {
	for _, ext := range Extensions {
		for _, base := range []string{name, "index"} {
			candidate := filepath.Join(dir, base+ext)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				return candidate, true
			}
		}
	}
	return "", false
}
