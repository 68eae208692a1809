// SPDX-License-Identifier: MPL-2.0

// Package importmap reads, merges and serializes import maps. Every map
// produced here also resolves the bootstrap specifier so the runtime can load
// the edge bootstrap module.
package importmap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/pkg/fspath"
)

// DefaultBootstrapURL is where the bootstrap specifier points by default.
const DefaultBootstrapURL = "https://edge.netlify.com/bootstrap/index-combined.ts"

// ErrInvalidImportMap is the sentinel matched by *InvalidFileError.
var ErrInvalidImportMap = errors.New("invalid import map")

type (
	// File is one parsed import map with addresses already absolute.
	File struct {
		Imports map[string]string            `json:"imports"`
		Scopes  map[string]map[string]string `json:"scopes,omitempty"`
	}

	// InvalidFileError reports an import map file that is not a JSON object
	// of string mappings.
	InvalidFileError struct {
		Path string
		Err  error
	}

	// ImportMap merges files in order. Later files win on conflicting keys.
	ImportMap struct {
		bootstrapURL string
		files        []File
	}

	// Option configures an ImportMap.
	Option func(*ImportMap)
)

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("invalid import map %s: %v", e.Path, e.Err)
}

// Unwrap returns ErrInvalidImportMap and the parse error.
func (e *InvalidFileError) Unwrap() []error { return []error{ErrInvalidImportMap, e.Err} }

// WithBootstrapURL overrides DefaultBootstrapURL.
func WithBootstrapURL(u string) Option {
	return func(m *ImportMap) { m.bootstrapURL = u }
}

// New creates an ImportMap over files.
func New(files []File, opts ...Option) *ImportMap {
	m := &ImportMap{bootstrapURL: DefaultBootstrapURL, files: files}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ReadFile parses the import map at path. Relative addresses and scope keys
// are resolved against the file's own location.
func ReadFile(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return File{}, fmt.Errorf("reading import map: %w", err)
	}
	f, err := Parse(data, fileURL(abs))
	var invalid *InvalidFileError
	if errors.As(err, &invalid) {
		invalid.Path = abs
	}
	return f, err
}

// Parse decodes an import map document and resolves relative entries
// against base.
func Parse(data []byte, base *url.URL) (File, error) {
	var raw File
	if err := json.Unmarshal(data, &raw); err != nil {
		return File{}, &InvalidFileError{Path: base.String(), Err: err}
	}

	f := File{Imports: resolveAll(raw.Imports, base)}
	if len(raw.Scopes) > 0 {
		f.Scopes = make(map[string]map[string]string, len(raw.Scopes))
		for scope, imports := range raw.Scopes {
			f.Scopes[resolve(scope, base)] = resolveAll(imports, base)
		}
	}
	return f, nil
}

// Add appends a file; it takes precedence over those added before.
func (m *ImportMap) Add(f File) {
	m.files = append(m.files, f)
}

// Contents returns the merged map.
func (m *ImportMap) Contents() File {
	out := File{Imports: map[string]string{entry.ExternalSpecifier: m.bootstrapURL}}
	for _, f := range m.files {
		maps.Copy(out.Imports, f.Imports)
		for scope, imports := range f.Scopes {
			if out.Scopes == nil {
				out.Scopes = map[string]map[string]string{}
			}
			if out.Scopes[scope] == nil {
				out.Scopes[scope] = map[string]string{}
			}
			maps.Copy(out.Scopes[scope], imports)
		}
	}
	// The bootstrap specifier is not user-overridable.
	out.Imports[entry.ExternalSpecifier] = m.bootstrapURL
	return out
}

// JSON returns the merged map as indented JSON.
func (m *ImportMap) JSON() ([]byte, error) {
	return json.MarshalIndent(m.Contents(), "", "  ")
}

// DataURL encodes the merged map as a base64 JSON data URL.
func (m *ImportMap) DataURL() (string, error) {
	data, err := json.Marshal(m.Contents())
	if err != nil {
		return "", err
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// WriteFile writes the merged map to path atomically.
func (m *ImportMap) WriteFile(path string) error {
	data, err := m.JSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating import map directory: %w", err)
	}
	return fspath.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

func resolveAll(imports map[string]string, base *url.URL) map[string]string {
	out := make(map[string]string, len(imports))
	for k, v := range imports {
		out[k] = resolve(v, base)
	}
	return out
}

func resolve(address string, base *url.URL) string {
	if !strings.HasPrefix(address, "./") && !strings.HasPrefix(address, "../") && !strings.HasPrefix(address, "/") {
		return address
	}
	ref, err := url.Parse(address)
	if err != nil {
		return address
	}
	return base.ResolveReference(ref).String()
}

func fileURL(path string) *url.URL {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths.
		p = "/" + p
	}
	return &url.URL{Scheme: "file", Path: p}
}
