// SPDX-License-Identifier: MPL-2.0

// Package manifest loads the deploy manifest that lists route declarations,
// feature-flagged layers and an optional import map for a set of functions.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/edgeserve/edgeserve/internal/importmap"
	"github.com/edgeserve/edgeserve/pkg/edgefunc"
)

// SupportedVersion is the only manifest format version understood.
const SupportedVersion = 1

var (
	// ErrUnsupportedVersion is the sentinel matched by *UnsupportedVersionError.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// ErrUnsupportedFormat is returned for a manifest extension other than
	// .json, .yaml, .yml or .toml.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

type (
	// Layer is a feature-flagged bundle of functions provided elsewhere.
	Layer struct {
		Flag string `json:"flag" yaml:"flag" toml:"flag"`
		Name string `json:"name" yaml:"name" toml:"name"`
	}

	// file is the on-disk document.
	file struct {
		Version   int                    `json:"version" yaml:"version" toml:"version"`
		Functions []edgefunc.Declaration `json:"functions" yaml:"functions" toml:"functions"`
		ImportMap string                 `json:"import_map" yaml:"import_map" toml:"import_map"`
		Layers    []Layer                `json:"layers" yaml:"layers" toml:"layers"`
	}

	// Manifest is a loaded deploy manifest.
	Manifest struct {
		Declarations []edgefunc.Declaration
		Layers       []Layer
		// ImportMap is set when the manifest names one. Its addresses are
		// resolved against the import map file.
		ImportMap *importmap.File
		// ImportMapPath is the absolute import map path, if any.
		ImportMapPath string
	}

	// UnsupportedVersionError reports a manifest whose version is not 1.
	UnsupportedVersionError struct {
		Path    string
		Version int
	}
)

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("%s: unsupported file version: %d", e.Path, e.Version)
}

// Unwrap returns ErrUnsupportedVersion.
func (e *UnsupportedVersionError) Unwrap() error { return ErrUnsupportedVersion }

// Load reads the manifest at path. An empty path or a missing file yields an
// empty manifest.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var doc file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if doc.Version != SupportedVersion {
		return nil, &UnsupportedVersionError{Path: path, Version: doc.Version}
	}

	m := &Manifest{Declarations: doc.Functions, Layers: doc.Layers}
	for _, d := range m.Declarations {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if doc.ImportMap != "" {
		m.ImportMapPath = doc.ImportMap
		if !filepath.IsAbs(m.ImportMapPath) {
			m.ImportMapPath = filepath.Join(filepath.Dir(path), filepath.FromSlash(doc.ImportMap))
		}
		f, err := importmap.ReadFile(m.ImportMapPath)
		if err != nil {
			return nil, err
		}
		m.ImportMap = &f
	}
	return m, nil
}

// UnknownFunctions returns the declaration function names that are not in
// fns, in declaration order without repeats.
func (m *Manifest) UnknownFunctions(fns []edgefunc.Function) []string {
	known := make(map[string]bool, len(fns))
	for _, f := range fns {
		known[f.Name] = true
	}

	var unknown []string
	reported := map[string]bool{}
	for _, d := range m.Declarations {
		if !known[d.Function] && !reported[d.Function] {
			reported[d.Function] = true
			unknown = append(unknown, d.Function)
		}
	}
	return unknown
}
