// SPDX-License-Identifier: MPL-2.0

package importmap

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/testutil"
)

func TestReadFile_ResolvesRelativeAddresses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "maps", "import_map.json")
	testutil.MustWriteFile(t, path, `{
		"imports": {
			"utils/": "./utils/",
			"shared": "../shared/mod.ts",
			"std/": "https://deno.land/std@0.200.0/",
			"react": "npm:react"
		},
		"scopes": {
			"./vendor/": {"lodash": "./vendor/lodash.ts"}
		}
	}`)

	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	base := "file://" + filepath.ToSlash(dir)
	want := map[string]string{
		"utils/": base + "/maps/utils/",
		"shared": base + "/shared/mod.ts",
		"std/":   "https://deno.land/std@0.200.0/",
		"react":  "npm:react",
	}
	for k, v := range want {
		if f.Imports[k] != v {
			t.Errorf("Imports[%q] = %q, want %q", k, f.Imports[k], v)
		}
	}
	scope := f.Scopes[base+"/maps/vendor/"]
	if scope["lodash"] != base+"/maps/vendor/lodash.ts" {
		t.Errorf("Scopes = %v", f.Scopes)
	}
}

func TestReadFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := ReadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	testutil.MustWriteFile(t, bad, `{"imports": ["not", "an", "object"]}`)
	_, err := ReadFile(bad)
	var invalid *InvalidFileError
	if !errors.As(err, &invalid) || !errors.Is(err, ErrInvalidImportMap) {
		t.Errorf("invalid file error = %v", err)
	}
}

func TestContents_LaterWins(t *testing.T) {
	t.Parallel()

	m := New([]File{
		{Imports: map[string]string{"a": "https://one/a.ts", "b": "https://one/b.ts"}},
	})
	m.Add(File{Imports: map[string]string{
		"b":                     "https://two/b.ts",
		entry.ExternalSpecifier: "https://evil/bootstrap.ts",
	}})

	got := m.Contents().Imports
	want := map[string]string{
		"a":                     "https://one/a.ts",
		"b":                     "https://two/b.ts",
		entry.ExternalSpecifier: DefaultBootstrapURL,
	}
	if len(got) != len(want) {
		t.Fatalf("Imports = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Imports[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestDataURL(t *testing.T) {
	t.Parallel()

	m := New(nil, WithBootstrapURL("https://example.com/boot.ts"))
	u, err := m.DataURL()
	if err != nil {
		t.Fatal(err)
	}

	payload, ok := strings.CutPrefix(u, "data:application/json;base64,")
	if !ok {
		t.Fatalf("DataURL() = %q", u)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatal(err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Imports[entry.ExternalSpecifier] != "https://example.com/boot.ts" {
		t.Errorf("decoded map = %v", f.Imports)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dist", "import_map.json")
	m := New([]File{{Imports: map[string]string{"x": "https://x/x.ts"}}})
	if err := m.WriteFile(path); err != nil {
		t.Fatal(err)
	}

	base, _ := url.Parse("file:///ignored/")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Parse(data, base)
	if err != nil {
		t.Fatal(err)
	}
	if f.Imports["x"] != "https://x/x.ts" || f.Imports[entry.ExternalSpecifier] != DefaultBootstrapURL {
		t.Errorf("written map = %v", f.Imports)
	}
}
