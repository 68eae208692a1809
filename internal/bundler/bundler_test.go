// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/loader"
	"github.com/edgeserve/edgeserve/pkg/edgefunc"
)

func fakeCommand(t *testing.T, mode string) *CommandBundler {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return NewCommandBundler(self, nil, WithEnv(map[string]string{fakeBundlerEnv: mode}))
}

// project writes function files and returns a loader over their entry.
func project(t *testing.T, files map[string]string, fns ...string) *loader.Loader {
	t.Helper()

	base := t.TempDir()
	for name, content := range files {
		path := filepath.Join(base, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	functions := make([]edgefunc.Function, len(fns))
	for i, name := range fns {
		functions[i] = edgefunc.Function{Name: strings.TrimSuffix(name, ".js"), Path: filepath.Join(base, name)}
	}
	text, err := entry.Assemble(base, functions)
	if err != nil {
		t.Fatal(err)
	}
	return loader.New(base, text)
}

func TestWriteArtifact_CommandBundler(t *testing.T) {
	t.Parallel()

	l := project(t, map[string]string{
		"a.js":    `import { greet } from "./util.js"; export default () => greet();`,
		"util.js": `export const greet = () => "hi";`,
		"b.js":    `export default () => "b";`,
	}, "a.js", "b.js")

	dest := filepath.Join(t.TempDir(), "dist", "stage2.eszip")
	err := WriteArtifact(context.Background(), fakeCommand(t, "ok"), Options{
		Load:         l.Load,
		ImportMapURL: "data:application/json;base64,e30=",
		Dest:         dest,
	})
	if err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	var art fakeArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		t.Fatalf("artifact is not the fake bundler output: %v", err)
	}

	want := []string{
		entry.Specifier,
		entry.VirtualRoot + "a.js",
		entry.VirtualRoot + "b.js",
		entry.VirtualRoot + "util.js",
	}
	if len(art.Modules) != len(want) {
		t.Fatalf("modules = %+v, want %v", art.Modules, want)
	}
	for i, m := range art.Modules {
		if m.Specifier != want[i] {
			t.Errorf("module %d = %q, want %q", i, m.Specifier, want[i])
		}
	}
	if art.ImportMapURL != "data:application/json;base64,e30=" {
		t.Errorf("import map URL = %q", art.ImportMapURL)
	}
}

func TestWriteArtifact_ReportedErrorLeavesNoFile(t *testing.T) {
	t.Parallel()

	l := project(t, map[string]string{"a.js": "SYNTAX ERROR {{{"}, "a.js")
	dest := filepath.Join(t.TempDir(), "out.eszip")

	err := WriteArtifact(context.Background(), fakeCommand(t, "ok"), Options{Load: l.Load, Dest: dest})

	var be *BundleError
	var re *ReportedError
	if !errors.As(err, &be) || !errors.As(err, &re) || !errors.Is(err, ErrBundle) {
		t.Fatalf("WriteArtifact() error = %v, want *BundleError wrapping *ReportedError", err)
	}
	if !strings.Contains(re.Message, "could not be parsed") {
		t.Errorf("reported message = %q", re.Message)
	}
	assertMissing(t, dest)
}

func TestWriteArtifact_LoadFailureAborts(t *testing.T) {
	t.Parallel()

	l := project(t, map[string]string{
		"a.js": `import "./missing.js"; export default () => 1;`,
	}, "a.js")
	dest := filepath.Join(t.TempDir(), "out.eszip")

	err := WriteArtifact(context.Background(), fakeCommand(t, "ok"), Options{Load: l.Load, Dest: dest})

	var nf *loader.VirtualModuleNotFoundError
	if !errors.As(err, &nf) || !errors.Is(err, ErrBundle) {
		t.Fatalf("WriteArtifact() error = %v, want bundle error wrapping VirtualModuleNotFoundError", err)
	}
	if nf.Specifier != entry.VirtualRoot+"missing.js" {
		t.Errorf("missing specifier = %q", nf.Specifier)
	}
	assertMissing(t, dest)
}

func TestCommandBundler_ProcessFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode string
		want string
	}{
		{"crash", "out of cheese"},
		{"garbage", "reading bundler output"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()

			l := project(t, map[string]string{"a.js": "export default 1;"}, "a.js")
			_, err := fakeCommand(t, tt.mode).Build(context.Background(), []string{entry.Specifier}, l.Load, "")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Build() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestCommandBundler_MissingExecutable(t *testing.T) {
	t.Parallel()

	b := NewCommandBundler(filepath.Join(t.TempDir(), "no-such-bundler"), nil)
	_, err := b.Build(context.Background(), []string{entry.Specifier},
		func(context.Context, string) (*loader.LoadResult, error) { return nil, nil }, "")
	if err == nil || !strings.Contains(err.Error(), "starting bundler") {
		t.Errorf("Build() error = %v", err)
	}
}

type stubBundler struct {
	data  []byte
	err   error
	roots []string
}

func (s *stubBundler) Build(_ context.Context, roots []string, _ LoadFunc, _ string) ([]byte, error) {
	s.roots = roots
	return s.data, s.err
}

func TestWriteArtifact_Stub(t *testing.T) {
	t.Parallel()

	noLoad := func(context.Context, string) (*loader.LoadResult, error) { return nil, nil }

	t.Run("default root and atomic write", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "a.eszip")
		s := &stubBundler{data: []byte("ESZIP")}
		if err := WriteArtifact(context.Background(), s, Options{Load: noLoad, Dest: dest}); err != nil {
			t.Fatal(err)
		}
		if len(s.roots) != 1 || s.roots[0] != entry.Specifier {
			t.Errorf("roots = %v, want entry specifier", s.roots)
		}
		got, _ := os.ReadFile(dest)
		if !bytes.Equal(got, []byte("ESZIP")) {
			t.Errorf("artifact = %q", got)
		}
	})

	t.Run("error wrapped unchanged", func(t *testing.T) {
		t.Parallel()

		dest := filepath.Join(t.TempDir(), "a.eszip")
		if err := os.WriteFile(dest, []byte("previous"), 0o644); err != nil {
			t.Fatal(err)
		}
		errSyntax := errors.New("unexpected token")
		err := WriteArtifact(context.Background(), &stubBundler{err: errSyntax}, Options{Load: noLoad, Dest: dest})
		if !errors.Is(err, errSyntax) || !errors.Is(err, ErrBundle) {
			t.Fatalf("WriteArtifact() error = %v", err)
		}
		got, _ := os.ReadFile(dest)
		if string(got) != "previous" {
			t.Errorf("failed build touched the existing artifact: %q", got)
		}
	})

	t.Run("missing loader", func(t *testing.T) {
		t.Parallel()

		if err := WriteArtifact(context.Background(), &stubBundler{}, Options{Dest: "x"}); err == nil {
			t.Error("WriteArtifact() without Load should fail")
		}
	})
}

func TestRuntimeCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cmd, args, err := RuntimeCommand("/opt/deno", dir)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != "/opt/deno" || args[0] != "run" || args[len(args)-1] != filepath.Join(dir, HostScriptFile) {
		t.Errorf("RuntimeCommand() = %q %v", cmd, args)
	}
	data, err := os.ReadFile(filepath.Join(dir, HostScriptFile))
	if err != nil || !bytes.Contains(data, []byte("eszip")) {
		t.Errorf("host script not written: %v", err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s exists after a failed build", path)
	}
}
