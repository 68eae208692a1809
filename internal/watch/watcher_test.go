// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"
)

// runWatcher starts w and returns a channel of callback batches. Run is
// cancelled and awaited at cleanup.
func runWatcher(t *testing.T, cfg Config) (*Watcher, <-chan []string) {
	t.Helper()

	batches := make(chan []string, 16)
	cfg.OnChange = func(_ context.Context, changed []string) error {
		batches <- changed
		return nil
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 50 * time.Millisecond
	}

	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
	return w, batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
		return nil
	}
}

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("export default () => {}"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherDebounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, batches := runWatcher(t, Config{Dirs: []string{dir}, Debounce: 150 * time.Millisecond})

	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		write(t, filepath.Join(dir, name))
		time.Sleep(10 * time.Millisecond)
	}

	got := waitBatch(t, batches)
	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		if !slices.Contains(got, filepath.Join(dir, name)) {
			t.Errorf("changed = %v, missing %s", got, name)
		}
	}

	select {
	case extra := <-batches:
		t.Errorf("unexpected second callback with %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherPatternsAndIgnores(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, batches := runWatcher(t, Config{
		Dirs:     []string{dir},
		Patterns: ModulePatterns([]string{".ts", ".js"}),
		Ignore:   []string{"**/*.gen.ts"},
	})

	write(t, filepath.Join(dir, "notes.md"))
	write(t, filepath.Join(dir, "types.gen.ts"))
	write(t, filepath.Join(dir, "node_modules", "dep.js"))
	time.Sleep(200 * time.Millisecond)
	write(t, filepath.Join(dir, "hello.ts"))

	got := waitBatch(t, batches)
	if !slices.Equal(got, []string{filepath.Join(dir, "hello.ts")}) {
		t.Errorf("changed = %v, want only hello.ts", got)
	}
}

func TestWatcherNewSubdirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, batches := runWatcher(t, Config{Dirs: []string{dir}, Patterns: []string{"**/*.ts"}})

	sub := filepath.Join(dir, "fn")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Let the create event register the new directory.
	time.Sleep(150 * time.Millisecond)
	write(t, filepath.Join(sub, "index.ts"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-batches:
			if slices.Contains(got, filepath.Join(sub, "index.ts")) {
				return
			}
		case <-deadline:
			t.Fatal("change inside a new directory was not reported")
		}
	}
}

func TestWatcherExplicitFiles(t *testing.T) {
	t.Parallel()

	shared := t.TempDir()
	lib := filepath.Join(shared, "lib.ts")
	other := filepath.Join(shared, "other.ts")
	write(t, lib)
	write(t, other)

	w, batches := runWatcher(t, Config{Files: []string{lib}})

	write(t, other)
	time.Sleep(200 * time.Millisecond)
	write(t, lib)

	if got := waitBatch(t, batches); !slices.Equal(got, []string{lib}) {
		t.Errorf("changed = %v, want [%s]", got, lib)
	}

	if err := w.SetFiles([]string{other}); err != nil {
		t.Fatal(err)
	}
	write(t, other)
	if got := waitBatch(t, batches); !slices.Equal(got, []string{other}) {
		t.Errorf("after SetFiles changed = %v, want [%s]", got, other)
	}
}

func TestWatcherMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Dirs: []string{filepath.Join(t.TempDir(), "absent")}}); err != nil {
		t.Errorf("New() with a missing directory error = %v", err)
	}
}

func TestWatcherInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("New() accepted an invalid watch pattern")
	}
	if _, err := New(Config{Ignore: []string{"[unclosed"}}); err == nil {
		t.Error("New() accepted an invalid ignore pattern")
	}
}

func TestWatcherRunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Dirs: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("second Run() returned nil")
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{".git/config", true},
		{"fn/node_modules/pkg/index.js", true},
		{"hello.ts.swp", true},
		{"hello.ts", false},
		{"api/index.ts", false},
	}
	for _, tt := range tests {
		if got := matchAny(defaultIgnores, tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	if !isFatalFsnotifyError(syscall.EMFILE) && !isFatalFsnotifyError(syscall.Errno(4)) {
		t.Error("descriptor exhaustion not fatal")
	}
	if isFatalFsnotifyError(os.ErrPermission) {
		t.Error("permission error treated as fatal")
	}
}

func TestWatcher_SetFilesReleasesStaleDirs(t *testing.T) {
	t.Parallel()

	tree := t.TempDir()
	first, second := t.TempDir(), t.TempDir()

	w, err := New(Config{Dirs: []string{tree}, Files: []string{filepath.Join(first, "a.ts")}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })

	watched := func() []string { return w.fsw.WatchList() }
	if !slices.Contains(watched(), first) {
		t.Fatalf("WatchList() = %v, want %s", watched(), first)
	}

	if err := w.SetFiles([]string{filepath.Join(second, "b.ts"), filepath.Join(tree, "c.ts")}); err != nil {
		t.Fatalf("SetFiles() error = %v", err)
	}
	got := watched()
	if slices.Contains(got, first) {
		t.Errorf("stale directory %s still watched: %v", first, got)
	}
	if !slices.Contains(got, second) || !slices.Contains(got, tree) {
		t.Errorf("WatchList() = %v, want %s and %s", got, second, tree)
	}

	if err := w.SetFiles(nil); err != nil {
		t.Fatalf("SetFiles(nil) error = %v", err)
	}
	got = watched()
	if slices.Contains(got, second) {
		t.Errorf("stale directory %s still watched: %v", second, got)
	}
	if !slices.Contains(got, tree) {
		t.Errorf("recursive root %s dropped: %v", tree, got)
	}
}
