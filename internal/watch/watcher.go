// SPDX-License-Identifier: MPL-2.0

// Package watch restarts work when source files change.
//
// A Watcher monitors function directories recursively plus an explicit set of
// files, typically the local modules of the last module graph. Events inside
// the debounce window are coalesced so the callback fires once with the full
// set of changed paths.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the quiet period before OnChange fires. Editors often
// write a temp file and rename it, which arrives as several events.
const defaultDebounce = 300 * time.Millisecond

// defaultIgnores are always excluded from directory watches.
var defaultIgnores = []string{ //nolint:gochecknoglobals // read-only table
	"**/.git/**",
	"**/node_modules/**",
	"**/.netlify/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dirs are watched recursively. Missing directories are skipped.
		Dirs []string

		// Files are watched individually, wherever they live.
		Files []string

		// Patterns are doublestar globs, relative to the containing entry of
		// Dirs, that select which files trigger callbacks. Empty matches all.
		Patterns []string

		// Ignore adds to the built-in ignore patterns.
		Ignore []string

		// Debounce falls back to defaultDebounce when not positive.
		Debounce time.Duration

		// OnChange receives the absolute paths changed since the last call.
		OnChange func(ctx context.Context, changed []string) error

		Logger *log.Logger
	}

	// Watcher monitors paths and fires a debounced callback. Run must be
	// called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		logger   *log.Logger
		debounce time.Duration
		dirs     []string
		started  atomic.Bool

		mu    sync.Mutex
		files map[string]struct{}
		// fileDirs are parents of files outside the recursive trees, each
		// registered with fsnotify only for as long as a file needs it.
		fileDirs map[string]struct{}
	}
)

// New validates cfg and registers every non-ignored directory below Dirs.
func New(cfg Config) (*Watcher, error) {
	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(cfg.Dirs))
	for _, d := range cfg.Dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", d, err)
		}
		dirs = append(dirs, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		dirs:     dirs,
		files:    map[string]struct{}{},
		fileDirs: map[string]struct{}{},
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}

	for _, d := range dirs {
		if err := w.addTree(d); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if err := w.SetFiles(cfg.Files); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// SetFiles replaces the individually watched files. Parent directories are
// registered as needed and released once no watched file lives in them.
func (w *Watcher) SetFiles(files []string) error {
	next := make(map[string]struct{}, len(files))
	nextDirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("watch: resolve %q: %w", f, err)
		}
		next[abs] = struct{}{}
		if dir := filepath.Dir(abs); !w.inTree(dir) {
			nextDirs[dir] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for dir := range nextDirs {
		if _, ok := w.fileDirs[dir]; ok {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				delete(nextDirs, dir)
				continue
			}
			return fmt.Errorf("watch: add directory %q: %w", dir, err)
		}
	}
	for dir := range w.fileDirs {
		if _, ok := nextDirs[dir]; ok {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			w.logger.Debug("Releasing directory watch", "path", dir, "error", err)
		}
	}

	w.files = next
	w.fileDirs = nextDirs
	return nil
}

// inTree reports whether dir is covered by a recursive directory watch.
func (w *Watcher) inTree(dir string) bool {
	rel, ok := w.relToDirs(dir)
	if !ok {
		return false
	}
	return rel == "." || !(w.isIgnored(rel) || w.isIgnored(rel+"/"))
}

// Run blocks until ctx is cancelled, dispatching debounced callbacks. It
// returns nil on cancellation and the error for a fatal watcher failure.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run after ctx is cancelled because it is scheduled by
	// time.AfterFunc. Callbacks never overlap; a busy callback reschedules.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("Change callback still running, deferring")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("Change callback failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Closing file watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if !w.relevant(evt.Name) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

// relevant reports whether an event on path should trigger the callback.
func (w *Watcher) relevant(path string) bool {
	w.mu.Lock()
	_, explicit := w.files[path]
	w.mu.Unlock()
	if explicit {
		return true
	}

	rel, ok := w.relToDirs(path)
	if !ok || w.isIgnored(rel) {
		return false
	}
	return w.matchesPatterns(rel)
}

// relToDirs returns path relative to the first watched directory holding it.
func (w *Watcher) relToDirs(path string) (string, bool) {
	for _, d := range w.dirs {
		rel, err := filepath.Rel(d, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return rel, true
	}
	return "", false
}

// addTree registers root and every non-ignored directory below it.
func (w *Watcher) addTree(root string) error {
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		w.logger.Debug("Not watching missing directory", "path", root)
		return nil
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("Skipping inaccessible path", "path", path, "error", walkErr)
			return nil //nolint:nilerr // inaccessible paths are skipped
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil //nolint:nilerr // unreachable for paths from WalkDir
		}
		if rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

// maybeAddDir extends recursive watches to directories created later.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if _, ok := w.relToDirs(path); !ok {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("Watching new directory", "path", path, "error", err)
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	return matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// ModulePatterns returns watch patterns for the given module extensions.
func ModulePatterns(exts []string) []string {
	out := make([]string, len(exts))
	for i, ext := range exts {
		out[i] = "**/*" + ext
	}
	return out
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
