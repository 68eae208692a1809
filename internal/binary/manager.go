// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/edgeserve/edgeserve/pkg/fspath"
)

// VersionMarkerFile records the version installed in the cache directory.
const VersionMarkerFile = "version.txt"

var versionOutputPattern = regexp.MustCompile(`(?m)^` + Name + `\s+v?(\d+\.\d+\.\d+\S*)`)

// Manager owns the runtime installation for the lifetime of the process.
type Manager struct {
	cacheDir     string
	versionRange string
	downloader   *Downloader
	logger       *log.Logger

	useSystemBinary bool
	lookPath        func(string) (string, error)
	beforeDownload  Hook
	afterDownload   Hook

	mu           sync.Mutex
	installation *Installation
	group        singleflight.Group
}

// NewManager creates a Manager that installs into cacheDir and accepts
// versions inside versionRange.
func NewManager(cacheDir, versionRange string, opts ...Option) (*Manager, error) {
	if versionRange == "" {
		versionRange = DefaultVersionRange
	}
	if _, err := parseRange(versionRange); err != nil {
		return nil, err
	}
	if cacheDir == "" {
		return nil, errors.New("cache directory must not be empty")
	}

	o := newOptions(opts)
	return &Manager{
		cacheDir:        cacheDir,
		versionRange:    versionRange,
		downloader:      newDownloader(o),
		logger:          o.logger,
		useSystemBinary: o.useSystemBinary,
		lookPath:        o.lookPath,
		beforeDownload:  o.beforeDownload,
		afterDownload:   o.afterDownload,
	}, nil
}

// CacheDir returns the directory the Manager installs into.
func (m *Manager) CacheDir() string { return m.cacheDir }

// VersionRange returns the accepted semantic-version range.
func (m *Manager) VersionRange() string { return m.versionRange }

// Installation returns the current installation, if any.
func (m *Manager) Installation() (Installation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installation == nil {
		return Installation{}, false
	}
	return *m.installation, true
}

// EnsureBinary returns the path of a runtime binary satisfying the range,
// installing one if needed. Download failures are returned unchanged and no
// stale binary is substituted.
func (m *Manager) EnsureBinary(ctx context.Context) (string, error) {
	if inst, ok := m.current(); ok {
		return inst.Path, nil
	}

	// The shared install must outlive any single caller's cancellation.
	installCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(m.cacheDir, func() (any, error) {
		return m.ensure(installCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*Installation).Path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cached returns the installation that EnsureBinary would use without
// touching the network or PATH: the in-process installation, or the cache
// directory's marker and binary when they satisfy the range.
func (m *Manager) Cached() (Installation, bool) {
	if inst, ok := m.current(); ok {
		return *inst, true
	}
	if inst, ok := m.cachedBinary(); ok {
		return *inst, true
	}
	return Installation{}, false
}

func (m *Manager) current() (*Installation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installation != nil && Satisfies(m.versionRange, string(m.installation.Version)) {
		return m.installation, true
	}
	return nil, false
}

func (m *Manager) ensure(ctx context.Context) (*Installation, error) {
	if inst, ok := m.current(); ok {
		return inst, nil
	}

	if m.useSystemBinary {
		if inst, ok := m.systemBinary(ctx); ok {
			m.logger.Debug("Using runtime from PATH", "path", inst.Path, "version", inst.Version)
			return m.set(inst), nil
		}
	}

	if inst, ok := m.cachedBinary(); ok {
		m.logger.Debug("Using cached runtime", "path", inst.Path, "version", inst.Version)
		return m.set(inst), nil
	}

	m.runHook(ctx, "before download", m.beforeDownload)

	inst, err := m.downloader.install(ctx, m.cacheDir, m.versionRange)
	if err != nil {
		return nil, err
	}

	markerPath := filepath.Join(m.cacheDir, VersionMarkerFile)
	if err := fspath.WriteFileAtomic(markerPath, []byte(inst.Version), 0o644); err != nil {
		return nil, fmt.Errorf("writing version marker: %w", err)
	}

	m.runHook(ctx, "after download", m.afterDownload)

	return m.set(inst), nil
}

func (m *Manager) set(inst *Installation) *Installation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installation = inst
	return inst
}

func (m *Manager) runHook(ctx context.Context, name string, h Hook) {
	if h == nil {
		return
	}
	if err := h(ctx); err != nil {
		m.logger.Warn("Download hook failed", "hook", name, "err", err)
	}
}

// cachedBinary returns the installation recorded in the cache directory when
// the marker is present, satisfies the range and the binary file exists.
func (m *Manager) cachedBinary() (*Installation, bool) {
	data, err := os.ReadFile(filepath.Join(m.cacheDir, VersionMarkerFile))
	if err != nil {
		return nil, false
	}
	version := strings.TrimSpace(string(data))
	if !Satisfies(m.versionRange, version) {
		m.logger.Debug("Cached runtime outside range", "version", version, "range", m.versionRange)
		return nil, false
	}

	path := filepath.Join(m.cacheDir, ExecutableName(m.downloader.goos))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return &Installation{Path: path, Version: Version(strings.TrimPrefix(version, "v"))}, true
}

// systemBinary looks for the runtime on PATH and checks its reported version.
func (m *Manager) systemBinary(ctx context.Context) (*Installation, bool) {
	path, err := m.lookPath(Name)
	if err != nil {
		return nil, false
	}

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		m.logger.Debug("Could not read system runtime version", "path", path, "err", err)
		return nil, false
	}

	match := versionOutputPattern.FindSubmatch(out)
	if match == nil {
		return nil, false
	}
	version := string(match[1])
	if !Satisfies(m.versionRange, version) {
		m.logger.Debug("System runtime outside range", "version", version, "range", m.versionRange)
		return nil, false
	}
	return &Installation{Path: path, Version: Version(version)}, true
}
