// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/edgeserve/edgeserve/internal/binary"
	"github.com/edgeserve/edgeserve/internal/issue"
	"github.com/edgeserve/edgeserve/internal/supervisor"
	"github.com/edgeserve/edgeserve/internal/testutil"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	testutil.MustWriteFile(t, path, content)
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Port != 0 {
		t.Errorf("Port = %d, want 0", cfg.Port)
	}
	if cfg.VersionRange != binary.DefaultVersionRange {
		t.Errorf("VersionRange = %q", cfg.VersionRange)
	}
	if want := filepath.Join("netlify", "edge-functions"); len(cfg.FunctionsDirs) != 1 || cfg.FunctionsDirs[0] != want {
		t.Errorf("FunctionsDirs = %v", cfg.FunctionsDirs)
	}
	if cfg.Readiness.Timeout != supervisor.DefaultReadinessTimeout {
		t.Errorf("Readiness.Timeout = %s", cfg.Readiness.Timeout)
	}
	if !strings.HasSuffix(cfg.CacheDir, filepath.Join(AppName, "runtime")) {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.UI.ColorScheme != "auto" {
		t.Errorf("ColorScheme = %q", cfg.UI.ColorScheme)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero interval", func(c *Config) { c.Readiness.Interval = 0 }, "readiness.interval"},
		{"timeout below interval", func(c *Config) { c.Readiness.Timeout = time.Millisecond }, "shorter than"},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }, "cache_dir"},
		{"pause without inspect", func(c *Config) { c.Inspect.Pause = true }, "inspect.pause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q lacks %q", err, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG lookup is Linux only")
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg-config")
	dir, err := ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/tmp/test-xdg-config", AppName); dir != want {
		t.Errorf("ConfigDir() = %s, want %s", dir, want)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	testutil.SetHomeDir(t, home)
	dir, err = ConfigDir()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, ".config", AppName); dir != want {
		t.Errorf("ConfigDir() without XDG = %s, want %s", dir, want)
	}

	SetConfigDirOverride("/elsewhere")
	t.Cleanup(Reset)
	if dir, _ := ConfigDir(); dir != "/elsewhere" {
		t.Errorf("override ignored: %s", dir)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, source, err := NewProvider().LoadWithSource(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if source != "" {
		t.Errorf("source = %q, want none", source)
	}
	if cfg.Readiness.Interval != supervisor.DefaultReadinessInterval {
		t.Errorf("Readiness.Interval = %s", cfg.Readiness.Interval)
	}
}

func TestLoad_ConfigDirFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
port: 9100
functions_dirs: ["edge", "more"]
readiness: timeout: "5s"
inspect: {
	enabled: true
	address: "127.0.0.1:9229"
}
ui: color_scheme: "dark"
`)

	cfg, source, err := NewProvider().LoadWithSource(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if source != path {
		t.Errorf("source = %q, want %q", source, path)
	}
	if cfg.Port != 9100 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if len(cfg.FunctionsDirs) != 2 || cfg.FunctionsDirs[1] != "more" {
		t.Errorf("FunctionsDirs = %v", cfg.FunctionsDirs)
	}
	if cfg.Readiness.Timeout != 5*time.Second {
		t.Errorf("Readiness.Timeout = %s", cfg.Readiness.Timeout)
	}
	// Keys the file omits keep their defaults.
	if cfg.Readiness.Interval != supervisor.DefaultReadinessInterval {
		t.Errorf("Readiness.Interval = %s", cfg.Readiness.Interval)
	}
	if !cfg.Inspect.Enabled || cfg.Inspect.Address != "127.0.0.1:9229" {
		t.Errorf("Inspect = %+v", cfg.Inspect)
	}
	if cfg.UI.ColorScheme != "dark" {
		t.Errorf("ColorScheme = %q", cfg.UI.ColorScheme)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EDGESERVE_PORT", "9200")
	t.Setenv("EDGESERVE_READINESS_TIMEOUT", "3s")

	dir := t.TempDir()
	writeConfig(t, dir, "port: 9100\n")

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9200 {
		t.Errorf("Port = %d, want env value 9200", cfg.Port)
	}
	if cfg.Readiness.Timeout != 3*time.Second {
		t.Errorf("Readiness.Timeout = %s", cfg.Readiness.Timeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "port: [", ""},
		{"wrong type", `port: "eighty"`, "port"},
		{"out of range", "port: 70000", "port"},
		{"unknown key", "ports: 1", "ports"},
		{"singular env file key", `env_file: ".env"`, "env_file"},
		{"bad duration", `readiness: interval: "soon"`, "readiness.interval"},
		{"bad scheme", `ui: color_scheme: "neon"`, "ui.color_scheme"},
		{"cross-field", `readiness: {interval: "2s", timeout: "1s"}`, "shorter than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), tt.content)

			_, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("expected an error")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error %T is not actionable: %v", err, err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %d", ae.Issue)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q lacks %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: missing})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_LocalFileFallback(t *testing.T) {
	work := t.TempDir()
	t.Chdir(work)
	if err := os.WriteFile(LocalConfigFileName, []byte("watch: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, source, err := NewProvider().LoadWithSource(t.Context(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if source != LocalConfigFileName || !cfg.Watch {
		t.Errorf("source = %q, watch = %v", source, cfg.Watch)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	want := DefaultConfig()
	want.Port = 8123
	want.ImportMaps = []string{"import_map.json"}
	want.EnvFiles = []string{".env", ".env.local"}
	want.Bundler = BundlerConfig{Command: "node", Args: []string{"bundle.js"}}
	want.Inspect = InspectConfig{Enabled: true, Pause: true}

	dir := t.TempDir()
	path := writeConfig(t, dir, GenerateCUE(want))

	got, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, GenerateCUE(want))
	}
	if got.Port != want.Port || got.CacheDir != want.CacheDir || got.Readiness != want.Readiness {
		t.Errorf("scalar mismatch: got %+v", got)
	}
	if strings.Join(got.EnvFiles, ",") != ".env,.env.local" {
		t.Errorf("EnvFiles = %v", got.EnvFiles)
	}
	if got.Bundler.Command != "node" || len(got.Bundler.Args) != 1 {
		t.Errorf("Bundler = %+v", got.Bundler)
	}
	if !got.Inspect.Pause {
		t.Error("Inspect.Pause lost")
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", ConfigFileName)
	created, err := CreateDefaultConfig(path)
	if err != nil || !created {
		t.Fatalf("CreateDefaultConfig() = %v, %v", created, err)
	}
	if err := os.WriteFile(path, []byte("port: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = CreateDefaultConfig(path)
	if err != nil || created {
		t.Fatalf("second call = %v, %v; want no overwrite", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "port: 1\n" {
		t.Errorf("existing file overwritten: %q", data)
	}
}
