// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edgeserve/edgeserve/internal/binary"
	"github.com/edgeserve/edgeserve/internal/supervisor"
)

// ErrInvalidConfig is the sentinel matched by *InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// Config is the complete edgeserve configuration.
	Config struct {
		Port            int             `json:"port" mapstructure:"port"`
		CacheDir        string          `json:"cache_dir" mapstructure:"cache_dir"`
		VersionRange    string          `json:"version_range" mapstructure:"version_range"`
		FunctionsDirs   []string        `json:"functions_dirs" mapstructure:"functions_dirs"`
		ImportMaps      []string        `json:"import_maps" mapstructure:"import_maps"`
		Manifest        string          `json:"manifest" mapstructure:"manifest"`
		DistImportMap   string          `json:"dist_import_map" mapstructure:"dist_import_map"`
		EnvFiles        []string        `json:"env_files" mapstructure:"env_files"`
		CertificatePath string          `json:"certificate_path" mapstructure:"certificate_path"`
		Debug           bool            `json:"debug" mapstructure:"debug"`
		UseSystemBinary bool            `json:"use_system_binary" mapstructure:"use_system_binary"`
		Watch           bool            `json:"watch" mapstructure:"watch"`
		ControlAddr     string          `json:"control_addr" mapstructure:"control_addr"`
		Inspect         InspectConfig   `json:"inspect" mapstructure:"inspect"`
		Readiness       ReadinessConfig `json:"readiness" mapstructure:"readiness"`
		Endpoints       EndpointsConfig `json:"endpoints" mapstructure:"endpoints"`
		Bundler         BundlerConfig   `json:"bundler" mapstructure:"bundler"`
		UI              UIConfig        `json:"ui" mapstructure:"ui"`
	}

	// InspectConfig enables the V8 inspector for the isolate.
	InspectConfig struct {
		Enabled bool   `json:"enabled" mapstructure:"enabled"`
		Pause   bool   `json:"pause" mapstructure:"pause"`
		Address string `json:"address" mapstructure:"address"`
	}

	// ReadinessConfig tunes the readiness probe.
	ReadinessConfig struct {
		Interval time.Duration `json:"interval" mapstructure:"interval"`
		Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
	}

	// EndpointsConfig points the binary manager at release servers.
	EndpointsConfig struct {
		Latest      string `json:"latest" mapstructure:"latest"`
		ReleaseBase string `json:"release_base" mapstructure:"release_base"`
		Types       string `json:"types" mapstructure:"types"`
	}

	// BundlerConfig selects an external bundler executable.
	BundlerConfig struct {
		Command string   `json:"command" mapstructure:"command"`
		Args    []string `json:"args" mapstructure:"args"`
	}

	// UIConfig holds terminal output settings.
	UIConfig struct {
		Verbose     bool   `json:"verbose" mapstructure:"verbose"`
		ColorScheme string `json:"color_scheme" mapstructure:"color_scheme"`
	}

	// InvalidConfigError collects field errors CUE cannot express.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:      defaultCacheDir(),
		VersionRange:  binary.DefaultVersionRange,
		FunctionsDirs: []string{filepath.Join("netlify", "edge-functions")},
		Readiness: ReadinessConfig{
			Interval: supervisor.DefaultReadinessInterval,
			Timeout:  supervisor.DefaultReadinessTimeout,
		},
		Endpoints: EndpointsConfig{
			Latest:      binary.DefaultLatestURL,
			ReleaseBase: binary.DefaultReleaseBaseURL,
			Types:       binary.DefaultTypesURL,
		},
		UI: UIConfig{ColorScheme: "auto"},
	}
}

// Validate checks constraints that span fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Readiness.Interval <= 0 {
		errs = append(errs, fmt.Errorf("readiness.interval must be positive, got %s", c.Readiness.Interval))
	}
	if c.Readiness.Timeout < c.Readiness.Interval {
		errs = append(errs, fmt.Errorf("readiness.timeout %s is shorter than readiness.interval %s",
			c.Readiness.Timeout, c.Readiness.Interval))
	}
	if c.CacheDir == "" {
		errs = append(errs, errors.New("cache_dir must not be empty"))
	}
	if c.Inspect.Pause && !c.Inspect.Enabled {
		errs = append(errs, errors.New("inspect.pause requires inspect.enabled"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName, "runtime")
}
