// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/edgeserve/edgeserve/internal/cueutil"
	"github.com/edgeserve/edgeserve/internal/issue"
	"github.com/edgeserve/edgeserve/pkg/fspath"
)

const (
	// AppName is the application name.
	AppName = "edgeserve"
	// ConfigFileName is the config file name in the config directory.
	ConfigFileName = "config.cue"
	// LocalConfigFileName is looked up in the working directory.
	LocalConfigFileName = "edgeserve.cue"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "EDGESERVE"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the platform configuration directory for edgeserve.
//
//nolint:revive // ConfigDir reads better than Dir for callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

// loadWithOptions returns the config and the path of the file it came from,
// empty when only defaults and the environment applied.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolvePath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", loadError(path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", loadError(path, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Make readiness.timeout at least as long as readiness.interval").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return &cfg, path, nil
}

// resolvePath picks the config file: the explicit path, the config directory
// file, then the local file. A missing explicit path is an error; missing
// implicit files are not.
func resolvePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'edgeserve config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		d, err := ConfigDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	if p := filepath.Join(dir, ConfigFileName); fileExists(p) {
		return p, nil
	}
	if fileExists(LocalConfigFileName) {
		return LocalConfigFileName, nil
	}
	return "", nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("port", d.Port)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("version_range", d.VersionRange)
	v.SetDefault("functions_dirs", d.FunctionsDirs)
	v.SetDefault("import_maps", d.ImportMaps)
	v.SetDefault("manifest", d.Manifest)
	v.SetDefault("dist_import_map", d.DistImportMap)
	v.SetDefault("env_files", d.EnvFiles)
	v.SetDefault("certificate_path", d.CertificatePath)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("use_system_binary", d.UseSystemBinary)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("control_addr", d.ControlAddr)
	v.SetDefault("inspect.enabled", d.Inspect.Enabled)
	v.SetDefault("inspect.pause", d.Inspect.Pause)
	v.SetDefault("inspect.address", d.Inspect.Address)
	v.SetDefault("readiness.interval", d.Readiness.Interval)
	v.SetDefault("readiness.timeout", d.Readiness.Timeout)
	v.SetDefault("endpoints.latest", d.Endpoints.Latest)
	v.SetDefault("endpoints.release_base", d.Endpoints.ReleaseBase)
	v.SetDefault("endpoints.types", d.Endpoints.Types)
	v.SetDefault("bundler.command", d.Bundler.Command)
	v.SetDefault("bundler.args", d.Bundler.Args)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.color_scheme", d.UI.ColorScheme)
}

// loadCUEIntoViper validates the CUE file at path against #Config and merges
// it into v. Decoding goes through a map so Viper keeps defaults and env
// overrides for keys the file omits.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := cueutil.Validate(configSchema, data, "#Config", path)
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the defaults to path unless a file exists there.
// It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fspath.WriteFileAtomic(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE renders cfg as a CUE config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// edgeserve configuration\n\n")
	fmt.Fprintf(&sb, "port: %d\n", cfg.Port)
	fmt.Fprintf(&sb, "cache_dir: %q\n", cfg.CacheDir)
	fmt.Fprintf(&sb, "version_range: %q\n", cfg.VersionRange)
	fmt.Fprintf(&sb, "functions_dirs: %s\n", cueList(cfg.FunctionsDirs))
	if len(cfg.ImportMaps) > 0 {
		fmt.Fprintf(&sb, "import_maps: %s\n", cueList(cfg.ImportMaps))
	}
	if cfg.Manifest != "" {
		fmt.Fprintf(&sb, "manifest: %q\n", cfg.Manifest)
	}
	if cfg.DistImportMap != "" {
		fmt.Fprintf(&sb, "dist_import_map: %q\n", cfg.DistImportMap)
	}
	if len(cfg.EnvFiles) > 0 {
		fmt.Fprintf(&sb, "env_files: %s\n", cueList(cfg.EnvFiles))
	}
	if cfg.CertificatePath != "" {
		fmt.Fprintf(&sb, "certificate_path: %q\n", cfg.CertificatePath)
	}
	fmt.Fprintf(&sb, "debug: %v\n", cfg.Debug)
	fmt.Fprintf(&sb, "use_system_binary: %v\n", cfg.UseSystemBinary)
	fmt.Fprintf(&sb, "watch: %v\n", cfg.Watch)
	if cfg.ControlAddr != "" {
		fmt.Fprintf(&sb, "control_addr: %q\n", cfg.ControlAddr)
	}

	sb.WriteString("\ninspect: {\n")
	fmt.Fprintf(&sb, "\tenabled: %v\n", cfg.Inspect.Enabled)
	fmt.Fprintf(&sb, "\tpause: %v\n", cfg.Inspect.Pause)
	if cfg.Inspect.Address != "" {
		fmt.Fprintf(&sb, "\taddress: %q\n", cfg.Inspect.Address)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nreadiness: {\n")
	fmt.Fprintf(&sb, "\tinterval: %q\n", cfg.Readiness.Interval.String())
	fmt.Fprintf(&sb, "\ttimeout: %q\n", cfg.Readiness.Timeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nendpoints: {\n")
	fmt.Fprintf(&sb, "\tlatest: %q\n", cfg.Endpoints.Latest)
	fmt.Fprintf(&sb, "\trelease_base: %q\n", cfg.Endpoints.ReleaseBase)
	fmt.Fprintf(&sb, "\ttypes: %q\n", cfg.Endpoints.Types)
	sb.WriteString("}\n")

	if cfg.Bundler.Command != "" {
		sb.WriteString("\nbundler: {\n")
		fmt.Fprintf(&sb, "\tcommand: %q\n", cfg.Bundler.Command)
		if len(cfg.Bundler.Args) > 0 {
			fmt.Fprintf(&sb, "\targs: %s\n", cueList(cfg.Bundler.Args))
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	sb.WriteString("}\n")

	return sb.String()
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
