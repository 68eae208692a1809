// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edgeserve/edgeserve/internal/config"
	"github.com/edgeserve/edgeserve/internal/issue"
)

// newConfigCommand creates the `edgeserve config` command tree.
func newConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage edgeserve configuration",
		Long: `Manage edgeserve configuration.

Configuration is read from the first of:
  - the file given with --config
  - Linux: ~/.config/edgeserve/config.cue
    macOS: ~/Library/Application Support/edgeserve/config.cue
    Windows: %APPDATA%\edgeserve\config.cue
  - ./edgeserve.cue

Any key can be overridden with an EDGESERVE_ environment variable, for
example EDGESERVE_PORT=8000 or EDGESERVE_READINESS_TIMEOUT=2m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app, flags)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return err
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, flags)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(flags)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(app.stdout, path)
			return err
		},
	})

	return cfgCmd
}

func configFilePath(flags *rootFlagValues) (string, error) {
	if flags.configPath != "" {
		return flags.configPath, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.ConfigFileName), nil
}

func showConfig(ctx context.Context, app *App, flags *rootFlagValues) error {
	cfg, source, err := app.loadConfig(ctx, flags)
	if err != nil {
		app.reportIssue(err, "auto")
		return err
	}

	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	none := SubtitleStyle.Render("(none)")

	w := app.stdout
	_, _ = fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	_, _ = fmt.Fprintln(w)
	if source == "" {
		source = SubtitleStyle.Render("(using defaults)")
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n\n", keyStyle.Render("Config file"), source)

	row := func(indent, key, value string) {
		if value == "" {
			value = none
		} else {
			value = valueStyle.Render(value)
		}
		_, _ = fmt.Fprintf(w, "%s%s: %s\n", indent, keyStyle.Render(key), value)
	}
	list := func(items []string) string { return strings.Join(items, ", ") }

	port := "auto"
	if cfg.Port != 0 {
		port = fmt.Sprint(cfg.Port)
	}
	row("", "port", port)
	row("", "cache_dir", cfg.CacheDir)
	row("", "version_range", cfg.VersionRange)
	row("", "functions_dirs", list(cfg.FunctionsDirs))
	row("", "import_maps", list(cfg.ImportMaps))
	row("", "manifest", cfg.Manifest)
	row("", "env_files", list(cfg.EnvFiles))
	row("", "certificate_path", cfg.CertificatePath)
	row("", "debug", fmt.Sprint(cfg.Debug))
	row("", "use_system_binary", fmt.Sprint(cfg.UseSystemBinary))
	row("", "watch", fmt.Sprint(cfg.Watch))
	row("", "control_addr", cfg.ControlAddr)

	_, _ = fmt.Fprintf(w, "\n%s:\n", keyStyle.Render("inspect"))
	row("  ", "enabled", fmt.Sprint(cfg.Inspect.Enabled))
	row("  ", "pause", fmt.Sprint(cfg.Inspect.Pause))
	row("  ", "address", cfg.Inspect.Address)

	_, _ = fmt.Fprintf(w, "\n%s:\n", keyStyle.Render("readiness"))
	row("  ", "interval", cfg.Readiness.Interval.String())
	row("  ", "timeout", cfg.Readiness.Timeout.String())

	_, _ = fmt.Fprintf(w, "\n%s:\n", keyStyle.Render("bundler"))
	command := cfg.Bundler.Command
	if command == "" {
		command = "built-in"
	}
	row("  ", "command", strings.TrimSpace(command+" "+list(cfg.Bundler.Args)))

	_, _ = fmt.Fprintf(w, "\n%s:\n", keyStyle.Render("ui"))
	row("  ", "color_scheme", cfg.UI.ColorScheme)
	row("  ", "verbose", fmt.Sprint(cfg.UI.Verbose))
	return nil
}

func initConfig(app *App, flags *rootFlagValues) error {
	path, err := configFilePath(flags)
	if err != nil {
		return err
	}

	created, err := config.CreateDefaultConfig(path)
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("create configuration").
			WithResource(path).
			WithSuggestion("Check that the config directory is writable").
			Wrap(err).
			BuildError()
	}
	if !created {
		_, _ = fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
		return nil
	}
	_, _ = fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
