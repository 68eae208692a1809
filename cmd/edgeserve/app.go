// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/config"
	"github.com/edgeserve/edgeserve/internal/issue"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		LoadWithSource(ctx context.Context, opts config.LoadOptions) (*config.Config, string, error)
	}

	// App wires CLI services. Every command handler receives it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	// rootFlagValues holds the persistent flags.
	rootFlagValues struct {
		verbose    bool
		configPath string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

// loadConfig loads configuration honoring --config. Verbose from the config
// applies unless the flag already set it.
func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Config, string, error) {
	cfg, source, err := a.Config.LoadWithSource(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, "", err
	}
	if flags.verbose {
		cfg.UI.Verbose = true
	}
	return cfg, source, nil
}

// newLogger returns the process logger writing to stderr.
func (a *App) newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(a.stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "edgeserve",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// reportIssue renders the catalog entry linked to err, if any, to stderr.
func (a *App) reportIssue(err error, colorScheme string) {
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Issue == 0 {
		return
	}
	is := issue.Get(ae.Issue)
	if is == nil {
		return
	}
	rendered, renderErr := is.Render(glamourStyle(colorScheme))
	if renderErr != nil {
		return
	}
	_, _ = io.WriteString(a.stderr, rendered)
}

func glamourStyle(colorScheme string) string {
	switch colorScheme {
	case "dark", "light", "notty":
		return colorScheme
	default:
		return "auto"
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
