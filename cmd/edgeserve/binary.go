// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/edgeserve/edgeserve/internal/binary"
	"github.com/edgeserve/edgeserve/internal/config"
	"github.com/edgeserve/edgeserve/internal/metrics"
)

// errNotInstalled is returned by `binary path` when the cache holds no runtime.
var errNotInstalled = errors.New("runtime not installed")

// newBinaryCommand creates the `edgeserve binary` command tree.
func newBinaryCommand(app *App, flags *rootFlagValues) *cobra.Command {
	binCmd := &cobra.Command{
		Use:   "binary",
		Short: "Manage the runtime binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	binCmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Download the runtime if no matching version is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ensureBinary(cmd.Context(), app, flags)
		},
	})

	binCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the path of the cached runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			return cachedBinaryPath(cfg, app)
		},
	})

	return binCmd
}

func ensureBinary(ctx context.Context, app *App, flags *rootFlagValues) error {
	cfg, _, err := app.loadConfig(ctx, flags)
	if err != nil {
		return err
	}
	logger := app.newLogger(cfg.UI.Verbose)

	manager, err := newManager(cfg, app, logger, nil)
	if err != nil {
		return err
	}
	path, err := manager.EnsureBinary(ctx)
	if err != nil {
		err = classifyError(err)
		app.reportIssue(err, cfg.UI.ColorScheme)
		return err
	}

	inst, _ := manager.Installation()
	_, _ = fmt.Fprintf(app.stdout, "%s %s %s\n", SuccessStyle.Render("✓"), path, SubtitleStyle.Render("(v"+inst.Version.String()+")"))
	return nil
}

// newManager builds the binary manager from cfg. Download progress goes to
// the App's stderr.
func newManager(cfg *config.Config, app *App, logger *log.Logger, rec *metrics.Recorder) (*binary.Manager, error) {
	manager, err := binary.NewManager(cfg.CacheDir, cfg.VersionRange,
		binary.WithLatestURL(cfg.Endpoints.Latest),
		binary.WithReleaseBaseURL(cfg.Endpoints.ReleaseBase),
		binary.WithSystemBinary(cfg.UseSystemBinary),
		binary.WithLogger(logger),
		binary.WithMetrics(rec),
		binary.WithBeforeDownload(func(context.Context) error {
			_, err := fmt.Fprintln(app.stderr, SubtitleStyle.Render("Downloading runtime..."))
			return err
		}),
		binary.WithAfterDownload(func(context.Context) error {
			_, err := fmt.Fprintf(app.stderr, "%s Runtime downloaded\n", SuccessStyle.Render("✓"))
			return err
		}),
	)
	if err != nil {
		return nil, classifyError(err)
	}
	return manager, nil
}

// cachedBinaryPath prints the runtime the manager would use from its cache,
// without downloading anything.
func cachedBinaryPath(cfg *config.Config, app *App) error {
	manager, err := binary.NewManager(cfg.CacheDir, cfg.VersionRange,
		binary.WithLogger(app.newLogger(cfg.UI.Verbose)))
	if err != nil {
		return classifyError(err)
	}
	inst, ok := manager.Cached()
	if !ok {
		return &ExitError{Code: 1, Err: fmt.Errorf("%w satisfying %s in %s (run 'edgeserve binary ensure')",
			errNotInstalled, cfg.VersionRange, cfg.CacheDir)}
	}
	if cfg.UI.Verbose {
		_, _ = fmt.Fprintf(app.stderr, "version %s\n", inst.Version)
	}
	_, err = fmt.Fprintln(app.stdout, inst.Path)
	return err
}
