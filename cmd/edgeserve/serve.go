// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edgeserve/edgeserve/internal/config"
)

// shutdownTimeout bounds isolate and control-server shutdown on exit.
const shutdownTimeout = 10 * time.Second

// defaultDistDir holds the artifact and the bundler host script.
var defaultDistDir = filepath.Join(".netlify", "edge-functions-serve") //nolint:gochecknoglobals // read-only default

type serveFlagValues struct {
	port          int
	importMaps    []string
	envFiles      []string
	envPairs      []string
	watch         bool
	debug         bool
	inspect       bool
	inspectBrk    bool
	inspectAddr   string
	controlAddr   string
	distDir       string
	distImportMap string
	manifest      string
	certificate   string
}

// newServeCommand creates `edgeserve serve [dirs...]`.
func newServeCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &serveFlagValues{}

	cmd := &cobra.Command{
		Use:   "serve [dirs...]",
		Short: "Bundle edge functions and serve them from a local runtime",
		Long: `Bundle edge functions and serve them from a local runtime.

Each directory is scanned for functions, earlier directories taking
precedence: a file "<dir>/<name>.ts" or a directory "<dir>/<name>/" holding
"<name>.ts" or "index.ts". Extensions .js .jsx .mjs .cjs .ts .tsx are
recognized.

The runtime sees only the variables from --env-file and --env.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(cmd.Context(), rootFlags)
			if err != nil {
				app.reportIssue(err, "auto")
				return err
			}
			flags.apply(cmd, cfg, args)

			err = runServe(cmd.Context(), app, cfg, flags)
			if err != nil {
				app.reportIssue(err, cfg.UI.ColorScheme)
			}
			return err
		},
	}

	flags.register(cmd)
	return cmd
}

// register binds f to cmd's flags.
func (f *serveFlagValues) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.port, "port", "p", 0, "isolate port (0 picks a free port)")
	fs.StringArrayVar(&f.importMaps, "import-map", nil, "import map file, may be repeated")
	fs.StringArrayVar(&f.envFiles, "env-file", nil, "env file with shell assignments, may be repeated; a trailing '?' makes it optional")
	fs.StringArrayVarP(&f.envPairs, "env", "e", nil, "KEY=VALUE passed to the isolate, may be repeated")
	fs.BoolVarP(&f.watch, "watch", "w", false, "restart the isolate when sources change")
	fs.BoolVar(&f.debug, "debug", false, "enable runtime debug logging")
	fs.BoolVar(&f.inspect, "inspect", false, "enable the V8 inspector")
	fs.BoolVar(&f.inspectBrk, "inspect-brk", false, "enable the V8 inspector and pause before user code")
	fs.StringVar(&f.inspectAddr, "inspect-addr", "", "inspector listen address")
	fs.StringVar(&f.controlAddr, "control-addr", "", "listen address of the control API, e.g. 127.0.0.1:8686")
	fs.StringVar(&f.distDir, "dist-dir", defaultDistDir, "directory for the bundled artifact")
	fs.StringVar(&f.distImportMap, "dist-import-map", "", "write the merged import map to this file")
	fs.StringVar(&f.manifest, "manifest", "", "deploy manifest with route declarations (json, yaml or toml)")
	fs.StringVar(&f.certificate, "cert", "", "CA certificate for outbound TLS from the isolate")
}

// apply overlays flags the user set onto cfg. Positional directories replace
// the configured function directories.
func (f *serveFlagValues) apply(cmd *cobra.Command, cfg *config.Config, dirs []string) {
	changed := cmd.Flags().Changed

	if len(dirs) > 0 {
		cfg.FunctionsDirs = dirs
	}
	if changed("port") {
		cfg.Port = f.port
	}
	cfg.ImportMaps = append(cfg.ImportMaps, f.importMaps...)
	cfg.EnvFiles = append(cfg.EnvFiles, f.envFiles...)
	if changed("watch") {
		cfg.Watch = f.watch
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}
	if f.inspect || f.inspectBrk {
		cfg.Inspect.Enabled = true
	}
	if f.inspectBrk {
		cfg.Inspect.Pause = true
	}
	if changed("inspect-addr") {
		cfg.Inspect.Address = f.inspectAddr
	}
	if changed("control-addr") {
		cfg.ControlAddr = f.controlAddr
	}
	if changed("dist-import-map") {
		cfg.DistImportMap = f.distImportMap
	}
	if changed("manifest") {
		cfg.Manifest = f.manifest
	}
	if changed("cert") {
		cfg.CertificatePath = f.certificate
	}
}

func runServe(ctx context.Context, app *App, cfg *config.Config, flags *serveFlagValues) error {
	s, err := newServeSession(ctx, app, cfg, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.close(); err != nil {
			s.logger.Warn("Shutdown incomplete", "err", err)
		}
	}()

	if err := s.build(ctx); err != nil {
		if !cfg.Watch {
			return err
		}
		s.logger.Error("Build failed, waiting for changes", "err", formatErrorForDisplay(err, cfg.UI.Verbose))
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(gctx) })
	}
	if s.control != nil {
		if err := s.control.Start(); err != nil {
			return err
		}
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	s.logger.Info("Shutting down")
	return err
}
