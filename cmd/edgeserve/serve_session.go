// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/binary"
	"github.com/edgeserve/edgeserve/internal/bundler"
	"github.com/edgeserve/edgeserve/internal/config"
	"github.com/edgeserve/edgeserve/internal/devserver"
	"github.com/edgeserve/edgeserve/internal/discovery"
	"github.com/edgeserve/edgeserve/internal/importmap"
	"github.com/edgeserve/edgeserve/internal/issue"
	"github.com/edgeserve/edgeserve/internal/loader"
	"github.com/edgeserve/edgeserve/internal/manifest"
	"github.com/edgeserve/edgeserve/internal/metrics"
	"github.com/edgeserve/edgeserve/internal/runtime"
	"github.com/edgeserve/edgeserve/internal/supervisor"
	"github.com/edgeserve/edgeserve/internal/watch"
	"github.com/edgeserve/edgeserve/pkg/edgefunc"
)

// serveSession holds everything one `serve` invocation wires together.
type serveSession struct {
	app      *App
	cfg      *config.Config
	logger   *log.Logger
	sup      *supervisor.Supervisor
	manifest *manifest.Manifest
	envPairs []string

	// extraFiles are watched in addition to the module graph.
	extraFiles []string

	watcher *watch.Watcher
	control *devserver.Server
}

func newServeSession(ctx context.Context, app *App, cfg *config.Config, flags *serveFlagValues) (*serveSession, error) {
	logger := app.newLogger(cfg.UI.Verbose)
	rec := metrics.New()

	manager, err := newManager(cfg, app, logger, rec)
	if err != nil {
		return nil, err
	}
	bridge := runtime.NewBridge(manager, runtime.WithLogger(logger))

	runtimePath, err := bridge.BinaryPath(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	typesRun := func(ctx context.Context, args ...string) error {
		_, err := bridge.Run(ctx, args...)
		return err
	}
	if err := binary.EnsureLatestTypes(ctx, cfg.CacheDir, cfg.Endpoints.Types, typesRun, binary.WithLogger(logger)); err != nil {
		logger.Warn("Could not refresh type definitions", "err", err)
	}

	distDir, err := filepath.Abs(flags.distDir)
	if err != nil {
		return nil, err
	}

	b, err := newBundler(cfg, runtimePath, distDir, logger)
	if err != nil {
		return nil, err
	}

	m, err := loadManifest(cfg.Manifest)
	if err != nil {
		return nil, err
	}

	importMapURL, err := buildImportMap(cfg, m)
	if err != nil {
		return nil, err
	}

	sup := supervisor.New(bridge, b, distDir,
		supervisor.WithPort(cfg.Port),
		supervisor.WithServeOptions(supervisor.ServeOptions{
			ImportMapURL:    importMapURL,
			CertificatePath: cfg.CertificatePath,
			Debug:           cfg.Debug,
			Inspect: supervisor.InspectOptions{
				Enabled: cfg.Inspect.Enabled,
				Pause:   cfg.Inspect.Pause,
				Address: cfg.Inspect.Address,
			},
		}),
		supervisor.WithReadiness(supervisor.ReadinessOptions{
			Interval: cfg.Readiness.Interval,
			Timeout:  cfg.Readiness.Timeout,
		}),
		supervisor.WithLoaderOptions(loader.WithLogger(logger), loader.WithMetrics(rec)),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(rec),
	)

	s := &serveSession{
		app:        app,
		cfg:        cfg,
		logger:     logger,
		sup:        sup,
		manifest:   m,
		envPairs:   flags.envPairs,
		extraFiles: envFilePaths(cfg.EnvFiles),
	}

	if cfg.Watch {
		s.watcher, err = watch.New(watch.Config{
			Dirs:     cfg.FunctionsDirs,
			Files:    s.extraFiles,
			Patterns: watch.ModulePatterns(discovery.Extensions),
			OnChange: s.onChange,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.ControlAddr != "" {
		s.control, err = devserver.New(cfg.ControlAddr, sup, s.build,
			devserver.WithMetrics(rec),
			devserver.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("control API: %w", err)
		}
	}
	return s, nil
}

// newBundler returns the configured external bundler, or the built-in host
// script run by the runtime itself.
func newBundler(cfg *config.Config, runtimePath, distDir string, logger *log.Logger) (bundler.Bundler, error) {
	command, args := cfg.Bundler.Command, cfg.Bundler.Args
	if command == "" {
		var err error
		command, args, err = bundler.RuntimeCommand(runtimePath, distDir)
		if err != nil {
			return nil, err
		}
	}
	return bundler.NewCommandBundler(command, args, bundler.WithLogger(logger)), nil
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		return &manifest.Manifest{}, nil
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load deploy manifest").
			WithResource(path).
			WithSuggestion("Manifests must declare version 1").
			Wrap(err).
			BuildError()
	}
	return m, nil
}

// buildImportMap merges the manifest import map and the configured files,
// writes the result when requested and returns it as a data URL.
func buildImportMap(cfg *config.Config, m *manifest.Manifest) (string, error) {
	var files []importmap.File
	if m.ImportMap != nil {
		files = append(files, *m.ImportMap)
	}
	for _, path := range cfg.ImportMaps {
		f, err := importmap.ReadFile(path)
		if err != nil {
			return "", issue.NewErrorContext().
				WithOperation("read import map").
				WithResource(path).
				WithSuggestion("Import maps are JSON objects with \"imports\" and \"scopes\"").
				Wrap(err).
				BuildError()
		}
		files = append(files, f)
	}

	im := importmap.New(files)
	if cfg.DistImportMap != "" {
		if err := im.WriteFile(cfg.DistImportMap); err != nil {
			return "", err
		}
	}
	return im.DataURL()
}

// envFilePaths strips the optional marker so the files can be watched.
func envFilePaths(envFiles []string) []string {
	paths := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		paths = append(paths, strings.TrimSuffix(f, "?"))
	}
	return paths
}

// isolateEnv reads the env files and --env pairs. Nothing from the parent
// environment is included.
func isolateEnv(envFiles, pairs []string) (map[string]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	for _, f := range envFiles {
		if err := runtime.LoadEnvFile(env, f, cwd); err != nil {
			return nil, err
		}
	}
	if err := runtime.ParseEnvPairs(env, pairs); err != nil {
		return nil, err
	}
	return env, nil
}

// build discovers functions and restarts the isolate with them.
func (s *serveSession) build(ctx context.Context) error {
	res, err := discovery.FindFunctions(s.cfg.FunctionsDirs)
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		if d.Severity == discovery.SeverityError {
			s.logger.Error(d.Message, "path", d.Path, "code", d.Code)
		} else {
			s.logger.Warn(d.Message, "path", d.Path, "code", d.Code)
		}
	}
	if len(res.Functions) == 0 {
		return issue.NewErrorContext().
			WithOperation("discover edge functions").
			WithResource(strings.Join(s.cfg.FunctionsDirs, ", ")).
			WithIssue(issue.NoFunctionsFoundId).
			BuildError()
	}
	if unknown := s.manifest.UnknownFunctions(res.Functions); len(unknown) > 0 {
		s.logger.Warn("Manifest declares unknown functions", "functions", unknown)
	}

	env, err := isolateEnv(s.cfg.EnvFiles, s.envPairs)
	if err != nil {
		return classifyError(err)
	}

	start, err := s.sup.StartIsolate(ctx, res.Functions, env)
	if err != nil {
		return classifyError(err)
	}
	if s.watcher != nil {
		files := slices.Concat(s.extraFiles, supervisor.LocalFiles(start.Graph))
		if err := s.watcher.SetFiles(files); err != nil {
			s.logger.Warn("Could not watch imported files", "err", err)
		}
	}
	if !start.Success {
		return issue.NewErrorContext().
			WithOperation("start runtime").
			WithResource(fmt.Sprintf("port %d", start.Port)).
			WithIssue(issue.RuntimeNotReadyId).
			BuildError()
	}

	s.printServing(res.Functions, start.Port)
	return nil
}

func (s *serveSession) onChange(ctx context.Context, changed []string) error {
	s.logger.Info("Change detected, restarting", "files", len(changed))
	s.logger.Debug("Changed files", "paths", changed)
	if err := s.build(ctx); err != nil {
		s.logger.Error("Rebuild failed", "err", formatErrorForDisplay(err, s.cfg.UI.Verbose))
	}
	return nil
}

func (s *serveSession) printServing(functions []edgefunc.Function, port int) {
	w := s.app.stdout
	url := fmt.Sprintf("http://localhost:%d", port)
	_, _ = fmt.Fprintf(w, "%s Serving %d edge function(s) on %s\n",
		SuccessStyle.Render("◆"), len(functions), URLStyle.Render(url))
	for _, fn := range functions {
		_, _ = fmt.Fprintf(w, "  %s %s\n", CmdStyle.Render(fn.Name), SubtitleStyle.Render(fn.Path))
	}
	if s.control != nil {
		_, _ = fmt.Fprintf(w, "%s Control API on %s\n", SubtitleStyle.Render("◆"), URLStyle.Render(s.control.URL()))
	}
}

// close stops the control API and the isolate. Both are attempted; the
// failures are joined.
func (s *serveSession) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var controlErr, isolateErr error
	if s.control != nil {
		controlErr = issue.WrapWithOperation(s.control.Stop(ctx), "stop control API")
	}
	if s.sup != nil {
		isolateErr = issue.WrapWithOperation(s.sup.Stop(ctx), "stop isolate")
	}
	return errors.Join(controlErr, isolateErr)
}
