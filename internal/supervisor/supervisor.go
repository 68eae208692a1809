// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/bundler"
	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/loader"
	"github.com/edgeserve/edgeserve/internal/metrics"
	"github.com/edgeserve/edgeserve/internal/runtime"
	"github.com/edgeserve/edgeserve/pkg/edgefunc"
)

// ArtifactFile is the artifact name inside the dist directory.
const ArtifactFile = "stage2.eszip"

type (
	// Supervisor restarts and stops the runtime isolate.
	Supervisor struct {
		bridge  *runtime.Bridge
		bundler bundler.Bundler
		distDir string

		port       int
		serve      ServeOptions
		readiness  ReadinessOptions
		stopGrace  time.Duration
		loaderOpts []loader.Option
		logger     *log.Logger
		metrics    *metrics.Recorder

		mu       sync.Mutex
		current  *runtime.Process
		lastPort int
		graph    json.RawMessage
	}

	// Option configures a Supervisor.
	Option func(*Supervisor)

	// StartResult reports the outcome of one StartIsolate call.
	StartResult struct {
		// Success is true when the runtime accepted a connection in time.
		Success bool
		// Graph is the runtime's JSON module graph, nil when unavailable.
		Graph json.RawMessage
		Port  int
	}
)

// WithPort fixes the isolate port. Zero picks a free port per start.
func WithPort(port int) Option {
	return func(s *Supervisor) { s.port = port }
}

// WithServeOptions sets the runtime flags for spawned isolates.
func WithServeOptions(opts ServeOptions) Option {
	return func(s *Supervisor) { s.serve = opts }
}

// WithReadiness sets the readiness probe options.
func WithReadiness(opts ReadinessOptions) Option {
	return func(s *Supervisor) { s.readiness = opts }
}

// WithStopGrace sets how long a stopping isolate gets before it is killed.
func WithStopGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// WithLoaderOptions passes options to the module loader of every build.
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(s *Supervisor) { s.loaderOpts = append(s.loaderOpts, opts...) }
}

// WithLogger sets the supervisor logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics records starts and readiness latency.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New creates a Supervisor that bundles with b into distDir and runs the
// artifact through bridge.
func New(bridge *runtime.Bridge, b bundler.Bundler, distDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		bridge:    bridge,
		bundler:   b,
		distDir:   distDir,
		stopGrace: runtime.DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// ArtifactPath returns where builds are written.
func (s *Supervisor) ArtifactPath() string {
	return filepath.Join(s.distDir, ArtifactFile)
}

// StartIsolate stops any running isolate, rebuilds the artifact for functions
// and spawns a new runtime that sees only env. Build and spawn failures are
// returned as errors; a runtime that never becomes ready is reported through
// StartResult.Success. The previous isolate is dead in every case.
func (s *Supervisor) StartIsolate(ctx context.Context, functions []edgefunc.Function, env map[string]string) (*StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		s.metrics.IsolateStart(metrics.OutcomeFailure)
		return nil, err
	}

	res, err := s.start(ctx, functions, env)
	if err != nil {
		s.metrics.IsolateStart(metrics.OutcomeFailure)
		return nil, err
	}
	if res.Success {
		s.metrics.IsolateStart(metrics.OutcomeSuccess)
	} else {
		s.metrics.IsolateStart(metrics.OutcomeFailure)
	}
	return res, nil
}

func (s *Supervisor) start(ctx context.Context, functions []edgefunc.Function, env map[string]string) (*StartResult, error) {
	basePath := entry.BasePath(functions)
	text, err := entry.DevEntry(basePath, functions)
	if err != nil {
		return nil, err
	}

	artifact := s.ArtifactPath()
	l := loader.New(basePath, text, s.loaderOpts...)
	err = bundler.WriteArtifact(ctx, s.bundler, bundler.Options{
		Load:         l.Load,
		ImportMapURL: s.serve.ImportMapURL,
		Dest:         artifact,
	})
	if err != nil {
		return nil, err
	}

	graph := s.moduleGraph(ctx, artifact)

	port := s.port
	if port == 0 {
		if port, err = freePort(); err != nil {
			return nil, err
		}
	}

	args := append([]string{"run"}, ServeFlags(s.serve)...)
	args = append(args, artifact, "--port", strconv.Itoa(port))

	s.logger.Info("Starting isolate", "functions", len(functions), "port", port)
	proc, err := s.bridge.Start(ctx, args, runtime.StartOptions{Env: env, PipeOutput: true})
	if err != nil {
		return nil, fmt.Errorf("spawning runtime: %w", err)
	}
	s.current = proc
	s.lastPort = port
	s.graph = graph

	began := time.Now()
	ready := WaitForServer(ctx, port, proc, s.readiness)
	s.metrics.Readiness(time.Since(began), ready)

	if !ready {
		s.logger.Warn("Isolate did not become ready", "port", port, "exited", proc.Exited())
		// A runtime that is still booting after the timeout is not kept.
		if err := s.stopLocked(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("Failed to stop isolate", "error", err)
		}
		return &StartResult{Success: false, Graph: graph, Port: port}, nil
	}

	s.logger.Info("Isolate ready", "port", port, "pid", proc.Pid())
	return &StartResult{Success: true, Graph: graph, Port: port}, nil
}

// moduleGraph asks the runtime for the artifact's module graph. Failures are
// logged and yield nil.
func (s *Supervisor) moduleGraph(ctx context.Context, artifact string) json.RawMessage {
	res, err := s.bridge.Run(ctx, "info", "--json", artifact)
	if err != nil {
		s.logger.Warn("Could not read module graph", "error", err)
		return nil
	}
	if !json.Valid([]byte(res.Output)) {
		s.logger.Warn("Module graph is not valid JSON")
		return nil
	}
	return json.RawMessage(res.Output)
}

// Stop terminates the current isolate, if any, and waits until it is reaped.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	if s.current == nil {
		return nil
	}
	proc := s.current
	s.logger.Debug("Stopping isolate", "pid", proc.Pid())
	if err := proc.StopWithGrace(ctx, s.stopGrace); err != nil {
		return fmt.Errorf("stopping previous isolate: %w", err)
	}
	s.current = nil
	return nil
}

// Running reports whether an isolate is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.Exited()
}

// Port returns the port of the most recent start.
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPort
}

// Graph returns the module graph of the most recent start.
func (s *Supervisor) Graph() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(DefaultReadinessHost, "0"))
	if err != nil {
		return 0, fmt.Errorf("reserving isolate port: %w", err)
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
