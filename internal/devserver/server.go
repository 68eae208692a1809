// SPDX-License-Identifier: MPL-2.0

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgeserve/edgeserve/internal/metrics"
)

// ErrServerStarted is returned when Start is called twice.
var ErrServerStarted = errors.New("control server already started")

type (
	// Isolate reports the state of the supervised runtime.
	Isolate interface {
		Running() bool
		Port() int
		Graph() json.RawMessage
	}

	// RestartFunc rebuilds and restarts the isolate.
	RestartFunc func(ctx context.Context) error

	// Server serves the control API on a local listener.
	Server struct {
		httpServer *http.Server
		listener   net.Listener
		isolate    Isolate
		restart    RestartFunc
		token      string
		metrics    *metrics.Recorder
		logger     *log.Logger

		// restarting is held for the duration of one restart.
		restarting sync.Mutex

		mu      sync.Mutex
		started bool
	}

	// Option configures a Server.
	Option func(*Server)

	// Status is the body of /healthz and /restart responses.
	Status struct {
		Running bool   `json:"running"`
		Port    int    `json:"port,omitempty"`
		Error   string `json:"error,omitempty"`
	}
)

// WithToken requires "Authorization: Bearer <token>" on POST /restart.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithMetrics serves r on /metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New listens on addr. The server does not accept connections until Start.
func New(addr string, isolate Isolate, restart RestartFunc, opts ...Option) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{listener: listener, isolate: isolate, restart: restart}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/graph", s.handleGraph)
	r.Post("/restart", s.handleRestart)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrServerStarted
	}
	s.started = true

	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Control server stopped", "err", err)
		}
	}()
	s.logger.Info("Control API listening", "url", s.URL())
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return s.listener.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// Address returns the listen address, e.g. "127.0.0.1:54321".
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// URL returns the base URL of the API.
func (s *Server) URL() string {
	return "http://" + s.Address()
}

func (s *Server) status() Status {
	st := Status{Running: s.isolate.Running()}
	if st.Running {
		st.Port = s.isolate.Port()
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.status()
	code := http.StatusOK
	if !st.Running {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	graph := s.isolate.Graph()
	if len(graph) == 0 {
		writeJSON(w, http.StatusNotFound, Status{Running: s.isolate.Running(), Error: "no module graph available"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(graph)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, Status{Error: "unauthorized"})
		return
	}
	if s.restart == nil {
		writeJSON(w, http.StatusNotImplemented, Status{Error: "restart not supported"})
		return
	}
	if !s.restarting.TryLock() {
		writeJSON(w, http.StatusConflict, Status{Running: s.isolate.Running(), Error: "restart already in progress"})
		return
	}
	defer s.restarting.Unlock()

	s.logger.Info("Restart requested", "remote", r.RemoteAddr)
	if err := s.restart(r.Context()); err != nil {
		st := s.status()
		st.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, st)
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
