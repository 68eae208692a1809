// SPDX-License-Identifier: MPL-2.0

// Package loader resolves module specifiers into source for the bundler,
// following a fixed classification policy (see Classify).
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/entry"
	"github.com/edgeserve/edgeserve/internal/metrics"
	"github.com/edgeserve/edgeserve/internal/retry"
)

const (
	// RemoteAttempts is the total number of tries for a transient failure.
	RemoteAttempts = 3

	// maxModuleBytes bounds a single module (50 MB).
	maxModuleBytes = 50 << 20
)

type (
	// ResultKind tells the bundler what a LoadResult carries.
	ResultKind string

	// LoadResult is the answer for one specifier.
	LoadResult struct {
		Kind ResultKind `json:"kind"`
		// Specifier is the final specifier, after redirects for remote modules.
		Specifier string            `json:"specifier"`
		Content   string            `json:"content,omitempty"`
		Headers   map[string]string `json:"headers,omitempty"`
	}

	// Loader loads modules for one build.
	Loader struct {
		basePath   string
		entryText  string
		httpClient *http.Client
		logger     *log.Logger
		metrics    *metrics.Recorder
	}

	// Option configures a Loader.
	Option func(*Loader)
)

const (
	// ResultModule carries source content.
	ResultModule ResultKind = "module"
	// ResultExternal tells the bundler to leave the specifier unresolved.
	ResultExternal ResultKind = "external"
)

// WithHTTPClient sets the client used for remote modules.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(lg *log.Logger) Option {
	return func(l *Loader) { l.logger = lg }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(l *Loader) { l.metrics = m }
}

// New creates a Loader that serves entryText for entry.Specifier and resolves
// virtual-root specifiers under basePath.
func New(basePath, entryText string, opts ...Option) *Loader {
	l := &Loader{basePath: basePath, entryText: entryText}
	for _, opt := range opts {
		opt(l)
	}
	if l.httpClient == nil {
		l.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard)
	}
	return l
}

// Load resolves specifier according to its Kind.
func (l *Loader) Load(ctx context.Context, specifier string) (*LoadResult, error) {
	kind := Classify(specifier)

	var (
		res *LoadResult
		err error
	)
	switch kind {
	case KindEntry:
		res = &LoadResult{Kind: ResultModule, Specifier: specifier, Content: l.entryText}
	case KindExternal:
		res = &LoadResult{Kind: ResultExternal, Specifier: specifier}
	case KindVirtual:
		res, err = l.loadVirtual(specifier)
	case KindRemote:
		res, err = l.loadRemote(ctx, specifier)
	}

	if err != nil {
		l.metrics.ModuleLoad(kind.String(), metrics.OutcomeFailure)
		return nil, err
	}
	l.metrics.ModuleLoad(kind.String(), metrics.OutcomeSuccess)
	return res, nil
}

func (l *Loader) loadVirtual(specifier string) (*LoadResult, error) {
	path, err := entry.PathFromVirtual(l.basePath, specifier)
	if err != nil {
		return nil, &VirtualModuleNotFoundError{Specifier: specifier, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &VirtualModuleNotFoundError{Specifier: specifier, Path: path}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &LoadResult{Kind: ResultModule, Specifier: specifier, Content: string(data)}, nil
}

func (l *Loader) loadRemote(ctx context.Context, specifier string) (*LoadResult, error) {
	u, err := url.Parse(specifier)
	if err != nil || u.Scheme == "" || (len(u.Scheme) == 1 && filepath.VolumeName(specifier) != "") {
		// Plain filesystem path.
		return l.loadFile(specifier, "file://"+filepath.ToSlash(specifier))
	}

	switch u.Scheme {
	case "file":
		return l.loadFile(filepath.FromSlash(u.Path), specifier)
	case "http", "https":
		return l.fetch(ctx, specifier)
	}
	return nil, &ModuleLoadError{Specifier: specifier, Attempts: 1, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
}

func (l *Loader) loadFile(path, specifier string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModuleLoadError{Specifier: specifier, Attempts: 1, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &ModuleLoadError{Specifier: specifier, Attempts: 1, Err: errMalformed}
	}
	return &LoadResult{Kind: ResultModule, Specifier: specifier, Content: string(data)}, nil
}

var errMalformed = errors.New("module content is not valid UTF-8")

// fetch GETs a remote module, retrying timeouts, connection errors and 5xx.
func (l *Loader) fetch(ctx context.Context, specifier string) (*LoadResult, error) {
	var (
		res      *LoadResult
		attempts int
	)
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: RemoteAttempts,
		NewBackOff:  retry.Exponential(50*time.Millisecond, 500*time.Millisecond),
		Retryable:   isTransient,
		OnRetry: func(attempt int, err error) {
			l.metrics.ModuleLoad(KindRemote.String(), metrics.OutcomeRetry)
			l.logger.Debug("Retrying module fetch", "specifier", specifier, "attempt", attempt, "err", err)
		},
	}, func(ctx context.Context, attempt int) error {
		attempts = attempt
		var fetchErr error
		res, fetchErr = l.fetchOnce(ctx, specifier)
		return fetchErr
	})
	if err == nil {
		return res, nil
	}

	le := &ModuleLoadError{Specifier: specifier, Attempts: attempts, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		le.StatusCode = se.code
		le.Err = nil
	}
	le.Transient = isTransient(err)
	return nil, le
}

func (l *Loader) fetchOnce(ctx context.Context, specifier string) (*LoadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, specifier, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleBytes))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errMalformed
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	final := specifier
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &LoadResult{Kind: ResultModule, Specifier: final, Content: string(data), Headers: headers}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status code %d", e.code)
}

// isTransient reports whether err may succeed on another attempt.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	if errors.Is(err, errMalformed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
