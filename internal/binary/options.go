// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/metrics"
)

const (
	// DefaultLatestURL serves the newest published version as plain text.
	DefaultLatestURL = "https://dl.deno.land/release-latest.txt"

	// DefaultReleaseBaseURL is the prefix of versioned release archives.
	DefaultReleaseBaseURL = "https://dl.deno.land/release"

	// DefaultTypesURL serves the type definitions matching the runtime. Its
	// version string lives at DefaultTypesURL + "/version.txt".
	DefaultTypesURL = "https://edge.netlify.com"

	// DefaultVersionRange is used when the caller does not configure one.
	DefaultVersionRange = "^1.37.0"

	// Name is the runtime executable name without platform suffix.
	Name = "deno"

	defaultHTTPTimeout = 5 * time.Minute
)

type (
	// Hook runs around a download. Errors are logged and otherwise ignored.
	Hook func(ctx context.Context) error

	// Option configures a Resolver, Downloader or Manager.
	Option func(*options)

	options struct {
		httpClient      *http.Client
		latestURL       string
		releaseBaseURL  string
		target          string
		goos            string
		logger          *log.Logger
		metrics         *metrics.Recorder
		useSystemBinary bool
		lookPath        func(string) (string, error)
		beforeDownload  Hook
		afterDownload   Hook
	}
)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLatestURL overrides the latest-version pointer endpoint.
func WithLatestURL(u string) Option {
	return func(o *options) { o.latestURL = u }
}

// WithReleaseBaseURL overrides the release archive base URL.
func WithReleaseBaseURL(u string) Option {
	return func(o *options) { o.releaseBaseURL = strings.TrimRight(u, "/") }
}

// WithPlatform overrides the host OS and architecture used to pick an archive.
func WithPlatform(goos, goarch string) Option {
	return func(o *options) {
		o.goos = goos
		o.target, _ = PlatformTarget(goos, goarch)
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithSystemBinary makes the Manager prefer a runtime found on PATH when its
// version satisfies the range.
func WithSystemBinary(enabled bool) Option {
	return func(o *options) { o.useSystemBinary = enabled }
}

// WithBeforeDownload registers a hook that runs before a download starts.
func WithBeforeDownload(h Hook) Option {
	return func(o *options) { o.beforeDownload = h }
}

// WithAfterDownload registers a hook that runs after a successful download.
func WithAfterDownload(h Hook) Option {
	return func(o *options) { o.afterDownload = h }
}

func withLookPath(fn func(string) (string, error)) Option {
	return func(o *options) { o.lookPath = fn }
}

func newOptions(opts []Option) *options {
	o := &options{
		latestURL:      DefaultLatestURL,
		releaseBaseURL: DefaultReleaseBaseURL,
		goos:           runtime.GOOS,
		lookPath:       exec.LookPath,
	}
	o.target, _ = PlatformTarget(runtime.GOOS, runtime.GOARCH)
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	return o
}
