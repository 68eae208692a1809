// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/metrics"
	"github.com/edgeserve/edgeserve/internal/retry"
	"github.com/edgeserve/edgeserve/pkg/fspath"
)

const (
	// DownloadAttempts is the total number of archive fetches per install.
	DownloadAttempts = 4

	// maxBinaryBytes is the upper bound on the extracted binary (500 MB).
	maxBinaryBytes = 500 << 20
)

type (
	// Downloader fetches and installs a release archive.
	Downloader struct {
		resolver       *Resolver
		httpClient     *http.Client
		releaseBaseURL string
		target         string
		goos           string
		logger         *log.Logger
		metrics        *metrics.Recorder
	}

	// Installation is a runtime binary present on disk.
	Installation struct {
		Path    string
		Version Version
	}
)

// NewDownloader creates a Downloader with its own Resolver.
func NewDownloader(opts ...Option) *Downloader {
	return newDownloader(newOptions(opts))
}

func newDownloader(o *options) *Downloader {
	return &Downloader{
		resolver:       newResolver(o),
		httpClient:     o.httpClient,
		releaseBaseURL: o.releaseBaseURL,
		target:         o.target,
		goos:           o.goos,
		logger:         o.logger,
		metrics:        o.metrics,
	}
}

// Download resolves the newest version inside rangeStr and installs it into
// targetDir, returning the binary path.
func (d *Downloader) Download(ctx context.Context, targetDir, rangeStr string) (string, error) {
	inst, err := d.install(ctx, targetDir, rangeStr)
	if err != nil {
		return "", err
	}
	return inst.Path, nil
}

// ArchiveURL returns the release archive URL for version.
func (d *Downloader) ArchiveURL(version Version) string {
	return fmt.Sprintf("%s/v%s/%s-%s.zip", d.releaseBaseURL, version, Name, d.target)
}

func (d *Downloader) install(ctx context.Context, targetDir, rangeStr string) (*Installation, error) {
	if d.target == "" {
		return nil, fmt.Errorf("%w: no release archive for this host", ErrUnsupportedPlatform)
	}

	version, err := d.resolver.Resolve(ctx, rangeStr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", targetDir, err)
	}

	url := d.ArchiveURL(version)
	dest := filepath.Join(targetDir, ExecutableName(d.goos))
	d.logger.Info("Downloading runtime", "version", version, "url", url)

	var lastErr error
	err = retry.Do(ctx, retry.Policy{
		MaxAttempts: DownloadAttempts,
		OnRetry: func(attempt int, err error) {
			d.logger.Warn("Runtime download failed, retrying", "attempt", attempt, "err", err)
		},
	}, func(ctx context.Context, _ int) error {
		lastErr = d.fetchAndExtract(ctx, url, targetDir, dest)
		if lastErr != nil {
			d.metrics.DownloadAttempt(metrics.OutcomeFailure)
			return lastErr
		}
		d.metrics.DownloadAttempt(metrics.OutcomeSuccess)
		return nil
	})
	if err != nil {
		if lastErr == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
		}
		dlErr := &DownloadError{URL: url, Attempts: DownloadAttempts}
		var se *statusError
		if errors.As(lastErr, &se) {
			dlErr.StatusCode = se.code
		} else {
			dlErr.Err = lastErr
		}
		return nil, dlErr
	}

	d.logger.Info("Runtime installed", "version", version, "path", dest)
	return &Installation{Path: dest, Version: version}, nil
}

// fetchAndExtract performs one attempt: the archive is streamed into a temp
// file next to the destination, then the binary entry is extracted and
// renamed over dest.
func (d *Downloader) fetchAndExtract(ctx context.Context, url, dir, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}

	archive, err := os.CreateTemp(dir, ".archive-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	size, err := io.Copy(archive, resp.Body)
	if err != nil {
		return err
	}

	return extractBinary(archive, size, dest, ExecutableName(d.goos))
}

// extractBinary finds the entry named binaryName (matched by base name, so
// flat and nested layouts both work) and installs it at dest with mode 0755.
func extractBinary(r io.ReaderAt, size int64, dest, binaryName string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || filepath.Base(f.Name) != binaryName {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening %s in archive: %w", f.Name, err)
		}
		defer func() { _ = rc.Close() }()

		return fspath.WriteAtomic(dest, 0o755, func(w io.Writer) error {
			if _, err := io.Copy(w, io.LimitReader(rc, maxBinaryBytes)); err != nil {
				return fmt.Errorf("extracting binary: %w", err)
			}
			return nil
		})
	}

	return fmt.Errorf("binary %q not found in archive", binaryName)
}
