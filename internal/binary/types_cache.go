// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeserve/edgeserve/pkg/fspath"
)

// TypesVersionFile records the last synced type-definition version.
const TypesVersionFile = "types-version.txt"

// RunFunc runs the managed runtime with args.
type RunFunc func(ctx context.Context, args ...string) error

// EnsureLatestTypes refreshes the runtime's cached type definitions when the
// published types version differs from the one recorded in cacheDir. An
// unreachable version endpoint skips the refresh and is not an error.
func EnsureLatestTypes(ctx context.Context, cacheDir, typesURL string, run RunFunc, opts ...Option) error {
	o := newOptions(opts)
	if typesURL == "" {
		typesURL = DefaultTypesURL
	}
	typesURL = strings.TrimRight(typesURL, "/")

	remote, err := fetchTypesVersion(ctx, o.httpClient, typesURL+"/version.txt")
	if err != nil {
		o.logger.Debug("Skipping types refresh", "err", err)
		return nil
	}

	markerPath := filepath.Join(cacheDir, TypesVersionFile)
	local, err := os.ReadFile(markerPath)
	if err == nil && bytes.Equal(local, remote) {
		o.logger.Debug("Types are up to date", "version", string(remote))
		return nil
	}

	o.logger.Info("Refreshing runtime types", "version", string(remote))
	if err := run(ctx, "cache", "-r", typesURL); err != nil {
		return fmt.Errorf("refreshing types cache: %w", err)
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", cacheDir, err)
	}
	if err := fspath.WriteFileAtomic(markerPath, remote, 0o644); err != nil {
		return fmt.Errorf("writing types marker: %w", err)
	}
	return nil
}

func fetchTypesVersion(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("types version endpoint returned status code %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPointerBytes))
}
