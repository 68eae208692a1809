// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
	"golang.org/x/mod/semver"
)

// maxPointerBytes bounds the latest-version pointer response.
const maxPointerBytes = 4 << 10

type (
	// Version is a validated semantic version without a "v" prefix.
	Version string

	// Resolver discovers the newest published runtime version.
	Resolver struct {
		httpClient *http.Client
		latestURL  string
	}
)

// String returns the version as a plain string.
func (v Version) String() string { return string(v) }

// NewResolver creates a Resolver. Only WithHTTPClient and WithLatestURL apply.
func NewResolver(opts ...Option) *Resolver {
	o := newOptions(opts)
	return newResolver(o)
}

func newResolver(o *options) *Resolver {
	return &Resolver{httpClient: o.httpClient, latestURL: o.latestURL}
}

// Resolve fetches the latest pointer and returns its version if it satisfies
// rangeStr. There is no retry at this layer.
func (r *Resolver) Resolve(ctx context.Context, rangeStr string) (Version, error) {
	constraint, err := parseRange(rangeStr)
	if err != nil {
		return "", err
	}

	token, err := r.fetchPointer(ctx)
	if err != nil {
		return "", err
	}

	norm, err := normalizeVersion(token)
	if err != nil {
		return "", &RangeMismatchError{Range: rangeStr, Version: token, Reason: "not a valid semantic version"}
	}
	version := Version(strings.TrimPrefix(norm, "v"))

	if !satisfies(constraint, version) {
		return "", &RangeMismatchError{Range: rangeStr, Version: string(version), Reason: "outside the requested range"}
	}
	return version, nil
}

func (r *Resolver) fetchPointer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.latestURL, http.NoBody)
	if err != nil {
		return "", &VersionFetchError{URL: r.latestURL, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &VersionFetchError{URL: r.latestURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }() // read-only HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &VersionFetchError{URL: r.latestURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPointerBytes))
	if err != nil {
		return "", &VersionFetchError{URL: r.latestURL, Err: err}
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", &VersionFetchError{URL: r.latestURL, Err: fmt.Errorf("empty version pointer")}
	}
	return fields[0], nil
}

// Satisfies reports whether version is inside rangeStr. Invalid input of
// either kind reports false.
func Satisfies(rangeStr, version string) bool {
	constraint, err := parseRange(rangeStr)
	if err != nil {
		return false
	}
	norm, err := normalizeVersion(version)
	if err != nil {
		return false
	}
	return satisfies(constraint, Version(strings.TrimPrefix(norm, "v")))
}

func parseRange(rangeStr string) (*mmsemver.Constraints, error) {
	c, err := mmsemver.NewConstraint(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidRange, rangeStr, err)
	}
	return c, nil
}

func satisfies(c *mmsemver.Constraints, v Version) bool {
	parsed, err := mmsemver.StrictNewVersion(string(v))
	if err != nil {
		return false
	}
	return c.Check(parsed)
}

// normalizeVersion ensures the version string has a "v" prefix as required by
// the semver package, and validates that the result is a full major.minor.patch
// version.
func normalizeVersion(v string) (string, error) {
	norm := strings.TrimSpace(v)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) || semver.Canonical(norm) != norm {
		return "", fmt.Errorf("invalid semantic version %q", v)
	}
	return norm, nil
}
