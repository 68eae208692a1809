// SPDX-License-Identifier: MPL-2.0

package binary

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionFetch is the sentinel matched by *VersionFetchError.
	ErrVersionFetch = errors.New("failed to fetch latest version")

	// ErrRangeMismatch is the sentinel matched by *RangeMismatchError.
	ErrRangeMismatch = errors.New("no compatible version")

	// ErrDownload is the sentinel matched by *DownloadError.
	ErrDownload = errors.New("download failed")

	// ErrInvalidRange indicates the caller-supplied version range cannot be parsed.
	ErrInvalidRange = errors.New("invalid version range")

	// ErrUnsupportedPlatform indicates there is no release archive for the host.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

type (
	// VersionFetchError is returned when the latest-version pointer cannot be
	// read. StatusCode is zero when the request itself failed.
	VersionFetchError struct {
		URL        string
		StatusCode int
		Err        error
	}

	// RangeMismatchError is returned when the discovered version is not valid
	// semver or does not satisfy the requested range.
	RangeMismatchError struct {
		Range   string
		Version string
		Reason  string
	}

	// DownloadError is returned after the last download attempt failed. It
	// carries the final HTTP status code, or the stream error when the
	// failure happened while reading or extracting the archive.
	DownloadError struct {
		URL        string
		Attempts   int
		StatusCode int
		Err        error
	}
)

func (e *VersionFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch latest version from %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch latest version from %s: %v", e.URL, e.Err)
}

// Unwrap returns ErrVersionFetch so callers can match with errors.Is, plus the
// underlying transport error when there is one.
func (e *VersionFetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrVersionFetch, e.Err}
	}
	return []error{ErrVersionFetch}
}

func (e *RangeMismatchError) Error() string {
	return fmt.Sprintf("version %q does not satisfy range %q: %s", e.Version, e.Range, e.Reason)
}

// Unwrap returns ErrRangeMismatch.
func (e *RangeMismatchError) Unwrap() error { return ErrRangeMismatch }

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Download failed with status code %d", e.StatusCode)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Download failed"
}

// Unwrap returns ErrDownload and the last attempt's error, if any.
func (e *DownloadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDownload, e.Err}
	}
	return []error{ErrDownload}
}

// statusError marks a single attempt that got a non-2xx response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Download failed with status code %d", e.code)
}
