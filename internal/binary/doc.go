// SPDX-License-Identifier: MPL-2.0

// Package binary provisions the runtime executable that edgeserve supervises.
//
// A Resolver reads the published "latest" pointer and checks it against a
// semantic-version range. A Downloader fetches the platform-specific release
// archive for that version, retrying failed attempts, and installs the binary
// with an atomic rename. A Manager composes both behind EnsureBinary, which
// reuses an in-process installation or a cached one before touching the
// network, and collapses concurrent installs into one.
package binary
