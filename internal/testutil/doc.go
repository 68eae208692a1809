// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// It also hosts FakeRuntime, a stand-in for the runtime binary: test binaries
// re-execute themselves with HelperEnv set, and RunFakeRuntime interprets the
// runtime CLI surface (run, info, cache, --version) well enough to exercise
// spawning, readiness and environment isolation without the real executable.
package testutil
