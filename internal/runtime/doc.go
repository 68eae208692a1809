// SPDX-License-Identifier: MPL-2.0

// Package runtime runs the managed runtime binary.
//
// Bridge resolves the binary through a BinaryProvider on every call, so the
// first use triggers provisioning. Run executes a short command and captures
// its output; Start launches a long-lived child, optionally with an isolated
// environment, and returns a Process handle whose Done channel closes when the
// child exits. Child output can be streamed line by line into the logger.
//
// Environment files are parsed as POSIX shell assignments with mvdan/sh; only
// assignments are accepted and command substitution is rejected, so loading an
// env file never executes anything.
package runtime
