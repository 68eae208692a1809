// SPDX-License-Identifier: MPL-2.0

// Package devserver exposes a small local HTTP API for controlling a running
// isolate: health, the module graph, restarts and Prometheus metrics.
package devserver
