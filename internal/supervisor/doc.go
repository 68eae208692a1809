// SPDX-License-Identifier: MPL-2.0

// Package supervisor owns the lifecycle of the local runtime isolate.
//
// A restart regenerates the entry module, rebuilds the bundled artifact through
// the bundler, asks the runtime for the module graph, and spawns a fresh
// runtime process against the artifact. The previous process is always
// terminated and reaped first. StartIsolate then blocks until the new process
// accepts TCP connections, exits, or the readiness timeout expires.
//
// A Supervisor holds at most one process handle. Restart and stop flows are
// serialized by a mutex.
package supervisor
