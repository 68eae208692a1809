// SPDX-License-Identifier: MPL-2.0

// Package discovery finds edge function modules in function directories.
//
// A directory entry is a function when it is either:
//   - a file with a supported extension: hello.ts is function "hello"
//   - a directory holding hello/hello.ext or hello/index.ext
//
// Directories are scanned one level deep in the order given. When two
// directories provide the same function name, the earlier one wins and the
// later one is reported as a Diagnostic.
package discovery
