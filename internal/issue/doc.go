// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown guidance
// for the failures users hit most often: runtime downloads, bundling and
// isolates that never come up.
package issue
