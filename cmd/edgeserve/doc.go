// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the edgeserve CLI commands.
package cmd
