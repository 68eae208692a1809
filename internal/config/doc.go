// SPDX-License-Identifier: MPL-2.0

// Package config loads edgeserve settings with Viper, using CUE as the file
// format.
//
// The file is read from --config when given, otherwise from config.cue in the
// platform config directory ($XDG_CONFIG_HOME/edgeserve on Linux,
// ~/Library/Application Support/edgeserve on macOS, %APPDATA%\edgeserve on
// Windows), otherwise from ./edgeserve.cue. Files are validated against the
// embedded schema in config_schema.cue. EDGESERVE_* environment variables
// override file values, with dots in keys replaced by underscores
// (EDGESERVE_READINESS_TIMEOUT).
package config
