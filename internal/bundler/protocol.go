// SPDX-License-Identifier: MPL-2.0

package bundler

import "github.com/edgeserve/edgeserve/internal/loader"

// Messages exchanged with a bundler process, one JSON object per line. The
// host sends a build request on stdin, answers each load request, and the
// bundler finishes with an artifact or an error message on stdout.
const (
	MsgBuild    = "build"
	MsgLoad     = "load"
	MsgLoaded   = "loaded"
	MsgArtifact = "artifact"
	MsgError    = "error"
	MsgLog      = "log"
)

type (
	// HostMessage is written by edgeserve.
	HostMessage struct {
		Type         string             `json:"type"`
		Roots        []string           `json:"roots,omitempty"`
		ImportMapURL string             `json:"import_map_url,omitempty"`
		ID           int                `json:"id,omitempty"`
		Result       *loader.LoadResult `json:"result,omitempty"`
	}

	// BundlerMessage is written by the bundler.
	BundlerMessage struct {
		Type      string `json:"type"`
		ID        int    `json:"id,omitempty"`
		Specifier string `json:"specifier,omitempty"`
		// Data is the artifact for MsgArtifact, base64 on the wire.
		Data    []byte `json:"data,omitempty"`
		Message string `json:"message,omitempty"`
	}
)
