// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"encoding/json"
	"slices"
)

type (
	graphModule struct {
		Specifier string `json:"specifier"`
		Local     string `json:"local"`
	}

	graphDocument struct {
		Modules []graphModule `json:"modules"`
	}
)

// LocalFiles lists the on-disk files named by a module graph, sorted and
// without duplicates. An empty or unreadable graph yields nil.
func LocalFiles(graph json.RawMessage) []string {
	if len(graph) == 0 {
		return nil
	}
	var doc graphDocument
	if err := json.Unmarshal(graph, &doc); err != nil {
		return nil
	}

	var files []string
	for _, m := range doc.Modules {
		if m.Local != "" {
			files = append(files, m.Local)
		}
	}
	slices.Sort(files)
	return slices.Compact(files)
}
