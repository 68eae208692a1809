// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"strings"

	"github.com/edgeserve/edgeserve/internal/entry"
)

// Kind is the class a module specifier falls into. Every specifier has
// exactly one Kind.
type Kind int

const (
	// KindEntry is the generated entry module.
	KindEntry Kind = iota + 1
	// KindExternal is resolved by the runtime itself at execution time.
	KindExternal
	// KindVirtual is a user file addressed under the virtual root.
	KindVirtual
	// KindRemote is anything else: network URLs, file URLs and plain paths.
	KindRemote
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindExternal:
		return "external"
	case KindVirtual:
		return "virtual"
	case KindRemote:
		return "remote"
	}
	return "unknown"
}

// Classify returns the Kind of specifier. Rules are checked in this order and
// the first match wins:
//
//  1. equal to entry.Specifier
//  2. equal to entry.ExternalSpecifier
//  3. prefixed by entry.VirtualRoot
//  4. everything else
func Classify(specifier string) Kind {
	switch {
	case specifier == entry.Specifier:
		return KindEntry
	case specifier == entry.ExternalSpecifier:
		return KindExternal
	case strings.HasPrefix(specifier, entry.VirtualRoot):
		return KindVirtual
	default:
		return KindRemote
	}
}
