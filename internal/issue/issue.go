// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Catalog entries. Values are stable and start at 1.
const (
	RuntimeDownloadFailedId Id = iota + 1
	VersionOutOfRangeId
	UnsupportedPlatformId
	BundleFailedId
	ModuleNotFoundId
	RuntimeNotReadyId
	NoFunctionsFoundId
	DuplicateFunctionId
	ConfigLoadFailedId
)

type (
	// Id identifies a catalog entry.
	Id int //nolint:revive // matches the catalog naming

	// MarkdownMsg is the guidance text of an Issue.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string //nolint:revive // matches the catalog naming

	// Issue is a catalog entry with Markdown guidance.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the catalog ID.
func (i *Issue) Id() Id { return i.id } //nolint:revive // matches the catalog naming

// MarkdownMsg returns the raw Markdown.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the guidance with a glamour style such as "dark", "light"
// or "notty".
func (i *Issue) Render(style string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- " + string(link) + "\n")
		}
	}
	return render(md.String(), style)
}

var render = glamour.Render //nolint:gochecknoglobals // test seam

var issues = map[Id]*Issue{ //nolint:gochecknoglobals // read-only catalog
	RuntimeDownloadFailedId: {
		id: RuntimeDownloadFailedId,
		mdMsg: `
# Could not download the runtime

The runtime binary could not be fetched after several attempts.

## Things you can try:
- Check your network connection and proxy settings
- Point ` + "`endpoints.release_base`" + ` at a reachable mirror
- Use a runtime that is already installed:
~~~cue
use_system_binary: true
~~~`,
		docLinks: []HttpLink{"https://docs.deno.com/runtime/getting_started/installation/"},
	},
	VersionOutOfRangeId: {
		id: VersionOutOfRangeId,
		mdMsg: `
# Runtime version outside the supported range

The latest published runtime does not satisfy the configured version range.

## Things you can try:
- Widen the range in your config:
~~~cue
version_range: "^1.37.0"
~~~
- Install a matching runtime and enable ` + "`use_system_binary`",
	},
	UnsupportedPlatformId: {
		id: UnsupportedPlatformId,
		mdMsg: `
# Platform not supported

No runtime build is published for this operating system and architecture.

## Things you can try:
- Install the runtime yourself and enable ` + "`use_system_binary`",
	},
	BundleFailedId: {
		id: BundleFailedId,
		mdMsg: `
# Bundling failed

The functions could not be bundled. The message above comes from the bundler.

## Things you can try:
- Fix the syntax error or unresolved import it names
- Check that every bare specifier is mapped in an import map
- Run ` + "`edgeserve serve --verbose`" + ` to see each module as it loads`,
	},
	ModuleNotFoundId: {
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found

A function imports a local file that does not exist.

## Things you can try:
- Check the relative import path and its extension
- Keep imported files inside the functions directory`,
	},
	RuntimeNotReadyId: {
		id: RuntimeNotReadyId,
		mdMsg: `
# The runtime did not start

The isolate exited or did not open its port before the readiness timeout.

## Things you can try:
- Look at the runtime output above for a boot error
- Raise the readiness timeout:
~~~cue
readiness: timeout: "2m"
~~~
- Pick another port if something else is listening on it`,
	},
	NoFunctionsFoundId: {
		id: NoFunctionsFoundId,
		mdMsg: `
# No edge functions found

None of the function directories contain a function module.

## Function layouts:
- ` + "`<dir>/hello.ts`" + `
- ` + "`<dir>/hello/hello.ts`" + ` or ` + "`<dir>/hello/index.ts`" + `

Supported extensions: .js .jsx .mjs .cjs .ts .tsx`,
	},
	DuplicateFunctionId: {
		id: DuplicateFunctionId,
		mdMsg: `
# Duplicate function name

Two modules export the same function name. Every name must be unique
within one build.

## Things you can try:
- Rename one of the files or directories`,
	},
	ConfigLoadFailedId: {
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded

## Things you can try:
- Check the CUE syntax of your config file
- Compare it with the defaults:
~~~
$ edgeserve config show
~~~
- Write a fresh file with ` + "`edgeserve config init`",
	},
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}

// Values returns every catalog entry ordered by ID.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, len(ids))
	for i, id := range ids {
		out[i] = issues[id]
	}
	return out
}
