// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(ConfigLoadFailedId) {
		t.Fatalf("Values() returned %d entries, want %d", len(values), ConfigLoadFailedId)
	}
	for i, is := range values {
		if is.Id() != Id(i+1) {
			t.Errorf("entry %d has ID %d", i, is.Id())
		}
		if !strings.HasPrefix(strings.TrimSpace(string(is.MarkdownMsg())), "# ") {
			t.Errorf("issue %d does not start with a heading", is.Id())
		}
		if Get(is.Id()) != is {
			t.Errorf("Get(%d) mismatch", is.Id())
		}
	}
	if Get(0) != nil {
		t.Error("Get(0) should be nil")
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()

	out, err := Get(RuntimeDownloadFailedId).Render("notty")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Could not download the runtime", "See also", "use_system_binary"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output lacks %q:\n%s", want, out)
		}
	}
}

func TestIssue_DocLinksCopy(t *testing.T) {
	t.Parallel()

	is := Get(RuntimeDownloadFailedId)
	links := is.DocLinks()
	links[0] = "mutated"
	if is.DocLinks()[0] == "mutated" {
		t.Error("DocLinks() exposes internal slice")
	}
}
