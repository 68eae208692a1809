// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/edgeserve/edgeserve/internal/bundler"
	"github.com/edgeserve/edgeserve/internal/testutil"
)

func TestMain(m *testing.M) {
	if testutil.FakeRuntimeRequested() {
		os.Exit(testutil.RunFakeRuntime(os.Args[1:]))
	}
	os.Exit(m.Run())
}

type selfBinary struct{}

func (selfBinary) EnsureBinary(context.Context) (string, error) {
	return os.Executable()
}

// concatBundler loads every root and the modules the entry imports, and
// returns their contents joined. It stands in for a real bundler.
type concatBundler struct {
	extra string
	err   error
}

func (c concatBundler) Build(ctx context.Context, roots []string, load bundler.LoadFunc, _ string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}

	var out strings.Builder
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		spec := queue[0]
		queue = queue[1:]

		res, err := load(ctx, spec)
		if err != nil {
			return nil, err
		}
		out.WriteString(res.Content)
		out.WriteString("\n")

		for _, line := range strings.Split(res.Content, "\n") {
			if _, rest, ok := strings.Cut(line, ` from "`); ok {
				queue = append(queue, strings.TrimSuffix(rest, `";`))
			}
		}
	}
	out.WriteString(c.extra)
	return []byte(out.String()), nil
}
