// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edgeserve/edgeserve/pkg/fspath"
)

// HostScriptFile is the file name the bundler host is written to.
const HostScriptFile = "bundler-host.ts"

//go:embed host.ts
var hostScript []byte

// RuntimeCommand returns the command line that runs the built-in bundler
// host with the runtime binary at runtimePath. The host script is written to
// dir when missing or outdated.
func RuntimeCommand(runtimePath, dir string) (string, []string, error) {
	path := filepath.Join(dir, HostScriptFile)

	current, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(current, hostScript) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := fspath.WriteFileAtomic(path, hostScript, 0o644); err != nil {
			return "", nil, fmt.Errorf("writing bundler host: %w", err)
		}
	}

	return runtimePath, []string{"run", "--allow-all", "--no-config", "--quiet", path}, nil
}
