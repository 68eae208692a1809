// SPDX-License-Identifier: MPL-2.0

package binary

import "fmt"

// PlatformTarget maps a Go OS/architecture pair to the release target triple
// used in archive names.
func PlatformTarget(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "x86_64-unknown-linux-gnu", nil
	case "linux/arm64":
		return "aarch64-unknown-linux-gnu", nil
	case "darwin/amd64":
		return "x86_64-apple-darwin", nil
	case "darwin/arm64":
		return "aarch64-apple-darwin", nil
	case "windows/amd64":
		return "x86_64-pc-windows-msvc", nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

// ExecutableName returns the runtime file name on goos.
func ExecutableName(goos string) string {
	if goos == "windows" {
		return Name + ".exe"
	}
	return Name
}
