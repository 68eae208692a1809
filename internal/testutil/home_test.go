// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"testing"
)

func TestSetHomeDir(t *testing.T) {
	dir := t.TempDir()
	SetHomeDir(t, dir)

	got, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("os.UserHomeDir() = %q, want %q", got, dir)
	}
}
