// SPDX-License-Identifier: MPL-2.0

// Package fspath holds the small filesystem helpers shared by the binary
// cache, the artifact writer and the entry assembler: atomic replacement of a
// file, containment checks and common-ancestor computation.
package fspath

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideBase is returned when a path escapes the directory it must stay in.
var ErrOutsideBase = errors.New("path escapes base directory")

// WriteFileAtomic writes data to path by writing a temp file in the same
// directory and renaming it into place. A failed write never leaves a partial
// file at path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic is WriteFileAtomic for streamed content. write receives the temp
// file; if it returns an error the temp file is removed and path is untouched.
func WriteAtomic(path string, perm os.FileMode, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tmpPath) // best-effort cleanup of the partial file
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	renamed = true
	return nil
}

// Within joins rel onto base and verifies the result stays inside base.
func Within(base, rel string) (string, error) {
	joined := filepath.Join(base, filepath.FromSlash(rel))
	back, err := filepath.Rel(base, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	return joined, nil
}

// CommonDir returns the deepest directory containing every path. Paths are
// expected to be absolute files; the result for an empty slice is "".
func CommonDir(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	common := filepath.Dir(filepath.Clean(paths[0]))
	for _, p := range paths[1:] {
		dir := filepath.Dir(filepath.Clean(p))
		for !isAncestor(common, dir) {
			parent := filepath.Dir(common)
			if parent == common {
				break
			}
			common = parent
		}
	}
	return common
}

func isAncestor(ancestor, path string) bool {
	if ancestor == path {
		return true
	}
	rel, err := filepath.Rel(ancestor, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
