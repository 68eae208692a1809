// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrInvalidEnvFile is the sentinel matched by *InvalidEnvFileError and
// *InvalidEnvPairError.
var ErrInvalidEnvFile = errors.New("invalid environment definition")

type (
	// InvalidEnvFileError reports a statement in an env file that is not a
	// plain assignment.
	InvalidEnvFileError struct {
		File   string
		Line   uint
		Reason string
	}

	// InvalidEnvPairError reports a --env value without KEY=VALUE shape.
	InvalidEnvPairError struct {
		Pair string
	}
)

func (e *InvalidEnvFileError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Reason)
}

// Unwrap returns ErrInvalidEnvFile.
func (e *InvalidEnvFileError) Unwrap() error { return ErrInvalidEnvFile }

func (e *InvalidEnvPairError) Error() string {
	return fmt.Sprintf("invalid environment pair %q (want KEY=VALUE)", e.Pair)
}

// Unwrap returns ErrInvalidEnvFile.
func (e *InvalidEnvPairError) Unwrap() error { return ErrInvalidEnvFile }

// LoadEnvFile loads an env file and merges its assignments into env.
// Relative paths resolve against cwd (os.Getwd when empty). Files suffixed
// with '?' are optional; a missing optional file is not an error.
func LoadEnvFile(env map[string]string, path, cwd string) error {
	optional := strings.HasSuffix(path, "?")
	if optional {
		path = strings.TrimSuffix(path, "?")
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		if cwd == "" {
			var err error
			cwd, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current working directory: %w", err)
			}
		}
		fullPath = filepath.Join(cwd, filepath.FromSlash(path))
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read env file '%s': %w", path, err)
	}

	return ParseEnvFile(env, content, path)
}

// ParseEnvFile parses shell-style assignments and merges them into env:
//
//	KEY=value
//	KEY="value with $OTHER"
//	KEY='literal'
//	export KEY=value
//	KEY+=suffix
//
// Expansions see env as it stands, including earlier lines. Anything other
// than an assignment, and any command substitution, is rejected.
func ParseEnvFile(env map[string]string, content []byte, filename string) error {
	file, err := syntax.NewParser().Parse(bytes.NewReader(content), filename)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEnvFile, err)
	}

	for _, stmt := range file.Stmts {
		assigns, err := stmtAssigns(stmt, filename)
		if err != nil {
			return err
		}
		for _, as := range assigns {
			if err := applyAssign(env, as, filename); err != nil {
				return err
			}
		}
	}
	return nil
}

func stmtAssigns(stmt *syntax.Stmt, filename string) ([]*syntax.Assign, error) {
	line := stmt.Pos().Line()
	if stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return nil, &InvalidEnvFileError{File: filename, Line: line, Reason: "only assignments are allowed"}
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		if len(cmd.Args) > 0 {
			return nil, &InvalidEnvFileError{File: filename, Line: line, Reason: "commands are not allowed"}
		}
		return cmd.Assigns, nil
	case *syntax.DeclClause:
		if cmd.Variant == nil || cmd.Variant.Value != "export" {
			return nil, &InvalidEnvFileError{File: filename, Line: line, Reason: "only export declarations are allowed"}
		}
		return cmd.Args, nil
	}
	return nil, &InvalidEnvFileError{File: filename, Line: line, Reason: "only assignments are allowed"}
}

func applyAssign(env map[string]string, as *syntax.Assign, filename string) error {
	line := as.Pos().Line()
	if as.Name == nil {
		return &InvalidEnvFileError{File: filename, Line: line, Reason: "missing variable name"}
	}
	if as.Naked {
		// "export KEY" with no value keeps whatever KEY already holds.
		return nil
	}
	if as.Array != nil || as.Index != nil {
		return &InvalidEnvFileError{File: filename, Line: line, Reason: "arrays are not supported"}
	}

	var value string
	if as.Value != nil {
		cfg := &expand.Config{Env: expand.ListEnviron(EnvToSlice(env)...)}
		v, err := expand.Literal(cfg, as.Value)
		if err != nil {
			return &InvalidEnvFileError{File: filename, Line: line, Reason: err.Error()}
		}
		value = v
	}

	name := as.Name.Value
	if as.Append {
		value = env[name] + value
	}
	env[name] = value
	return nil
}
