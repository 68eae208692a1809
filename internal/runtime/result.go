// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCommandFailed is the sentinel matched by *CommandError.
var ErrCommandFailed = errors.New("runtime command failed")

type (
	// Result holds the captured output of a finished command.
	Result struct {
		Output    string
		ErrOutput string
		ExitCode  int
	}

	// CommandError is returned by Run when the command exits non-zero.
	CommandError struct {
		Args     []string
		ExitCode int
		Stderr   string
	}
)

// Success reports whether the command exited zero.
func (r *Result) Success() bool { return r != nil && r.ExitCode == 0 }

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("runtime %s exited with code %d", firstArg(e.Args), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap returns ErrCommandFailed.
func (e *CommandError) Unwrap() error { return ErrCommandFailed }

func firstArg(args []string) string {
	if len(args) == 0 {
		return "command"
	}
	return args[0]
}
