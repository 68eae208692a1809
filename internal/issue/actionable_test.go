// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewErrorContext().
		WithOperation("download runtime").
		WithResource("https://dl.example/deno.zip").
		WithSuggestion("Check your network connection").
		WithIssue(RuntimeDownloadFailedId).
		Wrap(cause).
		BuildError()

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() = %T", err)
	}
	if want := "failed to download runtime: https://dl.example/deno.zip: connection refused"; ae.Error() != want {
		t.Errorf("Error() = %q, want %q", ae.Error(), want)
	}
	if ae.Issue != RuntimeDownloadFailedId {
		t.Errorf("Issue = %d", ae.Issue)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}
}

func TestErrorContext_NoOperation(t *testing.T) {
	t.Parallel()

	if NewErrorContext().Wrap(errors.New("x")).Build() != nil {
		t.Error("Build() without operation should be nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v", err)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	root := errors.New("EOF")
	ae := &ActionableError{
		Operation:   "bundle functions",
		Suggestions: []string{"Fix the syntax error"},
		Cause:       fmt.Errorf("parsing hello.ts: %w", root),
	}

	short := ae.Format(false)
	if !strings.Contains(short, "• Fix the syntax error") || strings.Contains(short, "Error chain") {
		t.Errorf("Format(false) =\n%s", short)
	}

	long := ae.Format(true)
	if !strings.Contains(long, "1. parsing hello.ts: EOF") || !strings.Contains(long, "2. EOF") {
		t.Errorf("Format(true) =\n%s", long)
	}
}

func TestWrapWithOperation(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil {
		t.Error("WrapWithOperation(nil) != nil")
	}
	err := WrapWithOperation(errors.New("boom"), "stop isolate")
	if err.Error() != "failed to stop isolate: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
