// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseEnvFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		initial  map[string]string
		content  string
		expected map[string]string
	}{
		{
			name:     "simple key value",
			content:  "FOO=bar",
			expected: map[string]string{"FOO": "bar"},
		},
		{
			name:     "multiple lines and comments",
			content:  "# settings\nFOO=bar\n\nBAZ=qux # trailing\n",
			expected: map[string]string{"FOO": "bar", "BAZ": "qux"},
		},
		{
			name:     "empty value",
			content:  "EMPTY=",
			expected: map[string]string{"EMPTY": ""},
		},
		{
			name:     "value with equals sign",
			content:  "URL=https://example.com?foo=bar",
			expected: map[string]string{"URL": "https://example.com?foo=bar"},
		},
		{
			name:     "double quoted with spaces",
			content:  `GREETING="hello world"`,
			expected: map[string]string{"GREETING": "hello world"},
		},
		{
			name:     "single quoted is literal",
			content:  `RAW='$NOT_EXPANDED'`,
			expected: map[string]string{"RAW": "$NOT_EXPANDED"},
		},
		{
			name:     "export prefix",
			content:  "export TOKEN=abc",
			expected: map[string]string{"TOKEN": "abc"},
		},
		{
			name:     "expansion sees earlier lines",
			content:  "HOST=localhost\nURL=\"http://${HOST}:8080\"",
			expected: map[string]string{"URL": "http://localhost:8080"},
		},
		{
			name:     "expansion sees existing env",
			initial:  map[string]string{"BASE": "/srv"},
			content:  "DATA=$BASE/data",
			expected: map[string]string{"DATA": "/srv/data"},
		},
		{
			name:     "unset variable expands empty",
			content:  "X=${MISSING}suffix",
			expected: map[string]string{"X": "suffix"},
		},
		{
			name:     "append",
			initial:  map[string]string{"FLAGS": "-a"},
			content:  "FLAGS+=' -b'",
			expected: map[string]string{"FLAGS": "-a -b"},
		},
		{
			name:     "naked export keeps value",
			initial:  map[string]string{"KEEP": "yes"},
			content:  "export KEEP",
			expected: map[string]string{"KEEP": "yes"},
		},
		{
			name:     "later wins",
			content:  "A=1\nA=2",
			expected: map[string]string{"A": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := make(map[string]string)
			for k, v := range tt.initial {
				env[k] = v
			}
			if err := ParseEnvFile(env, []byte(tt.content), "test.env"); err != nil {
				t.Fatalf("ParseEnvFile() error = %v", err)
			}
			for k, v := range tt.expected {
				if env[k] != v {
					t.Errorf("expected %s=%q, got %s=%q", k, v, k, env[k])
				}
			}
		})
	}
}

func TestParseEnvFile_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"command", "echo hi"},
		{"command after assignment", "FOO=bar env"},
		{"command substitution", "NOW=$(date)"},
		{"backticks", "NOW=`date`"},
		{"redirect", "FOO=bar > out"},
		{"array", "LIST=(a b)"},
		{"readonly declaration", "readonly FOO=bar"},
		{"pipeline", "FOO=bar | cat"},
		{"syntax error", `FOO="unterminated`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ParseEnvFile(map[string]string{}, []byte(tt.content), "bad.env")
			if !errors.Is(err, ErrInvalidEnvFile) {
				t.Errorf("ParseEnvFile(%q) error = %v, want ErrInvalidEnvFile", tt.content, err)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FOO=bar\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{}
	if err := LoadEnvFile(env, ".env", dir); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	if env["FOO"] != "bar" {
		t.Errorf("FOO = %q, want bar", env["FOO"])
	}

	if err := LoadEnvFile(env, "missing.env?", dir); err != nil {
		t.Errorf("optional missing file: error = %v", err)
	}
	if err := LoadEnvFile(env, "missing.env", dir); err == nil {
		t.Error("required missing file: want error")
	}
	if err := LoadEnvFile(env, filepath.Join(dir, ".env"), ""); err != nil {
		t.Errorf("absolute path: error = %v", err)
	}
}

func TestParseEnvPairs(t *testing.T) {
	t.Parallel()

	env := map[string]string{}
	if err := ParseEnvPairs(env, []string{"A=1", "B=x=y", "A=2", "EMPTY="}); err != nil {
		t.Fatalf("ParseEnvPairs() error = %v", err)
	}
	if env["A"] != "2" || env["B"] != "x=y" || env["EMPTY"] != "" {
		t.Errorf("env = %v", env)
	}

	var pe *InvalidEnvPairError
	if err := ParseEnvPairs(env, []string{"NOEQUALS"}); !errors.As(err, &pe) {
		t.Errorf("ParseEnvPairs(NOEQUALS) error = %v, want *InvalidEnvPairError", err)
	}
}

func TestEnvToSlice(t *testing.T) {
	t.Parallel()

	got := EnvToSlice(map[string]string{"B": "2", "A": "1"})
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Errorf("EnvToSlice() = %v, want sorted pairs", got)
	}
	if EnvToSlice(nil) == nil {
		t.Error("EnvToSlice(nil) must not be nil")
	}
}
