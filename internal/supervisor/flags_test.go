// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"encoding/json"
	"slices"
	"strconv"
	"testing"
)

func itoa(n int) string { return strconv.Itoa(n) }

func TestServeFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts ServeOptions
		want []string
	}{
		{
			name: "defaults",
			want: []string{"--allow-all", "--unstable", disallowCodegenFlag, "--no-config", "--quiet"},
		},
		{
			name: "import map and cert",
			opts: ServeOptions{ImportMapURL: "data:application/json;base64,e30=", CertificatePath: "/etc/ca.pem"},
			want: []string{
				"--allow-all", "--unstable", "--import-map=data:application/json;base64,e30=",
				disallowCodegenFlag, "--no-config", "--cert=/etc/ca.pem", "--quiet",
			},
		},
		{
			name: "debug",
			opts: ServeOptions{Debug: true},
			want: []string{"--allow-all", "--unstable", disallowCodegenFlag, "--no-config", "--log-level=debug"},
		},
		{
			name: "inspect",
			opts: ServeOptions{Inspect: InspectOptions{Enabled: true}},
			want: []string{"--allow-all", "--unstable", disallowCodegenFlag, "--no-config", "--quiet", "--inspect"},
		},
		{
			name: "pause without inspect",
			opts: ServeOptions{Inspect: InspectOptions{Pause: true}},
			want: []string{"--allow-all", "--unstable", disallowCodegenFlag, "--no-config", "--quiet"},
		},
		{
			name: "inspect-brk with address",
			opts: ServeOptions{Inspect: InspectOptions{Enabled: true, Pause: true, Address: "127.0.0.1:9229"}},
			want: []string{"--allow-all", "--unstable", disallowCodegenFlag, "--no-config", "--quiet", "--inspect-brk=127.0.0.1:9229"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ServeFlags(tt.opts); !slices.Equal(got, tt.want) {
				t.Errorf("ServeFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocalFiles(t *testing.T) {
	t.Parallel()

	graph := json.RawMessage(`{"modules":[
		{"specifier":"file:///a/b.ts","local":"/a/b.ts"},
		{"specifier":"https://deno.land/x/y.ts","local":""},
		{"specifier":"file:///a/a.ts","local":"/a/a.ts"},
		{"specifier":"file:///a/b.ts","local":"/a/b.ts"}
	]}`)

	if got, want := LocalFiles(graph), []string{"/a/a.ts", "/a/b.ts"}; !slices.Equal(got, want) {
		t.Errorf("LocalFiles() = %v, want %v", got, want)
	}
	if got := LocalFiles(nil); got != nil {
		t.Errorf("LocalFiles(nil) = %v", got)
	}
	if got := LocalFiles(json.RawMessage("not json")); got != nil {
		t.Errorf("LocalFiles(invalid) = %v", got)
	}
}
