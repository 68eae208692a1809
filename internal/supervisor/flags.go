// SPDX-License-Identifier: MPL-2.0

package supervisor

import "strings"

// disallowCodegenFlag turns off eval and new Function inside the isolate.
const disallowCodegenFlag = "--v8-flags=--disallow-code-generation-from-strings"

type (
	// ServeOptions select the runtime flags for a serve process.
	ServeOptions struct {
		// ImportMapURL is a data URL passed through --import-map.
		ImportMapURL string
		// CertificatePath is an extra CA certificate for outbound TLS.
		CertificatePath string
		// Debug keeps runtime logs at debug level instead of --quiet.
		Debug   bool
		Inspect InspectOptions
	}

	// InspectOptions enable the V8 inspector.
	InspectOptions struct {
		Enabled bool
		// Pause waits for a debugger before running user code. Ignored
		// unless Enabled is set.
		Pause   bool
		Address string
	}
)

// ServeFlags returns the flags that go between "run" and the artifact path.
func ServeFlags(opts ServeOptions) []string {
	flags := []string{"--allow-all", "--unstable"}
	if opts.ImportMapURL != "" {
		flags = append(flags, "--import-map="+opts.ImportMapURL)
	}
	flags = append(flags, disallowCodegenFlag, "--no-config")

	if opts.CertificatePath != "" {
		flags = append(flags, "--cert="+opts.CertificatePath)
	}

	if opts.Debug {
		flags = append(flags, "--log-level=debug")
	} else {
		flags = append(flags, "--quiet")
	}

	if opts.Inspect.Enabled {
		var b strings.Builder
		b.WriteString("--inspect")
		if opts.Inspect.Pause {
			b.WriteString("-brk")
		}
		if opts.Inspect.Address != "" {
			b.WriteString("=" + opts.Inspect.Address)
		}
		flags = append(flags, b.String())
	}
	return flags
}
