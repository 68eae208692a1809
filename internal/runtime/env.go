// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"maps"
	"slices"
	"strings"
)

// EnvToSlice converts a map to KEY=VALUE pairs sorted by key. The result is
// never nil, so assigning it to exec.Cmd.Env yields exactly these variables.
func EnvToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		result = append(result, k+"="+env[k])
	}
	return result
}

// ParseEnvPairs parses KEY=VALUE strings into env. Later pairs win.
func ParseEnvPairs(env map[string]string, pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return &InvalidEnvPairError{Pair: pair}
		}
		env[key] = value
	}
	return nil
}

// mergeEnviron overlays env onto a KEY=VALUE list such as os.Environ().
func mergeEnviron(base []string, env map[string]string) []string {
	merged := make(map[string]string, len(base)+len(env))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	maps.Copy(merged, env)
	return EnvToSlice(merged)
}
