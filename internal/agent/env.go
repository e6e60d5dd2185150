package agent

import (
	"os"
	"sort"
	"strings"
)

// Environment variables every launched agent receives
const (
	EnvSystemPrompt = "ADA_SYSTEM_PROMPT"
	EnvSessionID    = "ADA_SESSION_ID"
	EnvRole         = "ADA_ROLE"
)

// launchEnv returns the current environment with overrides applied.
// Existing keys are replaced in place, new keys appended in sorted order.
func launchEnv(overrides map[string]string) []string {
	return mergeEnv(os.Environ(), overrides)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := append([]string(nil), base...)
	seen := make(map[string]bool, len(overrides))

	for i, kv := range env {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if v, override := overrides[key]; override {
			env[i] = key + "=" + v
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
