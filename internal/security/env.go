package security

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// sensitiveEnvPrefixes are environment variable prefixes that are stripped
// from subprocess environments to prevent secret leakage.
// For variables that require exact matching only, see sensitiveEnvExact.
var sensitiveEnvPrefixes = []string{
	"OPENAI_",
	"ANTHROPIC_",
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"NPM_TOKEN",
	"NODE_AUTH_TOKEN",
	"SMTP_PASSWORD",
}

// sensitiveEnvExact are environment variable names that are stripped exactly.
// DATABASE_URL and DB_PASSWORD are exact-only so DB_PORT or DATABASE_HOST
// survive.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"REDIS_PASSWORD":        {},
}

// ErrInvalidEnvKey is returned for an override key that cannot be placed
// in a process environment.
var ErrInvalidEnvKey = errors.New("invalid environment variable name")

// SanitizedEnv returns a copy of os.Environ() with sensitive variables
// removed. Any of the given secret values (8 characters or more) found in
// the remaining values are replaced with RedactPlaceholder.
func SanitizedEnv(secrets []string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env))

	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}

		sanitized := entry
		for _, secret := range secrets {
			if len(secret) >= 8 && strings.Contains(sanitized, secret) {
				sanitized = strings.ReplaceAll(sanitized, secret, RedactPlaceholder)
			}
		}
		result = append(result, sanitized)
	}

	return result
}

// MergeEnv overlays overrides on base. A key already present in base is
// replaced in place; new keys are appended in sorted order so the result
// is deterministic.
func MergeEnv(base []string, overrides map[string]string) ([]string, error) {
	for key := range overrides {
		if err := ValidateEnvKey(key); err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]struct{}, len(overrides))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if v, ok := overrides[key]; ok {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, key+"="+v)
			continue
		}
		result = append(result, entry)
	}

	added := make([]string, 0, len(overrides))
	for key := range overrides {
		if _, ok := seen[key]; !ok {
			added = append(added, key)
		}
	}
	slices.Sort(added)
	for _, key := range added {
		result = append(result, key+"="+overrides[key])
	}
	return result, nil
}

// ValidateEnvKey rejects empty keys and keys containing '=' or NUL.
func ValidateEnvKey(key string) error {
	if key == "" || strings.ContainsAny(key, "=\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidEnvKey, key)
	}
	return nil
}

// isSensitiveEnvVar checks if an environment variable name matches
// a known sensitive prefix or exact name.
func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)

	if _, ok := sensitiveEnvExact[upper]; ok {
		return true
	}

	for _, prefix := range sensitiveEnvPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}

	return false
}
