package config

import (
	"os"
	"slices"
)

// EnabledServices returns the IDs of enabled services, sorted so services
// are always registered in the same order.
func EnabledServices(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Services))
	for id, t := range cfg.Services {
		if t.Enabled {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Secrets returns the non-empty values of the variables named in
// security.secret_env.
func Secrets(cfg *Config) []string {
	var out []string
	for _, name := range cfg.Security.SecretEnv {
		if v := os.Getenv(name); v != "" {
			out = append(out, v)
		}
	}
	return out
}
