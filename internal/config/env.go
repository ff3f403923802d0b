package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// environment merges the optional .env file at dotenvPath with the process
// environment. Process variables win, matching godotenv.Load semantics
// without mutating the process environment.
func environment(dotenvPath string) (map[string]string, error) {
	vars := map[string]string{}

	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			fileVars, err := godotenv.Read(dotenvPath)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", dotenvPath, err)
			}
			for k, v := range fileVars {
				vars[k] = v
			}
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	return vars, nil
}

// applyEnv overlays HEYKEPLOY_* variables from vars onto cfg. Unset
// variables leave cfg untouched.
func applyEnv(cfg *Config, vars map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: vars,
	}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
