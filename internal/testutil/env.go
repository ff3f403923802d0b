// Package testutil provides utilities for testing heykeploy in isolation.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const envPrefix = "HEYKEPLOY_"

// Dirs are the isolated directories created by SetupTestEnv.
type Dirs struct {
	Config  string
	Data    string
	Install string
}

// ClearEnv unsets every HEYKEPLOY_* variable for the duration of the test.
func ClearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, envPrefix) {
			// Setenv registers the restore; Unsetenv makes it truly unset.
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

// SetupTestEnv points heykeploy at temporary directories so tests never
// touch the user's configuration, installed recorder or container runtime.
// Cleanup is handled by t.TempDir.
func SetupTestEnv(t *testing.T) Dirs {
	t.Helper()
	ClearEnv(t)

	tmpDir := t.TempDir()
	dirs := Dirs{
		Config:  filepath.Join(tmpDir, "config"),
		Data:    filepath.Join(tmpDir, "data"),
		Install: filepath.Join(tmpDir, "bin"),
	}

	t.Setenv(envPrefix+"CONFIG_DIR", dirs.Config)
	t.Setenv(envPrefix+"DATA_DIR", dirs.Data)
	t.Setenv(envPrefix+"INSTALL_DIR", dirs.Install)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg-config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "xdg-data"))

	// Container operations must fail fast instead of reaching a real daemon.
	t.Setenv(envPrefix+"CONTAINER_RUNTIME", filepath.Join(tmpDir, "no-runtime"))

	for _, dir := range []string{dirs.Config, dirs.Data} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("failed to create test directory %s: %v", dir, err)
		}
	}
	return dirs
}
