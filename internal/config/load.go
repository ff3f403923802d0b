package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/platform"
)

// LoadOptions controls Load. Zero values fall back to the default
// directories and the real platform detector.
type LoadOptions struct {
	ConfigDir  string
	DataDir    string
	ConfigFile string // explicit config file; skips probing ConfigDir
	Detector   platform.Detector
}

// Loaded is a resolved configuration plus where it came from.
type Loaded struct {
	*Config
	ConfigDir string
	DataDir   string
	Source    string // config file used, or "" for defaults only
}

// Load resolves the layered configuration and validates it.
func Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
	}

	detector := opts.Detector
	if detector == nil {
		detector = platform.NewDetector()
	}

	cfg := Default(dataDir)

	source := opts.ConfigFile
	if source == "" {
		source = FindConfigFile(configDir)
	}
	if source != "" {
		if err := ParseFile(ctx, source, NewParser(detector), cfg); err != nil {
			return nil, err
		}
	}

	vars, err := environment(filepath.Join(configDir, DotEnvFile))
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, vars); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Loaded{
		Config:    cfg,
		ConfigDir: configDir,
		DataDir:   dataDir,
		Source:    source,
	}, nil
}
