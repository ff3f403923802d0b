package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the complete heykeploy configuration.
type Config struct {
	// InstallDir is where the recorder binary lives (the installation path's directory).
	InstallDir string `yaml:"install_dir,omitempty" toml:"install_dir,omitempty" json:"install_dir,omitempty" env:"INSTALL_DIR"`

	Release   ReleaseConfig   `yaml:"release,omitempty" toml:"release,omitempty" json:"release" envPrefix:"RELEASE_"`
	Container ContainerConfig `yaml:"container,omitempty" toml:"container,omitempty" json:"container" envPrefix:"CONTAINER_"`
	Record    RecordConfig    `yaml:"record,omitempty" toml:"record,omitempty" json:"record" envPrefix:"RECORD_"`
	Log       LogConfig       `yaml:"log,omitempty" toml:"log,omitempty" json:"log" envPrefix:"LOG_"`
	Bridge    BridgeConfig    `yaml:"bridge,omitempty" toml:"bridge,omitempty" json:"bridge" envPrefix:"BRIDGE_"`
}

// ReleaseConfig controls where the recorder archive comes from and how it
// is verified.
type ReleaseConfig struct {
	// URL overrides the platform-specific release asset URL.
	URL string `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty" env:"URL"`
	// ChecksumURL points at a "sha256  filename" checksum file.
	ChecksumURL string `yaml:"checksum_url,omitempty" toml:"checksum_url,omitempty" json:"checksum_url,omitempty" env:"CHECKSUM_URL"`
	// SignatureURL points at a detached GPG signature of the archive.
	SignatureURL string `yaml:"signature_url,omitempty" toml:"signature_url,omitempty" json:"signature_url,omitempty" env:"SIGNATURE_URL"`
	// Keyring is the path to the armored public keyring used for SignatureURL.
	Keyring string `yaml:"keyring,omitempty" toml:"keyring,omitempty" json:"keyring,omitempty" env:"KEYRING"`
	// BundleURL points at a cosign (sigstore) bundle for the archive.
	BundleURL string `yaml:"bundle_url,omitempty" toml:"bundle_url,omitempty" json:"bundle_url,omitempty" env:"BUNDLE_URL"`
	// CertIdentity is a regular expression the bundle's certificate SAN must match.
	CertIdentity string `yaml:"cert_identity,omitempty" toml:"cert_identity,omitempty" json:"cert_identity,omitempty" env:"CERT_IDENTITY"`
	// CertIssuer is the OIDC issuer the bundle's certificate must carry.
	CertIssuer string `yaml:"cert_issuer,omitempty" toml:"cert_issuer,omitempty" json:"cert_issuer,omitempty" env:"CERT_ISSUER"`
	// TrustedRoot is a sigstore trusted_root.json; empty fetches the public-good root.
	TrustedRoot string `yaml:"trusted_root,omitempty" toml:"trusted_root,omitempty" json:"trusted_root,omitempty" env:"TRUSTED_ROOT"`

	Timeout       string `yaml:"timeout,omitempty" toml:"timeout,omitempty" json:"timeout,omitempty" env:"TIMEOUT"`
	Retries       int    `yaml:"retries,omitempty" toml:"retries,omitempty" json:"retries,omitempty" env:"RETRIES"`
	AllowInsecure bool   `yaml:"allow_insecure,omitempty" toml:"allow_insecure,omitempty" json:"allow_insecure,omitempty" env:"ALLOW_INSECURE"`
	SkipSmokeTest bool   `yaml:"skip_smoke_test,omitempty" toml:"skip_smoke_test,omitempty" json:"skip_smoke_test,omitempty" env:"SKIP_SMOKE_TEST"`
	// SkipChecksum stops the published checksums.txt from being verified
	// when the archive URL is the default release asset.
	SkipChecksum bool `yaml:"skip_checksum,omitempty" toml:"skip_checksum,omitempty" json:"skip_checksum,omitempty" env:"SKIP_CHECKSUM"`
}

// ContainerConfig selects the container runtime and recorder image.
type ContainerConfig struct {
	Runtime string `yaml:"runtime,omitempty" toml:"runtime,omitempty" json:"runtime,omitempty" env:"RUNTIME"`
	Image   string `yaml:"image,omitempty" toml:"image,omitempty" json:"image,omitempty" env:"IMAGE"`
}

// RecordConfig controls how recordings are launched.
type RecordConfig struct {
	ExtraArgs     []string `yaml:"extra_args,omitempty" toml:"extra_args,omitempty" json:"extra_args,omitempty" env:"EXTRA_ARGS"`
	WorkDir       string   `yaml:"work_dir,omitempty" toml:"work_dir,omitempty" json:"work_dir,omitempty" env:"WORK_DIR"`
	LogDir        string   `yaml:"log_dir,omitempty" toml:"log_dir,omitempty" json:"log_dir,omitempty" env:"LOG_DIR"`
	ShutdownGrace string   `yaml:"shutdown_grace,omitempty" toml:"shutdown_grace,omitempty" json:"shutdown_grace,omitempty" env:"SHUTDOWN_GRACE"`
}

// LogConfig controls heykeploy's own logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty" env:"LEVEL"`
	File  string `yaml:"file,omitempty" toml:"file,omitempty" json:"file,omitempty" env:"FILE"`
}

// BridgeConfig controls the editor bridge.
type BridgeConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" json:"listen,omitempty" env:"LISTEN"`
}

// Default returns the built-in configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		InstallDir: filepath.Join(dataDir, "bin"),
		Release: ReleaseConfig{
			Timeout: DefaultTimeout,
		},
		Container: ContainerConfig{
			Runtime: DefaultRuntime,
			Image:   DefaultImage,
		},
		Record: RecordConfig{
			LogDir:        filepath.Join(dataDir, "logs"),
			ShutdownGrace: DefaultGrace,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Bridge: BridgeConfig{
			Listen: DefaultListen,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.InstallDir == "" {
		return fmt.Errorf("install_dir cannot be empty")
	}
	if !filepath.IsAbs(c.InstallDir) {
		return fmt.Errorf("install_dir must be absolute: %s", c.InstallDir)
	}

	if err := c.Release.Validate(); err != nil {
		return fmt.Errorf("release: %w", err)
	}

	if strings.TrimSpace(c.Container.Runtime) == "" {
		return fmt.Errorf("container.runtime cannot be empty")
	}
	if strings.TrimSpace(c.Container.Image) == "" {
		return fmt.Errorf("container.image cannot be empty")
	}

	if _, err := c.Record.GraceDuration(); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// Validate checks release URLs and limits.
func (r *ReleaseConfig) Validate() error {
	for name, raw := range map[string]string{
		"url":           r.URL,
		"checksum_url":  r.ChecksumURL,
		"signature_url": r.SignatureURL,
		"bundle_url":    r.BundleURL,
	} {
		if raw == "" {
			continue
		}
		if err := ValidateURL(raw, r.AllowInsecure); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if r.SignatureURL != "" && r.Keyring == "" {
		return fmt.Errorf("signature_url requires keyring")
	}
	if r.BundleURL != "" && (r.CertIdentity == "" || r.CertIssuer == "") {
		return fmt.Errorf("bundle_url requires cert_identity and cert_issuer")
	}
	if r.Retries < 0 {
		return fmt.Errorf("retries cannot be negative: %d", r.Retries)
	}
	if _, err := r.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout. An empty value means DefaultTimeout.
func (r *ReleaseConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", r.Timeout, DefaultTimeout)
}

// GraceDuration parses ShutdownGrace. An empty value means DefaultGrace.
func (r *RecordConfig) GraceDuration() (time.Duration, error) {
	return parseDuration("shutdown_grace", r.ShutdownGrace, DefaultGrace)
}

func parseDuration(field, raw, fallback string) (time.Duration, error) {
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive: %s", field, raw)
	}
	return d, nil
}

// ValidateURL requires an absolute https URL, or http when allowInsecure.
func ValidateURL(raw string, allowInsecure bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must be absolute: %s", raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if allowInsecure {
			return nil
		}
		return fmt.Errorf("refusing non-HTTPS URL: %s", raw)
	default:
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

// DefaultConfigDir returns $HEYKEPLOY_CONFIG_DIR, $XDG_CONFIG_HOME/heykeploy
// or ~/.config/heykeploy.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultDataDir returns $HEYKEPLOY_DATA_DIR, $XDG_DATA_HOME/heykeploy or
// ~/.local/share/heykeploy.
func DefaultDataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}
