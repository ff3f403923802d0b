package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/binary"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/config"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/container"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/output"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/platform"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/release"
)

// errReported marks a failure that has already been shown to the user.
var errReported = errors.New("operation failed")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configDir  string
	dataDir    string
	configFile string
	installDir string
	logLevel   string
	quiet      bool
}

// app holds the streams, resolved configuration and shared services of one
// CLI invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	flags globalFlags

	cfg    *config.Loaded
	logger *slog.Logger
	closer io.Closer
	notify *output.Notifier

	// Overridable in tests.
	detector     platform.Detector
	httpClient   *http.Client
	apiBase      string
	downloadBase string
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		detector: platform.NewDetector(),
	}
}

// load resolves configuration and logging. Flags win over every other layer.
func (a *app) load(ctx context.Context) error {
	cfg, err := config.Load(ctx, config.LoadOptions{
		ConfigDir:  a.flags.configDir,
		DataDir:    a.flags.dataDir,
		ConfigFile: a.flags.configFile,
		Detector:   a.detector,
	})
	if err != nil {
		return err
	}

	if a.flags.installDir != "" {
		cfg.InstallDir = a.flags.installDir
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := config.NewLogger(cfg.Log, a.stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.closer = closer
	a.notify = output.NewNotifier(a.stderr, a.flags.quiet)

	logger.Debug("configuration loaded", "source", cfg.Source, "install_dir", cfg.InstallDir)
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
		a.closer = nil
	}
}

func (a *app) binaryPath() string {
	return filepath.Join(a.cfg.InstallDir, binary.BinaryName)
}

func (a *app) runtime() *container.Runtime {
	return container.New(a.cfg.Container.Runtime, a.logger)
}

func (a *app) manager() (*binary.Manager, error) {
	return binary.NewManager(binary.Config{
		InstallDir: a.cfg.InstallDir,
		CacheDir:   filepath.Join(a.cfg.DataDir, "cache"),
		Release:    a.cfg.Release,
		Puller:     a.runtime(),
		Logger:     a.logger,
		HTTPClient: a.httpClient,
	})
}

func (a *app) launcher() *recorder.Launcher {
	return recorder.NewLauncher(recorder.Config{
		BinaryPath: a.binaryPath(),
		ExtraArgs:  a.cfg.Record.ExtraArgs,
		WorkDir:    a.cfg.Record.WorkDir,
		LogDir:     a.cfg.Record.LogDir,
		Logger:     a.logger,
	})
}

func (a *app) releases() *release.Client {
	c := release.NewClient(a.httpClient)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c = c.WithToken(token)
	}
	if a.apiBase != "" {
		c = c.WithBaseURLs(a.apiBase, a.downloadBase)
	}
	return c
}

// archiveSource resolves the release archive to install: an explicit URL
// wins, then the configured URL, then the platform's latest release asset.
// The release asset is checked against the release's checksums.txt unless
// skip_checksum is set.
func (a *app) archiveSource(ctx context.Context, url string) (binary.Source, error) {
	src := binary.Source{
		URL:          url,
		ChecksumURL:  a.cfg.Release.ChecksumURL,
		SignatureURL: a.cfg.Release.SignatureURL,
		BundleURL:    a.cfg.Release.BundleURL,
	}
	if src.URL == "" {
		src.URL = a.cfg.Release.URL
	}
	if src.URL != "" {
		return src, nil
	}

	info, err := a.detector.Detect(ctx)
	if err != nil {
		return src, fmt.Errorf("detect platform: %w", err)
	}
	if !info.SupportsNativeRecorder() {
		return src, fmt.Errorf("no native keploy release for %s/%s, use --docker", info.OS, info.Arch)
	}
	releases := a.releases()
	src.URL = releases.AssetURL(*info)
	if src.ChecksumURL == "" && !a.cfg.Release.SkipChecksum {
		src.ChecksumURL = releases.ChecksumURL()
	}
	return src, nil
}
