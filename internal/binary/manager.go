package binary

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/config"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

const (
	// MsgBinaryUpdated is the success message of an archive update.
	MsgBinaryUpdated = "Keploy binary updated!"
	// MsgImageUpdated is the success message of a container image update.
	MsgImageUpdated = "Keploy Docker updated!"

	smokeTestTimeout = 30 * time.Second
	opUpdate         = "update"
)

// updates collapses concurrent updates of the same installation path or
// image within this process. Followers wait for and share the leader's result.
var updates singleflight.Group

// ImagePuller pulls container images. *container.Runtime implements it.
type ImagePuller interface {
	Pull(ctx context.Context, image string) error
	ImageID(ctx context.Context, image string) (string, error)
}

// Manager orchestrates binary download, verification, and installation
type Manager struct {
	installDir string
	cacheDir   string
	release    config.ReleaseConfig
	puller     ImagePuller
	logger     config.Logger
	downloader *Downloader
	verifier   *Verifier
	extractor  *Extractor
}

// Config holds configuration for the binary manager
type Config struct {
	// InstallDir holds the installed binary and the update lock.
	InstallDir string
	// CacheDir is where per-update download directories are created
	// (default: the system temp dir).
	CacheDir string
	// Release carries verification material and HTTP limits.
	Release config.ReleaseConfig
	// Puller serves container updates; nil disables them.
	Puller ImagePuller
	Logger config.Logger
	// HTTPClient overrides the download client.
	HTTPClient *http.Client
}

// NewManager creates a new binary manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.InstallDir == "" {
		return nil, fmt.Errorf("InstallDir is required")
	}
	if !filepath.IsAbs(cfg.InstallDir) {
		return nil, fmt.Errorf("InstallDir must be absolute: %s", cfg.InstallDir)
	}

	timeout, err := cfg.Release.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = config.NopLogger()
	}

	return &Manager{
		installDir: cfg.InstallDir,
		cacheDir:   cfg.CacheDir,
		release:    cfg.Release,
		puller:     cfg.Puller,
		logger:     logger,
		downloader: NewDownloader(client, cfg.Release.Retries),
		verifier: NewVerifier(cfg.Release.Keyring, NewSigstoreVerifier(
			cfg.Release.CertIdentity, cfg.Release.CertIssuer, cfg.Release.TrustedRoot)),
		extractor: NewExtractor(),
	}, nil
}

// BinaryPath returns the fixed installation path of the recorder binary.
func (m *Manager) BinaryPath() string {
	return filepath.Join(m.installDir, BinaryName)
}

// IsInstalled checks if the binary is installed and executable
func (m *Manager) IsInstalled() (bool, error) {
	info, err := os.Stat(m.BinaryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat binary: %w", err)
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}
	if info.Mode().Perm()&0111 == 0 {
		return false, nil
	}

	return true, nil
}

// InstalledVersion runs the installed binary with --version and returns
// the first line of its output.
func (m *Manager) InstalledVersion(ctx context.Context) (string, error) {
	installed, err := m.IsInstalled()
	if err != nil {
		return "", err
	}
	if !installed {
		return "", fmt.Errorf("%s is not installed", BinaryName)
	}
	return runVersion(ctx, m.BinaryPath())
}

// Update installs or refreshes the recorder from src. It never returns an
// error: every failure is reported as a failed Result.
func (m *Manager) Update(ctx context.Context, src Source, report outcome.Reporter) outcome.Result {
	key := "archive:" + m.BinaryPath()
	if src.Container {
		key = "container:" + src.Image
	}

	ch := updates.DoChan(key, func() (interface{}, error) {
		return m.update(ctx, src, report), nil
	})

	select {
	case res := <-ch:
		result, ok := res.Val.(outcome.Result)
		if !ok {
			return outcome.Failure(outcome.KindArchive, fmt.Errorf("update returned no result"))
		}
		if res.Shared {
			m.logger.Debug("joined in-flight update", "key", key)
		}
		return result
	case <-ctx.Done():
		return outcome.Failure(outcome.KindCanceled, ctx.Err())
	}
}

func (m *Manager) update(ctx context.Context, src Source, report outcome.Reporter) (result outcome.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = outcome.Failure(outcome.KindArchive, fmt.Errorf("update panicked: %v", r))
		}
	}()

	if src.Container {
		if err := m.updateImage(ctx, src.Image, report); err != nil {
			m.logger.Error("image update failed", "image", src.Image, "error", err)
			return outcome.Failure(outcome.KindNetwork, err)
		}
		return outcome.Success(MsgImageUpdated)
	}

	res, err := m.Install(ctx, src, report)
	if err != nil {
		m.logger.Error("binary update failed", "source", src.String(), "error", err)
		return outcome.Failure(outcome.KindArchive, err)
	}

	m.logger.Info("binary updated",
		"path", res.Path,
		"size", res.Size,
		"verified", fmt.Sprint(res.Verified),
		"duration", res.Duration.String(),
	)
	return outcome.Success(MsgBinaryUpdated)
}

// Install downloads, verifies, extracts, and installs the recorder from an
// archive source. The installed path is only touched by the final rename.
func (m *Manager) Install(ctx context.Context, src Source, report outcome.Reporter) (*InstallResult, error) {
	start := time.Now()

	if strings.TrimSpace(src.URL) == "" {
		return nil, outcome.Errorf(outcome.KindInvalidInput, "source URL cannot be empty")
	}
	for _, raw := range []string{src.URL, src.ChecksumURL, src.SignatureURL, src.BundleURL} {
		if raw == "" {
			continue
		}
		if err := config.ValidateURL(raw, m.release.AllowInsecure); err != nil {
			return nil, outcome.Wrap(outcome.KindInvalidInput, "", err)
		}
	}

	lock, err := AcquireLock(ctx, m.installDir)
	if err != nil {
		if errors.Is(err, ErrLockExists) {
			return nil, outcome.Wrap(outcome.KindBusy, "", fmt.Errorf("%w: %s", outcome.ErrBusy, m.installDir))
		}
		return nil, outcome.Wrap(outcome.KindPermission, "acquire install lock", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			m.logger.Warn("failed to release install lock", "error", err)
		}
	}()

	removed, err := removeTempBinaries(m.installDir, BinaryName)
	if err != nil {
		m.logger.Warn("cannot remove leftover temp binaries", "dir", m.installDir, "error", err)
	}
	if len(removed) > 0 {
		m.logger.Info("removed leftover temp binaries", "files", strings.Join(removed, ","))
	}

	if m.cacheDir != "" {
		if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
			return nil, outcome.Wrap(outcome.KindPermission, "create cache dir", err)
		}
	}
	workDir, err := os.MkdirTemp(m.cacheDir, "heykeploy-update-*")
	if err != nil {
		return nil, outcome.Wrap(outcome.KindPermission, "create download dir", err)
	}
	defer os.RemoveAll(workDir)

	report.Report(opUpdate, "download", "Downloading "+src.URL)
	arts, err := m.downloader.downloadArtifacts(ctx, src, workDir)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindNetwork, "", err)
	}

	report.Report(opUpdate, "verify", "Verifying archive")
	methods, err := m.verifier.Verify(ctx, arts)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindVerification, "", err)
	}
	if len(methods) == 0 {
		m.logger.Warn("no verification configured, installing unverified archive", "url", src.URL)
	}

	report.Report(opUpdate, "extract", "Extracting "+BinaryName)
	tmpPath, err := m.extractor.ExtractBinary(arts.archive, m.installDir, BinaryName)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindArchive, "extract binary", err)
	}
	installed := false
	defer func() {
		if !installed {
			os.Remove(tmpPath)
		}
	}()

	if !m.release.SkipSmokeTest {
		report.Report(opUpdate, "smoke-test", "Checking the new binary runs")
		if _, err := runVersion(ctx, tmpPath); err != nil {
			return nil, outcome.Wrap(outcome.KindArchive, "smoke test", err)
		}
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindPermission, "stat new binary", err)
	}

	report.Report(opUpdate, "install", "Installing to "+m.BinaryPath())
	if err := os.Rename(tmpPath, m.BinaryPath()); err != nil {
		return nil, outcome.Wrap(outcome.KindPermission, "install binary", err)
	}
	installed = true

	return &InstallResult{
		Path:     m.BinaryPath(),
		Size:     info.Size(),
		Verified: methods,
		Duration: time.Since(start),
	}, nil
}

func (m *Manager) updateImage(ctx context.Context, image string, report outcome.Reporter) error {
	if strings.TrimSpace(image) == "" {
		return outcome.Errorf(outcome.KindInvalidInput, "image cannot be empty")
	}
	if m.puller == nil {
		return outcome.Errorf(outcome.KindInvalidInput, "container updates are not configured")
	}

	report.Report(opUpdate, "pull", "Pulling "+image)
	if err := m.puller.Pull(ctx, image); err != nil {
		return outcome.Wrap(outcome.KindNetwork, "pull image", err)
	}

	id, err := m.puller.ImageID(ctx, image)
	if err != nil {
		m.logger.Warn("pulled image not inspectable", "image", image, "error", err)
		return nil
	}
	m.logger.Info("image updated", "image", image, "id", id)
	return nil
}

// runVersion executes path --version and returns the first output line.
func runVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, smokeTestTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return "", fmt.Errorf("%s --version: %w: %s", filepath.Base(path), err, msg)
		}
		return "", fmt.Errorf("%s --version: %w", filepath.Base(path), err)
	}

	line, _, _ := bufio.NewReader(&out).ReadLine()
	return strings.TrimSpace(string(line)), nil
}
