// Package container drives a Docker-compatible container runtime for the
// containerized recorder variant.
package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/config"
)

// ErrRuntimeNotFound is returned when the runtime executable is not on PATH.
var ErrRuntimeNotFound = errors.New("container runtime not found")

// maxOutput bounds how much runtime output is quoted in errors.
const maxOutput = 400

// Runtime invokes a container runtime CLI such as docker or podman.
type Runtime struct {
	bin    string
	logger config.Logger
}

// New returns a Runtime for bin ("docker" when empty).
func New(bin string, logger config.Logger) *Runtime {
	if bin == "" {
		bin = config.DefaultRuntime
	}
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Runtime{bin: bin, logger: logger}
}

// Name returns the runtime executable name.
func (r *Runtime) Name() string {
	return r.bin
}

// Path resolves the runtime executable on PATH.
func (r *Runtime) Path() (string, error) {
	path, err := exec.LookPath(r.bin)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, r.bin)
	}
	return path, nil
}

// Pull pulls or refreshes image. Success is the runtime's zero exit code.
func (r *Runtime) Pull(ctx context.Context, image string) error {
	if strings.TrimSpace(image) == "" {
		return fmt.Errorf("image cannot be empty")
	}

	r.logger.Info("pulling image", "runtime", r.bin, "image", image)
	out, err := r.run(ctx, "pull", image)
	if err != nil {
		return err
	}
	r.logger.Debug("pull finished", "image", image, "output", lastLine(out))
	return nil
}

// ImageID returns the local ID of image, or an error if it is not present.
func (r *Runtime) ImageID(ctx context.Context, image string) (string, error) {
	out, err := r.run(ctx, "image", "inspect", "--format", "{{.Id}}", image)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Runtime) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), translateError(r.bin, args, err, string(out))
	}
	return string(out), nil
}

// translateError turns an exec failure into a user-facing error that keeps
// the cause in the chain.
func translateError(bin string, args []string, err error, output string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s interrupted: %w", bin, args[0], err)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRuntimeNotFound, bin)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(output)
		if len(msg) > maxOutput {
			msg = "..." + msg[len(msg)-maxOutput:]
		}
		if msg == "" {
			return fmt.Errorf("%s %s exited with code %d: %w", bin, args[0], exitErr.ExitCode(), err)
		}
		return fmt.Errorf("%s %s exited with code %d: %s: %w", bin, args[0], exitErr.ExitCode(), msg, err)
	}

	return fmt.Errorf("run %s %s: %w", bin, args[0], err)
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}
