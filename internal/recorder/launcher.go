// Package recorder launches the Keploy recorder in record mode and keeps
// track of the processes it started.
//
// Start returns as soon as the process is running; it never waits for the
// recording to finish. Exits are published as ExitEvents on the launcher's
// event channel and on each Recording handle.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/config"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

// MsgRecordingStarted prefixes the success message of Start.
const MsgRecordingStarted = "Recording Started"

const (
	eventBacklog = 16
	waitDelay    = 2 * time.Second
)

// ShutdownMode selects what Shutdown does with live recordings.
type ShutdownMode int

const (
	// Terminate sends SIGTERM to every recording and SIGKILL once the
	// shutdown context expires.
	Terminate ShutdownMode = iota
	// Detach forgets the recordings and leaves them running.
	Detach
)

// Request is one record invocation.
type Request struct {
	Command  string
	FilePath string
}

// Config configures a Launcher.
type Config struct {
	// BinaryPath is the installed recorder executable.
	BinaryPath string
	// ExtraArgs are appended after the record arguments.
	ExtraArgs []string
	// WorkDir overrides the recorder's working directory, which defaults
	// to the directory of the request's file.
	WorkDir string
	// LogDir receives one <id>.log per recording; empty discards output.
	LogDir string
	Logger config.Logger
}

// Launcher starts recordings and tracks them until they exit.
type Launcher struct {
	cfg    Config
	logger config.Logger

	mu         sync.Mutex
	recordings map[string]*Recording
	events     chan ExitEvent
}

// NewLauncher creates a launcher for cfg.
func NewLauncher(cfg Config) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Launcher{
		cfg:        cfg,
		logger:     logger,
		recordings: make(map[string]*Recording),
		events:     make(chan ExitEvent, eventBacklog),
	}
}

// Events delivers an ExitEvent for every recording that exits. Events are
// dropped when nobody keeps up with the channel; Recording.Exit always has
// the event.
func (l *Launcher) Events() <-chan ExitEvent {
	return l.events
}

// Start spawns `<binary> record --command <cmd> --path <file>` and returns
// once the process has started. The process outlives ctx.
func (l *Launcher) Start(ctx context.Context, req Request) (*Recording, outcome.Result) {
	rec, err := l.start(ctx, req)
	if err != nil {
		l.logger.Error("recording failed to start", "command", req.Command, "path", req.FilePath, "error", err)
		return nil, outcome.Failure(outcome.KindSpawn, err)
	}
	return rec, outcome.Successf("%s (pid %d)", MsgRecordingStarted, rec.PID)
}

func (l *Launcher) start(ctx context.Context, req Request) (*Recording, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, outcome.Errorf(outcome.KindInvalidInput, "command cannot be empty")
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, outcome.Errorf(outcome.KindInvalidInput, "file path cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, outcome.Wrap(outcome.KindCanceled, "", err)
	}
	if err := checkExecutable(l.cfg.BinaryPath); err != nil {
		return nil, err
	}

	filePath, err := filepath.Abs(req.FilePath)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindInvalidInput, "resolve file path", err)
	}

	id := uuid.NewString()
	args := append([]string{"record", "--command", req.Command, "--path", filePath}, l.cfg.ExtraArgs...)

	cmd := exec.Command(l.cfg.BinaryPath, args...)
	cmd.Dir = l.cfg.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(filePath)
	}
	setProcessGroup(cmd)
	// Children that inherit stderr must not block the exit event forever.
	cmd.WaitDelay = waitDelay

	logFile, logPath := l.openLog(id)
	tail := newTailBuffer(stderrTailSize)
	var out io.Writer = io.Discard
	if logFile != nil {
		out = logFile
	}
	cmd.Stdout = out
	cmd.Stderr = io.MultiWriter(out, tail)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, outcome.Wrap(outcome.KindSpawn, "start recorder", err)
	}

	rec := &Recording{
		ID:        id,
		PID:       cmd.Process.Pid,
		Command:   req.Command,
		FilePath:  filePath,
		LogPath:   logPath,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}

	l.mu.Lock()
	l.recordings[id] = rec
	l.mu.Unlock()

	l.logger.Info("recording started", "id", id, "pid", rec.PID, "command", req.Command, "path", filePath, "log", logPath)

	go l.wait(cmd, rec, logFile, tail)
	return rec, nil
}

// wait reaps the recorder and publishes its exit.
func (l *Launcher) wait(cmd *exec.Cmd, rec *Recording, logFile *os.File, tail *tailBuffer) {
	err := cmd.Wait()
	if logFile != nil {
		logFile.Close()
	}

	ev := ExitEvent{
		ID:         rec.ID,
		PID:        rec.PID,
		ExitCode:   -1,
		StderrTail: tail.String(),
		ExitedAt:   time.Now(),
	}
	if cmd.ProcessState != nil {
		ev.ExitCode = cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		ev.Err = err
	}

	l.mu.Lock()
	delete(l.recordings, rec.ID)
	l.mu.Unlock()

	rec.finish(ev)

	if ev.ExitCode == 0 {
		l.logger.Info("recording exited", "id", rec.ID, "pid", rec.PID)
	} else {
		l.logger.Warn("recording exited", "id", rec.ID, "pid", rec.PID, "code", ev.ExitCode, "stderr", lastLine(ev.StderrTail))
	}

	select {
	case l.events <- ev:
	default:
		l.logger.Debug("exit event dropped", "id", rec.ID)
	}
}

// openLog creates LogDir/<id>.log. Logging is best effort: on failure the
// recorder's output is discarded.
func (l *Launcher) openLog(id string) (*os.File, string) {
	if l.cfg.LogDir == "" {
		return nil, ""
	}
	if err := os.MkdirAll(l.cfg.LogDir, 0755); err != nil {
		l.logger.Warn("cannot create recording log dir", "dir", l.cfg.LogDir, "error", err)
		return nil, ""
	}
	path := filepath.Join(l.cfg.LogDir, id+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.logger.Warn("cannot create recording log", "path", path, "error", err)
		return nil, ""
	}
	return f, path
}

// List returns the live recordings, oldest first.
func (l *Launcher) List() []*Recording {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Recording, 0, len(l.recordings))
	for _, rec := range l.recordings {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Get returns the live recording with id.
func (l *Launcher) Get(id string) (*Recording, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recordings[id]
	return rec, ok
}

// Shutdown ends tracking of all live recordings. In Terminate mode it
// signals each process group and waits for the exits, escalating to
// SIGKILL when ctx is done. In Detach mode the processes keep running.
func (l *Launcher) Shutdown(ctx context.Context, mode ShutdownMode) error {
	live := l.List()

	if mode == Detach {
		l.mu.Lock()
		for _, rec := range live {
			delete(l.recordings, rec.ID)
		}
		l.mu.Unlock()
		for _, rec := range live {
			l.logger.Info("recording detached", "id", rec.ID, "pid", rec.PID)
		}
		return nil
	}

	var errs []error
	for _, rec := range live {
		if err := terminateGroup(rec.PID); err != nil {
			errs = append(errs, fmt.Errorf("terminate pid %d: %w", rec.PID, err))
		}
	}

	for _, rec := range live {
		select {
		case <-rec.Done():
			continue
		case <-ctx.Done():
		}
		l.logger.Warn("recording ignored SIGTERM, killing", "id", rec.ID, "pid", rec.PID)
		if err := killGroup(rec.PID); err != nil {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", rec.PID, err))
			continue
		}
		<-rec.Done()
	}

	return errors.Join(errs...)
}

// checkExecutable classifies a missing or non-executable recorder binary.
func checkExecutable(path string) error {
	if path == "" {
		return outcome.Errorf(outcome.KindSpawn, "keploy binary not found: no path configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return outcome.Errorf(outcome.KindSpawn, "keploy binary not found at %s, run update first", path)
		}
		return outcome.Wrap(outcome.KindSpawn, "stat keploy binary", err)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
		return outcome.Errorf(outcome.KindSpawn, "keploy binary at %s is not executable", path)
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
