package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ExitEvent reports the end of a recording.
type ExitEvent struct {
	ID       string
	PID      int
	ExitCode int // -1 when the process was killed by a signal
	Err      error
	// StderrTail holds the last few KiB the recorder wrote to stderr.
	StderrTail string
	ExitedAt   time.Time
}

// Recording is the launcher's handle on one spawned recorder process.
type Recording struct {
	ID        string
	PID       int
	Command   string
	FilePath  string
	LogPath   string
	StartedAt time.Time

	done chan struct{}
	mu   sync.Mutex
	exit *ExitEvent
}

// Done is closed once the recorder process has exited.
func (r *Recording) Done() <-chan struct{} {
	return r.done
}

// Exit returns the exit event, and false while the process is still running.
func (r *Recording) Exit() (ExitEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exit == nil {
		return ExitEvent{}, false
	}
	return *r.exit, true
}

// Wait blocks until the recorder exits or ctx is done.
func (r *Recording) Wait(ctx context.Context) (ExitEvent, error) {
	select {
	case <-r.done:
		ev, _ := r.Exit()
		return ev, nil
	case <-ctx.Done():
		return ExitEvent{}, ctx.Err()
	}
}

// Running reports whether the recorder process is alive.
func (r *Recording) Running(ctx context.Context) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	p, err := process.NewProcessWithContext(ctx, int32(r.PID))
	if err != nil {
		return false
	}
	running, err := p.IsRunningWithContext(ctx)
	return err == nil && running
}

// Stats is a point-in-time resource snapshot of a recorder process.
type Stats struct {
	PID        int     `json:"pid" yaml:"pid"`
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes" yaml:"rss_bytes"`
	Status     string  `json:"status" yaml:"status"`
}

// Stats samples CPU and memory usage of the recorder process.
func (r *Recording) Stats(ctx context.Context) (Stats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(r.PID))
	if err != nil {
		return Stats{}, fmt.Errorf("inspect pid %d: %w", r.PID, err)
	}
	return processStats(ctx, p), nil
}

func (r *Recording) finish(ev ExitEvent) {
	r.mu.Lock()
	r.exit = &ev
	r.mu.Unlock()
	close(r.done)
}

func processStats(ctx context.Context, p *process.Process) Stats {
	s := Stats{PID: int(p.Pid)}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		s.RSSBytes = mem.RSS
	}
	if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
		s.Status = status[0]
	}
	return s
}
