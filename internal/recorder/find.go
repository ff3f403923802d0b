package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo describes a recorder process found on the system.
type ProcessInfo struct {
	Stats     `yaml:",inline"`
	Cmdline   string    `json:"cmdline" yaml:"cmdline"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// FindProcesses lists running recorder processes system-wide: processes
// whose executable is binaryPath, or that are named like it and run the
// record subcommand. Processes that vanish or cannot be inspected are
// skipped.
func FindProcesses(ctx context.Context, binaryPath string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	name := filepath.Base(binaryPath)
	var found []ProcessInfo
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isRecorder(ctx, p, binaryPath, name) {
			continue
		}

		info := ProcessInfo{Stats: processStats(ctx, p)}
		if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
			info.Cmdline = cmdline
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.StartedAt = time.UnixMilli(ms)
		}
		found = append(found, info)
	}
	return found, nil
}

func isRecorder(ctx context.Context, p *process.Process, binaryPath, name string) bool {
	if exe, err := p.ExeWithContext(ctx); err == nil && exe == binaryPath {
		return true
	}
	pname, err := p.NameWithContext(ctx)
	if err != nil || pname != name {
		return false
	}
	args, err := p.CmdlineSliceWithContext(ctx)
	return err == nil && slices.Contains(args, "record")
}
