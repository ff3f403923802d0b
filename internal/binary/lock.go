package binary

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	// StaleLockThreshold is the maximum age of a lock before it's considered stale.
	StaleLockThreshold = 10 * time.Minute
	lockFileName       = ".keploy.update.lock"

	reclaimGuardSuffix  = ".reclaim"
	reclaimGuardTimeout = 30 * time.Second
)

// ErrLockExists is returned when another process is updating the same
// installation directory.
var ErrLockExists = errors.New("install lock exists: another update may be in progress")

// Lock is an exclusive, cross-process lock on an installation directory.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the update lock for dir using O_CREATE|O_EXCL. A lock
// left behind by a dead process, or older than StaleLockThreshold, is
// reclaimed once; when several processes race to reclaim it, at most one
// of them ends up holding the lock.
func AcquireLock(ctx context.Context, dir string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !reclaimStaleLock(ctx, lockPath) {
			return nil, ErrLockExists
		}
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{
		path: lockPath,
		file: file,
	}, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// reclaimStaleLock removes a stale lock at lockPath. Reclaimers serialize
// on a guard file and re-read the lock while holding it, so a lock that was
// replaced since it was judged stale is never removed. It reports whether
// lockPath is now free to be taken.
func reclaimStaleLock(ctx context.Context, lockPath string) bool {
	guardPath := lockPath + reclaimGuardSuffix
	guard, err := os.OpenFile(guardPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		// A reclaimer that died holding the guard must not block updates forever.
		if info, serr := os.Stat(guardPath); serr == nil && time.Since(info.ModTime()) > reclaimGuardTimeout {
			os.Remove(guardPath)
		}
		return false
	}
	guard.Close()
	defer os.Remove(guardPath)

	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		return false
	}
	info, err := os.Stat(lockPath)
	if err != nil {
		return os.IsNotExist(err)
	}
	if !isLockStale(ctx, data, info.ModTime()) {
		return false
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return false
	}
	return true
}

// isLockStale reports whether the lock's owner is gone or the lock is too old.
func isLockStale(ctx context.Context, data []byte, modTime time.Time) bool {
	if time.Since(modTime) > StaleLockThreshold {
		return true
	}

	pid, err := parseLockPID(data)
	if err != nil || pid == os.Getpid() {
		return false
	}
	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	return err == nil && !alive
}

// readLockPID parses the pid= line written by AcquireLock.
func readLockPID(lockPath string) (int, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, err
	}
	return parseLockPID(data)
}

func parseLockPID(data []byte) (int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "pid="); ok {
			return strconv.Atoi(strings.TrimSpace(v))
		}
	}
	return 0, fmt.Errorf("no pid in lock file")
}
