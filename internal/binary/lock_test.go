package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(context.Background(), dir)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}

	if _, err := AcquireLock(context.Background(), dir); !errors.Is(err, ErrLockExists) {
		t.Fatalf("second AcquireLock() error = %v, want ErrLockExists", err)
	}

	pid, err := readLockPID(filepath.Join(dir, lockFileName))
	if err != nil {
		t.Fatalf("readLockPID() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("lock pid = %d, want %d", pid, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() should be a no-op, got %v", err)
	}

	lock, err = AcquireLock(context.Background(), dir)
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	_ = lock.Release()
}

func TestAcquireLockCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "bin")

	lock, err := AcquireLock(context.Background(), dir)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(filepath.Join(dir, lockFileName)); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestAcquireLockReclaimsStale(t *testing.T) {
	t.Run("old_lock", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, lockFileName)
		if err := os.WriteFile(lockPath, []byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-2 * StaleLockThreshold)
		if err := os.Chtimes(lockPath, old, old); err != nil {
			t.Fatal(err)
		}

		lock, err := AcquireLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("expected stale lock to be reclaimed, got %v", err)
		}
		_ = lock.Release()
	})

	t.Run("dead_owner", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Skipf("cannot run true: %v", err)
		}

		dir := t.TempDir()
		lockPath := filepath.Join(dir, lockFileName)
		data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", cmd.Process.Pid, time.Now().UTC().Format(time.RFC3339))
		if err := os.WriteFile(lockPath, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}

		lock, err := AcquireLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("expected lock of exited process to be reclaimed, got %v", err)
		}
		_ = lock.Release()
	})

	t.Run("unreadable_pid_is_kept", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, lockFileName), []byte("garbage"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := AcquireLock(context.Background(), dir); !errors.Is(err, ErrLockExists) {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})
}

func TestAcquireLockCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := AcquireLock(ctx, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// writeDeadOwnerLock writes a lock held by a process that has exited.
func writeDeadOwnerLock(t *testing.T, dir string) string {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot run true: %v", err)
	}
	lockPath := filepath.Join(dir, lockFileName)
	data := fmt.Sprintf("pid=%d\ntimestamp=%s\n", cmd.Process.Pid, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	return lockPath
}

func TestAcquireLockConcurrentReclaim(t *testing.T) {
	dir := t.TempDir()
	writeDeadOwnerLock(t, dir)

	const workers = 8
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
		locks   = make(chan *Lock, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			lock, err := AcquireLock(context.Background(), dir)
			if err == nil {
				winners.Add(1)
				locks <- lock
				return
			}
			if !errors.Is(err, ErrLockExists) {
				t.Errorf("AcquireLock() error = %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(locks)

	if got := winners.Load(); got != 1 {
		t.Errorf("%d processes hold the lock, want exactly 1", got)
	}
	for lock := range locks {
		_ = lock.Release()
	}
	if _, err := os.Stat(filepath.Join(dir, lockFileName+reclaimGuardSuffix)); !os.IsNotExist(err) {
		t.Errorf("reclaim guard left behind: %v", err)
	}
}

func TestReclaimStaleLockKeepsReplacedLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, lockFileName)

	// The lock was judged stale, then a live process took it over before
	// the reclaimer got to remove it.
	fresh := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getppid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(fresh), 0600); err != nil {
		t.Fatal(err)
	}

	if reclaimStaleLock(context.Background(), lockPath) {
		t.Fatal("reclaimStaleLock() removed a live lock")
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("live lock removed: %v", err)
	}
	if string(data) != fresh {
		t.Errorf("live lock modified: %q", data)
	}
}

func TestReclaimStaleLockGuard(t *testing.T) {
	t.Run("held_guard_blocks_reclaim", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := writeDeadOwnerLock(t, dir)
		guard := lockPath + reclaimGuardSuffix
		if err := os.WriteFile(guard, nil, 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := AcquireLock(context.Background(), dir); !errors.Is(err, ErrLockExists) {
			t.Fatalf("expected ErrLockExists while another reclaim runs, got %v", err)
		}
		if _, err := os.Stat(lockPath); err != nil {
			t.Errorf("stale lock removed without the guard: %v", err)
		}
		if _, err := os.Stat(guard); err != nil {
			t.Errorf("fresh guard removed: %v", err)
		}
	})

	t.Run("abandoned_guard_expires", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := writeDeadOwnerLock(t, dir)
		guard := lockPath + reclaimGuardSuffix
		if err := os.WriteFile(guard, nil, 0600); err != nil {
			t.Fatal(err)
		}
		old := time.Now().Add(-2 * reclaimGuardTimeout)
		if err := os.Chtimes(guard, old, old); err != nil {
			t.Fatal(err)
		}

		if _, err := AcquireLock(context.Background(), dir); !errors.Is(err, ErrLockExists) {
			t.Fatalf("first attempt should still back off, got %v", err)
		}
		lock, err := AcquireLock(context.Background(), dir)
		if err != nil {
			t.Fatalf("expected reclaim after abandoned guard expired, got %v", err)
		}
		_ = lock.Release()
	})
}
