package recorder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
)

// fakeRecorder writes a shell script named keploy that stands in for the
// recorder binary.
func fakeRecorder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keploy")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func newTestLauncher(t *testing.T, cfg Config) *Launcher {
	t.Helper()
	l := NewLauncher(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Shutdown(ctx, Terminate)
	})
	return l
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "recorder never created %s", path)
}

func TestStartInvalidInput(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	bin := fakeRecorder(t, "touch "+marker+"\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	tests := []struct {
		name string
		req  Request
	}{
		{"empty_command", Request{Command: "", FilePath: "/tmp/app.yaml"}},
		{"empty_path", Request{Command: "npm start", FilePath: ""}},
		{"blank_command", Request{Command: "   ", FilePath: "/tmp/app.yaml"}},
		{"both_empty", Request{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, result := l.Start(context.Background(), tt.req)
			assert.Nil(t, rec)
			assert.False(t, result.OK)
			assert.Equal(t, outcome.KindInvalidInput, result.Kind)
			assert.NotEmpty(t, result.Reason())
		})
	}

	time.Sleep(50 * time.Millisecond)
	assert.NoFileExists(t, marker, "invalid input must not spawn the recorder")
}

func TestStartMissingBinary(t *testing.T) {
	l := newTestLauncher(t, Config{BinaryPath: filepath.Join(t.TempDir(), "keploy")})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	assert.Nil(t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, outcome.KindSpawn, result.Kind)
	assert.Contains(t, result.Message, "not found")
}

func TestStartNotExecutable(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "keploy")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0644))
	l := newTestLauncher(t, Config{BinaryPath: bin})

	_, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	assert.Equal(t, outcome.KindSpawn, result.Kind)
	assert.Contains(t, result.Message, "not executable")
}

func TestStartCancelledContext(t *testing.T) {
	l := newTestLauncher(t, Config{BinaryPath: fakeRecorder(t, "exit 0\n")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, result := l.Start(ctx, Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	assert.Equal(t, outcome.KindCanceled, result.Kind)
}

func TestStartPassesArguments(t *testing.T) {
	out := t.TempDir()
	bin := fakeRecorder(t, `echo "$@" > `+out+`/args
pwd > `+out+`/pwd
exec sleep 30
`)
	project := t.TempDir()
	file := filepath.Join(project, "app.test.yaml")
	l := newTestLauncher(t, Config{BinaryPath: bin, ExtraArgs: []string{"--debug"}})

	start := time.Now()
	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: file})
	require.True(t, result.OK, result.String())
	assert.Less(t, time.Since(start), 2*time.Second, "Start must not wait for the recorder")
	assert.True(t, strings.HasPrefix(result.Message, MsgRecordingStarted))
	require.NotNil(t, rec)
	assert.Positive(t, rec.PID)
	assert.NotEmpty(t, rec.ID)

	waitForFile(t, filepath.Join(out, "pwd"))
	args, err := os.ReadFile(filepath.Join(out, "args"))
	require.NoError(t, err)
	assert.Equal(t, "record --command npm start --path "+file+" --debug\n", string(args))

	wd, err := os.ReadFile(filepath.Join(out, "pwd"))
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(project)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(strings.TrimSpace(string(wd)))
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)

	assert.True(t, rec.Running(context.Background()))
	_, exited := rec.Exit()
	assert.False(t, exited)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx, Terminate))

	select {
	case <-rec.Done():
	default:
		t.Fatal("recording should be done after Shutdown")
	}
	assert.False(t, rec.Running(context.Background()))
	assert.Empty(t, l.List())
}

func TestStartWorkDirOverride(t *testing.T) {
	out := t.TempDir()
	bin := fakeRecorder(t, "pwd > "+out+"/pwd\n")
	workDir := t.TempDir()
	l := newTestLauncher(t, Config{BinaryPath: bin, WorkDir: workDir})

	rec, result := l.Start(context.Background(), Request{Command: "go run .", FilePath: "/tmp/x.yaml"})
	require.True(t, result.OK, result.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := rec.Wait(ctx)
	require.NoError(t, err)

	wd, err := os.ReadFile(filepath.Join(out, "pwd"))
	require.NoError(t, err)
	wantDir, _ := filepath.EvalSymlinks(workDir)
	gotDir, _ := filepath.EvalSymlinks(strings.TrimSpace(string(wd)))
	assert.Equal(t, wantDir, gotDir)
}

func TestExitEvent(t *testing.T) {
	bin := fakeRecorder(t, "echo 'error: port 8080 already in use' >&2\nexit 3\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := rec.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ev.ExitCode)
	assert.Contains(t, ev.StderrTail, "port 8080 already in use")
	assert.NoError(t, ev.Err)

	select {
	case got := <-l.Events():
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.PID, got.PID)
	case <-ctx.Done():
		t.Fatal("no exit event published")
	}

	_, tracked := l.Get(rec.ID)
	assert.False(t, tracked)
}

func TestRecordingLogFile(t *testing.T) {
	bin := fakeRecorder(t, "echo 'recording api calls'\necho 'warn: slow' >&2\n")
	logDir := filepath.Join(t.TempDir(), "logs")
	l := newTestLauncher(t, Config{BinaryPath: bin, LogDir: logDir})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())
	assert.Equal(t, filepath.Join(logDir, rec.ID+".log"), rec.LogPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := rec.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.ExitCode)

	data, err := os.ReadFile(rec.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recording api calls")
	assert.Contains(t, string(data), "warn: slow")
}

func TestConcurrentRecordings(t *testing.T) {
	bin := fakeRecorder(t, "exec sleep 30\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	var recs []*Recording
	for i := 0; i < 3; i++ {
		rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
		require.True(t, result.OK, result.String())
		recs = append(recs, rec)
	}
	assert.Len(t, l.List(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx, Terminate))

	for _, rec := range recs {
		_, exited := rec.Exit()
		assert.True(t, exited, "recording %s still running", rec.ID)
	}
}

func TestShutdownEscalatesToKill(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	bin := fakeRecorder(t, "trap '' TERM\ntouch "+ready+"\nsleep 30\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())
	waitForFile(t, ready)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx, Terminate))

	ev, ok := rec.Exit()
	require.True(t, ok)
	assert.Equal(t, -1, ev.ExitCode, "killed recorder has no exit code")
}

func TestShutdownDetach(t *testing.T) {
	bin := fakeRecorder(t, "exec sleep 30\n")
	l := NewLauncher(Config{BinaryPath: bin})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())
	t.Cleanup(func() {
		_ = killGroup(rec.PID)
		<-rec.Done()
	})

	require.NoError(t, l.Shutdown(context.Background(), Detach))
	assert.Empty(t, l.List())
	assert.True(t, rec.Running(context.Background()), "detached recording keeps running")
}

func TestRecordingStats(t *testing.T) {
	bin := fakeRecorder(t, "exec sleep 30\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())

	stats, err := rec.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec.PID, stats.PID)
}

func TestFindProcesses(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	bin := fakeRecorder(t, "touch "+ready+"\nsleep 30\n")
	l := newTestLauncher(t, Config{BinaryPath: bin})

	rec, result := l.Start(context.Background(), Request{Command: "npm start", FilePath: "/tmp/app.yaml"})
	require.True(t, result.OK, result.String())
	waitForFile(t, ready)

	procs, err := FindProcesses(context.Background(), bin)
	require.NoError(t, err)

	var pids []int
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	assert.Contains(t, pids, rec.PID)
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)

	_, _ = tb.Write([]byte("abc"))
	assert.Equal(t, "abc", tb.String())

	_, _ = tb.Write([]byte("defghij"))
	assert.Equal(t, "cdefghij", tb.String())

	n, err := tb.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "23456789", tb.String())
}
