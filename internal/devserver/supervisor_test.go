package devserver

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/sst"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

// writeDevScript installs a fake sst binary whose dev mode runs body.
func writeDevScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sst")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func longRunningScript(t *testing.T) string {
	return writeDevScript(t, `echo dev ready
trap 'exit 0' TERM
while true; do sleep 0.1; done`)
}

func newTestSupervisor(t *testing.T, bin string) *Supervisor {
	t.Helper()
	s := New(Config{
		Tool:         sst.Tool{Bin: bin},
		StopGrace:    3 * time.Second,
		KillGrace:    time.Second,
		RestartPause: 10 * time.Millisecond,
		Mirror:       io.Discard,
	}, nil)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartStopLifecycle(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, longRunningScript(t))

	res, err := s.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.AlreadyRunning || res.PID <= 0 {
		t.Fatalf("unexpected start result: %+v", res)
	}

	pid, startUnix, err := readPIDFile(workspace.PIDFile(root))
	if err != nil {
		t.Fatalf("pid file: %v", err)
	}
	if pid != res.PID || startUnix == 0 {
		t.Fatalf("pid file contents: pid=%d start=%d want pid=%d", pid, startUnix, res.PID)
	}

	logB, err := os.ReadFile(workspace.LogFile(root))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.HasPrefix(string(logB), "=== Dev Started at ") {
		t.Fatalf("log should begin with start marker: %q", string(logB)[:min(len(logB), 60)])
	}

	waitFor(t, 3*time.Second, func() bool {
		st := s.Status(root)
		return st.Running && st.LastLog != ""
	})

	st := s.Status(root)
	if !st.Running || st.PID != res.PID {
		t.Fatalf("status: %+v", st)
	}
	if !strings.HasPrefix(st.Uptime, "0m ") {
		t.Fatalf("uptime format: %q", st.Uptime)
	}

	stopRes, err := s.Stop(context.Background(), root)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !stopRes.WasRunning {
		t.Fatal("stop should report the process was running")
	}
	waitFor(t, 3*time.Second, func() bool {
		_, err := os.Stat(workspace.PIDFile(root))
		return os.IsNotExist(err)
	})
	if st := s.Status(root); st.Running {
		t.Fatalf("still running after stop: %+v", st)
	}
}

func TestSecondStartIsIdempotent(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, longRunningScript(t))

	first, err := s.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := s.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.AlreadyRunning || second.PID != first.PID {
		t.Fatalf("second start should be AlreadyRunning with same pid: %+v vs %+v", first, second)
	}
	if _, err := s.Stop(context.Background(), root); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDoubleStopIsNoop(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, longRunningScript(t))

	for i := 0; i < 2; i++ {
		res, err := s.Stop(context.Background(), root)
		if err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
		if res.WasRunning {
			t.Fatalf("stop %d reported a running process", i)
		}
	}
	if _, err := os.Stat(workspace.PIDFile(root)); !os.IsNotExist(err) {
		t.Fatal("pid file should not exist")
	}
}

func TestStalePIDRecovery(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, longRunningScript(t))

	// A real but exited process; the recorded start time of 1 guarantees a
	// mismatch even if the PID has been recycled.
	probe := exec.Command("true")
	if err := probe.Start(); err != nil {
		t.Fatal(err)
	}
	_ = probe.Wait()
	deadPID := probe.Process.Pid

	if err := os.MkdirAll(workspace.StateDir(root), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := writePIDFile(workspace.PIDFile(root), deadPID, time.Unix(1, 0)); err != nil {
		t.Fatal(err)
	}

	st := s.Status(root)
	if st.Running {
		t.Fatalf("stale pid reported running: %+v", st)
	}
	if _, err := os.Stat(workspace.PIDFile(root)); !os.IsNotExist(err) {
		t.Fatal("stale pid file should have been deleted")
	}
}

func TestDevProcessExitCleansUp(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, writeDevScript(t, "echo short run; exit 7"))

	if _, err := s.Start(context.Background(), root); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return !s.Status(root).Running })

	logB, err := os.ReadFile(workspace.LogFile(root))
	if err != nil {
		t.Fatal(err)
	}
	text := string(logB)
	if !strings.Contains(text, "short run") {
		t.Fatalf("output not mirrored to log: %q", text)
	}
	if !strings.Contains(text, "Ended at") || !strings.Contains(text, "with code 7") {
		t.Fatalf("end marker missing: %q", text)
	}
	if _, err := os.Stat(workspace.PIDFile(root)); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed on exit")
	}
}

func TestStaleServerMarkersRemoved(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	s := newTestSupervisor(t, longRunningScript(t))

	if err := os.MkdirAll(workspace.StateDir(root), 0o750); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(workspace.StateDir(root), "abc123.server")
	if err := os.WriteFile(marker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Start(context.Background(), root); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _, _ = s.Stop(context.Background(), root) }()

	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("stale server marker should be removed before spawn")
	}
}

func TestSpawnFailureLeavesStopped(t *testing.T) {
	root := t.TempDir()
	s := newTestSupervisor(t, "/definitely/not/sst")

	_, err := s.Start(context.Background(), root)
	var spawnErr *executor.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("want SpawnError, got %v", err)
	}
	// a retry must go through the full start path, not AlreadyRunning
	res, err := s.Start(context.Background(), root)
	if err == nil || res.AlreadyRunning {
		t.Fatalf("retry after spawn failure: res=%+v err=%v", res, err)
	}
	if _, err := os.Stat(workspace.PIDFile(root)); !os.IsNotExist(err) {
		t.Fatal("no pid file should exist after spawn failure")
	}
}

func TestEnvVarsReachDevProcess(t *testing.T) {
	requireUnix(t)
	root := t.TempDir()
	if err := os.WriteFile(workspace.EnvFile(root), []byte("export GREETING=\"hello world\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := newTestSupervisor(t, writeDevScript(t, `echo "GREETING=$GREETING"
trap 'exit 0' TERM
while true; do sleep 0.1; done`))

	if _, err := s.Start(context.Background(), root); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _, _ = s.Stop(context.Background(), root) }()

	waitFor(t, 3*time.Second, func() bool {
		b, err := os.ReadFile(workspace.LogFile(root))
		return err == nil && strings.Contains(string(b), "GREETING=hello world")
	})
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "0m 5s"},
		{90 * time.Second, "1m 30s"},
		{-time.Second, "0m 0s"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.d); got != tc.want {
			t.Fatalf("formatUptime(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
