package executor

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func newTestExecutor() (*Executor, *Registry) {
	reg := NewRegistry()
	e := New(reg, nil)
	e.SetMirror(io.Discard, io.Discard)
	return e, reg
}

func TestRunCapturesOutput(t *testing.T) {
	requireUnix(t)
	e, _ := newTestExecutor()
	res, err := e.Run(context.Background(), "echo", Options{
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code: %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("captured output wrong: stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestRunNonzeroExit(t *testing.T) {
	requireUnix(t)
	e, _ := newTestExecutor()
	_, err := e.Run(context.Background(), "deploy", Options{
		Argv: []string{"sh", "-c", "echo boom 1>&2; exit 3"},
	})
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("want CommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Fatalf("exit code: %d", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Stderr, "boom") {
		t.Fatalf("stderr not carried: %q", cmdErr.Stderr)
	}
	if !strings.Contains(cmdErr.Error(), "deploy") {
		t.Fatalf("operation name missing from message: %s", cmdErr.Error())
	}
}

func TestRunSpawnFailure(t *testing.T) {
	e, _ := newTestExecutor()
	_, err := e.Run(context.Background(), "bogus", Options{
		Argv: []string{"/definitely/not/a/binary"},
	})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("want SpawnError, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	requireUnix(t)
	e, _ := newTestExecutor()
	start := time.Now()
	_, err := e.Run(context.Background(), "slow", Options{
		Argv:    []string{"sleep", "10"},
		Timeout: 100 * time.Millisecond,
	})
	elapsed := time.Since(start)
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("want TimeoutError, got %v", err)
	}
	if toErr.Op != "slow" || toErr.Timeout != 100*time.Millisecond {
		t.Fatalf("timeout error fields: %+v", toErr)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("command outlived its budget: %s", elapsed)
	}
}

func TestCancelViaRegistry(t *testing.T) {
	requireUnix(t)
	e, reg := newTestExecutor()
	done := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), "longop", Options{
			Argv:      []string{"sleep", "10"},
			Workspace: "/work/app",
		})
		done <- err
	}()

	// Wait until the operation shows up in the registry.
	deadline := time.Now().Add(2 * time.Second)
	for len(reg.Active()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("operation never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := reg.CancelWorkspace("/work/app"); n != 1 {
		t.Fatalf("canceled %d operations, want 1", n)
	}

	select {
	case err := <-done:
		var cErr *CanceledError
		if !errors.As(err, &cErr) {
			t.Fatalf("want CanceledError, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not unblock the caller")
	}
	if len(reg.Active()) != 0 {
		t.Fatal("handle leaked after cancellation")
	}
}

func TestHandleRemovedOnSuccess(t *testing.T) {
	requireUnix(t)
	e, reg := newTestExecutor()
	if _, err := e.Run(context.Background(), "quick", Options{Argv: []string{"true"}}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reg.Active()) != 0 {
		t.Fatal("handle leaked after completion")
	}
}

func TestCancelWorkspaceNoMatch(t *testing.T) {
	_, reg := newTestExecutor()
	if n := reg.CancelWorkspace("/nowhere"); n != 0 {
		t.Fatalf("canceled %d, want 0", n)
	}
}
