// Package executor runs short-lived external commands to completion with
// output capture, a hard wall-clock timeout, and per-operation cancellation
// handles. Every sst subcommand except dev mode goes through here.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// errTailLen bounds how much captured output rides inside error values.
const errTailLen = 2000

// killDelay is how long a terminated process gets to exit before SIGKILL.
const killDelay = 2 * time.Second

// Result is the outcome of a completed command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Options configures one command invocation.
type Options struct {
	Argv      []string      // program and arguments; must be non-empty
	Dir       string        // working directory
	Env       []string      // full environment; nil inherits the host's
	Timeout   time.Duration // wall-clock budget; <=0 means no timeout
	Workspace string        // cancellation grouping key
	Stdout    io.Writer     // optional extra sink, e.g. the workspace log
	Stderr    io.Writer
}

// Executor spawns commands and supervises them until exit.
type Executor struct {
	reg    *Registry
	logger *slog.Logger

	// Live output is mirrored here. Both default to os.Stderr: in stdio
	// transport mode the host's stdout carries protocol framing and must
	// never receive subprocess bytes.
	hostOut io.Writer
	hostErr io.Writer
}

func New(reg *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{reg: reg, logger: logger, hostOut: os.Stderr, hostErr: os.Stderr}
}

// SetMirror overrides the live-output destinations. Used by tests and by
// hosts whose stdout is safe to write to.
func (e *Executor) SetMirror(out, errw io.Writer) {
	e.hostOut = out
	e.hostErr = errw
}

// Run executes opts.Argv and blocks until it exits, the timeout fires, or
// the operation is canceled. The timer and the cancellation registration are
// released on every exit path.
func (e *Executor) Run(ctx context.Context, op string, opts Options) (Result, error) {
	if len(opts.Argv) == 0 {
		return Result{}, &SpawnError{Op: op, Err: errors.New("empty argument vector")}
	}

	// #nosec G204 -- argv is assembled by the sst package, not caller strings
	cmd := exec.Command(opts.Argv[0], opts.Argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = multi(&outBuf, e.hostOut, opts.Stdout)
	cmd.Stderr = multi(&errBuf, e.hostErr, opts.Stderr)

	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Op: op, Err: err}
	}
	pid := cmd.Process.Pid

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := e.reg.register(op, opts.Workspace, cancel)
	defer e.reg.remove(h)

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	e.logger.Debug("command started", "op", op, "pid", pid, "argv0", opts.Argv[0])

	select {
	case err := <-waitCh:
		return e.finish(op, err, &outBuf, &errBuf)
	case <-timeout:
		terminateGroup(pid, waitCh)
		e.logger.Warn("command timed out", "op", op, "pid", pid, "timeout", opts.Timeout)
		return Result{}, &TimeoutError{Op: op, Timeout: opts.Timeout}
	case <-runCtx.Done():
		terminateGroup(pid, waitCh)
		if h.Canceled() {
			e.logger.Info("command canceled", "op", op, "pid", pid)
			return Result{}, &CanceledError{Op: op}
		}
		return Result{}, runCtx.Err()
	}
}

func (e *Executor) finish(op string, waitErr error, outBuf, errBuf *bytes.Buffer) (Result, error) {
	if waitErr == nil {
		return Result{ExitCode: 0, Stdout: outBuf.String(), Stderr: errBuf.String()}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		e.logger.Warn("command failed", "op", op, "code", code)
		return Result{}, &CommandError{
			Op:       op,
			ExitCode: code,
			Stderr:   tail(errBuf.String(), errTailLen),
			Stdout:   tail(outBuf.String(), errTailLen),
		}
	}
	return Result{}, &SpawnError{Op: op, Err: waitErr}
}

// terminateGroup signals the process group gracefully, escalates to SIGKILL
// if the group survives killDelay, and reaps the child so no zombie remains.
func terminateGroup(pid int, waitCh <-chan error) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(killDelay):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-waitCh
	}
}

func multi(capture io.Writer, mirrors ...io.Writer) io.Writer {
	ws := []io.Writer{capture}
	for _, m := range mirrors {
		if m != nil {
			ws = append(ws, m)
		}
	}
	if len(ws) == 1 {
		return capture
	}
	return io.MultiWriter(ws...)
}
