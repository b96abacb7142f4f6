// Package devserver supervises the single long-running `sst dev` subprocess
// per workspace. Lifecycle is an explicit state machine (Stopped, Starting,
// Running, Stopping); every failure path lands in a terminal state so a
// retry is always safe.
package devserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/acastanedez/sst-mcp/internal/ansi"
	"github.com/acastanedez/sst-mcp/internal/envfile"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/logtail"
	"github.com/acastanedez/sst-mcp/internal/metrics"
	"github.com/acastanedez/sst-mcp/internal/sst"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

// State is the per-workspace lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

const (
	defaultStopGrace    = 5 * time.Second
	defaultKillGrace    = 1 * time.Second
	defaultRestartPause = 2 * time.Second
	maxLastLogLen       = 256
)

// Config configures a Supervisor.
type Config struct {
	Tool         sst.Tool
	StopGrace    time.Duration // wait after SIGTERM before escalating
	KillGrace    time.Duration // wait after SIGKILL before giving up
	RestartPause time.Duration // pause between stop and start in a restart cycle
	WatchEnv     bool          // restart automatically when env.sh changes
	Mirror       io.Writer     // live dev output destination; defaults to os.Stderr
	Logger       *slog.Logger
}

// StartResult reports the outcome of a start request. AlreadyRunning is an
// informational success, not an error: the at-most-one invariant held.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// StopResult reports the outcome of a stop request. WasRunning false means
// there was nothing to stop, which is a benign no-op.
type StopResult struct {
	WasRunning bool
	PID        int
}

// Status is the read-only view of a workspace's dev process.
type Status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
	LastLog string `json:"last_log,omitempty"`
}

// Supervisor owns the dev-process lifecycle for every workspace this server
// touches. Workspaces are independent; operations on the same workspace are
// serialized by a per-entry operation lock.
type Supervisor struct {
	tool         sst.Tool
	term         Terminator
	stopGrace    time.Duration
	killGrace    time.Duration
	restartPause time.Duration
	watchEnv     bool
	mirror       io.Writer
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is the registry slot for one workspace. opMu serializes whole
// operations (start, stop, restart, status); mu guards the fields and is
// never held across blocking waits.
type entry struct {
	opMu sync.Mutex
	mu   sync.Mutex

	state     State
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	logF      *os.File
	waitDone  chan struct{}
	watcher   *envWatcher
}

func New(cfg Config, term Terminator) *Supervisor {
	if term == nil {
		term = TreeTerminator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mirror == nil {
		cfg.Mirror = os.Stderr
	}
	s := &Supervisor{
		tool:         cfg.Tool,
		term:         term,
		stopGrace:    cfg.StopGrace,
		killGrace:    cfg.KillGrace,
		restartPause: cfg.RestartPause,
		watchEnv:     cfg.WatchEnv,
		mirror:       cfg.Mirror,
		logger:       cfg.Logger,
		entries:      make(map[string]*entry),
	}
	if s.stopGrace <= 0 {
		s.stopGrace = defaultStopGrace
	}
	if s.killGrace <= 0 {
		s.killGrace = defaultKillGrace
	}
	if s.restartPause <= 0 {
		s.restartPause = defaultRestartPause
	}
	return s
}

func (s *Supervisor) entryFor(root string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[root]
	if !ok {
		e = &entry{}
		s.entries[root] = e
	}
	return e
}

// Start launches the dev process for root. If a live record already exists
// the call reports AlreadyRunning and spawns nothing.
func (s *Supervisor) Start(ctx context.Context, root string) (StartResult, error) {
	e := s.entryFor(root)
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return s.start(ctx, e, root)
}

func (s *Supervisor) start(_ context.Context, e *entry, root string) (StartResult, error) {
	e.mu.Lock()
	if e.state == StateRunning || e.state == StateStarting {
		pid := e.pid
		e.mu.Unlock()
		return StartResult{AlreadyRunning: true, PID: pid}, nil
	}
	e.state = StateStarting
	e.mu.Unlock()

	fail := func(err error) (StartResult, error) {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return StartResult{}, err
	}

	// A PID file from a previous hosting-process run may still point at a
	// live dev process; honor it. A stale file is removed on the spot.
	pidPath := workspace.PIDFile(root)
	if pid, startUnix, err := readPIDFile(pidPath); err == nil {
		if recordAlive(pid, startUnix) {
			e.mu.Lock()
			e.state = StateStopped
			e.mu.Unlock()
			return StartResult{AlreadyRunning: true, PID: pid}, nil
		}
		s.logger.Info("removing stale pid file", "workspace", root, "pid", pid)
		removePIDFile(pidPath)
	}

	if err := os.MkdirAll(workspace.StateDir(root), 0o750); err != nil {
		return fail(fmt.Errorf("create state dir: %w", err))
	}

	logF, err := os.Create(workspace.LogFile(root))
	if err != nil {
		return fail(fmt.Errorf("create log file: %w", err))
	}
	now := time.Now()
	_, _ = logF.WriteString(startMarker("Dev", now))

	// Stale instance markers make sst refuse to start, believing another
	// instance owns the workspace.
	for _, m := range workspace.ServerMarkers(root) {
		s.logger.Info("removing stale server marker", "file", m)
		_ = os.Remove(m)
	}

	env := envfile.Merge(os.Environ(), envfile.Read(workspace.EnvFile(root)))

	argv := s.tool.Dev()
	// #nosec G204 -- fixed argv from the sst package
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = root
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = logF.Close()
		return fail(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = logF.Close()
		return fail(err)
	}
	if err := cmd.Start(); err != nil {
		_ = logF.Close()
		return fail(&executor.SpawnError{Op: "dev", Err: err})
	}
	pid := cmd.Process.Pid
	if err := writePIDFile(pidPath, pid, now); err != nil {
		s.logger.Warn("pid file write failed", "workspace", root, "error", err)
	}

	waitDone := make(chan struct{})
	e.mu.Lock()
	if e.watcher != nil {
		e.watcher.close()
		e.watcher = nil
	}
	e.cmd = cmd
	e.pid = pid
	e.startedAt = now
	e.logF = logF
	e.waitDone = waitDone
	e.state = StateRunning
	e.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go s.pump(&wg, stdout, e)
	go s.pump(&wg, stderr, e)
	go s.monitor(e, root, cmd, &wg, waitDone)

	if s.watchEnv {
		if w, err := s.watchEnvFile(root); err != nil {
			s.logger.Warn("env watch unavailable", "workspace", root, "error", err)
		} else {
			e.mu.Lock()
			e.watcher = w
			e.mu.Unlock()
		}
	}

	s.logger.Info("dev process started", "workspace", root, "pid", pid)
	return StartResult{PID: pid}, nil
}

// pump copies one stdio stream into the workspace log (colors stripped) and
// the live mirror, line by line.
func (s *Supervisor) pump(wg *sync.WaitGroup, r io.Reader, e *entry) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := ansi.Strip(sc.Text())
		e.mu.Lock()
		if e.logF != nil {
			_, _ = fmt.Fprintln(e.logF, line)
		}
		e.mu.Unlock()
		if s.mirror != nil {
			_, _ = fmt.Fprintln(s.mirror, line)
		}
	}
}

// monitor reaps the dev process and performs the exit transition: end
// marker, log close, PID file removal, Stopped.
func (s *Supervisor) monitor(e *entry, root string, cmd *exec.Cmd, wg *sync.WaitGroup, waitDone chan struct{}) {
	wg.Wait()
	err := cmd.Wait()
	code := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}
	e.mu.Lock()
	if e.logF != nil {
		_, _ = e.logF.WriteString(endMarker("Dev", time.Now(), code))
		_ = e.logF.Close()
		e.logF = nil
	}
	e.cmd = nil
	e.pid = 0
	e.state = StateStopped
	e.mu.Unlock()
	removePIDFile(workspace.PIDFile(root))
	close(waitDone)
	s.logger.Info("dev process exited", "workspace", root, "code", code)
}

// Stop terminates the dev process and its descendants: SIGTERM, grace
// period, SIGKILL, shorter grace, then StopFailedError if still alive.
// Stopping an already-stopped workspace is a no-op.
func (s *Supervisor) Stop(ctx context.Context, root string) (StopResult, error) {
	e := s.entryFor(root)
	e.opMu.Lock()
	defer e.opMu.Unlock()
	return s.stop(ctx, e, root)
}

func (s *Supervisor) stop(_ context.Context, e *entry, root string) (StopResult, error) {
	e.mu.Lock()
	if e.watcher != nil {
		e.watcher.close()
		e.watcher = nil
	}
	pid := e.pid
	waitDone := e.waitDone
	owned := e.state == StateRunning
	if owned {
		e.state = StateStopping
	}
	e.mu.Unlock()

	adopted := false
	if !owned {
		p, startUnix, err := readPIDFile(workspace.PIDFile(root))
		if err != nil || !recordAlive(p, startUnix) {
			if err == nil {
				removePIDFile(workspace.PIDFile(root))
			}
			return StopResult{}, nil
		}
		pid = p
		adopted = true
	}

	_ = s.term.Terminate(pid, syscall.SIGTERM)
	if s.waitGone(pid, waitDone, adopted, s.stopGrace) {
		s.finalizeStop(root, adopted)
		return StopResult{WasRunning: true, PID: pid}, nil
	}

	s.logger.Warn("graceful stop timed out, escalating", "workspace", root, "pid", pid)
	_ = s.term.Terminate(pid, syscall.SIGKILL)
	if s.waitGone(pid, waitDone, adopted, s.killGrace) {
		s.finalizeStop(root, adopted)
		return StopResult{WasRunning: true, PID: pid}, nil
	}

	// Termination unconfirmed: surface it. The entry reflects reality
	// (still running) so a retried stop goes through the same path.
	e.mu.Lock()
	if owned {
		e.state = StateRunning
	}
	e.mu.Unlock()
	return StopResult{}, &StopFailedError{PID: pid}
}

// waitGone waits for the process to disappear. Owned processes are reaped by
// the monitor goroutine (waitDone); adopted ones are polled.
func (s *Supervisor) waitGone(pid int, waitDone chan struct{}, adopted bool, grace time.Duration) bool {
	if !adopted && waitDone != nil {
		select {
		case <-waitDone:
			return true
		case <-time.After(grace):
			return false
		}
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !pidAlive(pid)
}

// finalizeStop cleans up after a confirmed termination. For owned processes
// the monitor already did everything; adopted ones need it done here.
func (s *Supervisor) finalizeStop(root string, adopted bool) {
	if !adopted {
		return
	}
	removePIDFile(workspace.PIDFile(root))
	appendLogLine(workspace.LogFile(root), fmt.Sprintf("=== Dev Stopped at %s ===", time.Now().Format(time.RFC3339)))
}

// Restart cycles the dev process with a pause between stop and start, giving
// the tool's own cleanup time to finish.
func (s *Supervisor) Restart(ctx context.Context, root string) (StartResult, error) {
	e := s.entryFor(root)
	e.opMu.Lock()
	defer e.opMu.Unlock()
	if _, err := s.stop(ctx, e, root); err != nil {
		return StartResult{}, err
	}
	time.Sleep(s.restartPause)
	res, err := s.start(ctx, e, root)
	if err == nil {
		metrics.IncDevRestart("manual")
	}
	return res, err
}

// Status is read-only except for one self-healing side effect: a PID file
// whose process is gone is deleted on sight.
func (s *Supervisor) Status(root string) Status {
	e := s.entryFor(root)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if e.state == StateRunning && e.pid != 0 {
		pid := e.pid
		started := e.startedAt
		e.mu.Unlock()
		return Status{
			Running: true,
			PID:     pid,
			Uptime:  formatUptime(time.Since(started)),
			LastLog: lastLogLine(root),
		}
	}
	e.mu.Unlock()

	pidPath := workspace.PIDFile(root)
	pid, startUnix, err := readPIDFile(pidPath)
	if err != nil {
		return Status{Running: false}
	}
	if !recordAlive(pid, startUnix) {
		s.logger.Info("removing stale pid file", "workspace", root, "pid", pid)
		removePIDFile(pidPath)
		return Status{Running: false}
	}
	var up time.Duration
	if startUnix > 0 {
		up = time.Since(time.Unix(startUnix, 0))
	} else if fi, statErr := os.Stat(pidPath); statErr == nil {
		// legacy pid file: fall back to mtime
		up = time.Since(fi.ModTime())
	}
	return Status{
		Running: true,
		PID:     pid,
		Uptime:  formatUptime(up),
		LastLog: lastLogLine(root),
	}
}

// RunningCount reports how many supervised dev processes are live in-memory.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.state == StateRunning {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Close releases filesystem watchers. Supervised processes are left running:
// the PID file lets the next hosting process adopt them.
func (s *Supervisor) Close() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.mu.Lock()
		if e.watcher != nil {
			e.watcher.close()
			e.watcher = nil
		}
		e.mu.Unlock()
	}
}

func lastLogLine(root string) string {
	line, err := logtail.LastLine(workspace.LogFile(root))
	if err != nil {
		return ""
	}
	if len(line) > maxLastLogLen {
		line = line[:maxLastLogLen]
	}
	return line
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func startMarker(op string, t time.Time) string {
	return fmt.Sprintf("=== %s Started at %s ===\n", op, t.Format(time.RFC3339))
}

func endMarker(op string, t time.Time, code int) string {
	return fmt.Sprintf("=== %s Ended at %s with code %d ===\n", op, t.Format(time.RFC3339), code)
}

func appendLogLine(path, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = fmt.Fprintln(f, line)
}
