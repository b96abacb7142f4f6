package devserver

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/acastanedez/sst-mcp/internal/metrics"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

// debounceWindow coalesces editor write bursts into one restart.
const debounceWindow = 500 * time.Millisecond

// envWatcher triggers a full stop/start cycle when the workspace env file
// changes. Best effort: a watch failure is logged by the caller, never fatal.
type envWatcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// watchEnvFile watches the workspace root directory rather than the env file
// itself, because editors replace files by rename and that breaks a direct
// file watch.
func (s *Supervisor) watchEnvFile(root string) (*envWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &envWatcher{fsw: fsw, done: make(chan struct{})}
	envPath := workspace.EnvFile(root)
	go w.loop(envPath, func() { s.handleEnvChange(root) }, s)
	return w, nil
}

func (w *envWatcher) loop(envPath string, restart func(), s *Supervisor) {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != envPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warn("env watch error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			restart()
		}
	}
}

func (w *envWatcher) close() {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	_ = w.fsw.Close()
}

// handleEnvChange restarts the dev process if it is still running; a change
// observed after a crash or stop is ignored.
func (s *Supervisor) handleEnvChange(root string) {
	e := s.entryFor(root)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	running := e.state == StateRunning
	e.mu.Unlock()
	if !running {
		return
	}

	s.logger.Info("env file changed, restarting dev process", "workspace", root)
	ctx := context.Background()
	if _, err := s.stop(ctx, e, root); err != nil {
		s.logger.Error("env-change restart: stop failed", "workspace", root, "error", err)
		return
	}
	time.Sleep(s.restartPause)
	if _, err := s.start(ctx, e, root); err != nil {
		s.logger.Error("env-change restart: start failed", "workspace", root, "error", err)
		return
	}
	metrics.IncDevRestart("env_change")
}
