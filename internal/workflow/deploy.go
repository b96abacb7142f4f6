package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/acastanedez/sst-mcp/internal/ansi"
	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/sst"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

const defaultStepPause = 2 * time.Second

// Deps carries the collaborators the built-in workflows compose.
type Deps struct {
	Supervisor *devserver.Supervisor
	Executor   *executor.Executor
	Tool       sst.Tool
	// Timeout bounds the deploy command itself.
	Timeout time.Duration
	// StepPause is the fixed delay after the stop and deploy steps.
	StepPause time.Duration
	Logger    *slog.Logger
}

func (d Deps) pause() time.Duration {
	if d.StepPause <= 0 {
		return defaultStepPause
	}
	return d.StepPause
}

// Deploy runs the stop-deploy-start sequence for a workspace. The dev server
// is stopped first so it does not fight the deploy over the local state dir.
// A stop failure is a warning; the workspace may simply have nothing running.
// A deploy failure aborts the workflow and the dev server is left stopped so
// the user sees the failure rather than a half-restarted environment. A start
// failure after a successful deploy is reported but does not fail the deploy.
func Deploy(ctx context.Context, d Deps, root, stage string) Result {
	steps := []Step{
		{
			Label: "stop dev",
			Mode:  FailWarn,
			After: d.pause(),
			Run: func(ctx context.Context) (string, error) {
				res, err := d.Supervisor.Stop(ctx, root)
				if err != nil {
					return "", err
				}
				if !res.WasRunning {
					return "dev was not running", nil
				}
				return fmt.Sprintf("stopped dev process %d", res.PID), nil
			},
		},
		{
			Label: "deploy",
			Mode:  FailAbort,
			After: d.pause(),
			Run: func(ctx context.Context) (string, error) {
				return d.runLogged(ctx, "deploy", d.Tool.Deploy(stage), root)
			},
		},
		{
			Label: "start dev",
			Mode:  FailWarn,
			Run: func(ctx context.Context) (string, error) {
				res, err := d.Supervisor.Start(ctx, root)
				if err != nil {
					return "", err
				}
				if res.AlreadyRunning {
					return fmt.Sprintf("dev already running with pid %d", res.PID), nil
				}
				return fmt.Sprintf("started dev process %d", res.PID), nil
			},
		},
	}
	return Run(ctx, d.Logger, steps)
}

// runLogged executes argv in the workspace and appends its framed output to
// the workspace log, so long-lived commands leave the same audit trail the
// dev server does.
func (d Deps) runLogged(ctx context.Context, op string, argv []string, root string) (string, error) {
	appendSection(root, fmt.Sprintf("=== %s Started at %s ===", titled(op), time.Now().Format(time.RFC3339)))
	res, err := d.Executor.Run(ctx, op, executor.Options{
		Argv:      argv,
		Dir:       root,
		Timeout:   d.Timeout,
		Workspace: root,
	})
	code := res.ExitCode
	out := res.Stdout + res.Stderr
	var cmdErr *executor.CommandError
	if errors.As(err, &cmdErr) {
		code = cmdErr.ExitCode
		out = cmdErr.Stdout + cmdErr.Stderr
	}
	if out = strings.TrimSpace(ansi.Strip(out)); out != "" {
		appendSection(root, out)
	}
	appendSection(root, fmt.Sprintf("=== %s Ended at %s with code %d ===", titled(op), time.Now().Format(time.RFC3339), code))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s completed", op), nil
}

func appendSection(root, text string) {
	if err := os.MkdirAll(workspace.StateDir(root), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(workspace.LogFile(root), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = f.WriteString(text + "\n")
}

func titled(op string) string {
	if op == "" {
		return op
	}
	return strings.ToUpper(op[:1]) + op[1:]
}
