package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/acastanedez/sst-mcp/internal/ansi"
	"github.com/acastanedez/sst-mcp/internal/config"
	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/history"
	"github.com/acastanedez/sst-mcp/internal/logtail"
	"github.com/acastanedez/sst-mcp/internal/metrics"
	"github.com/acastanedez/sst-mcp/internal/sst"
	"github.com/acastanedez/sst-mcp/internal/workflow"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

type service struct {
	cfg  config.Config
	sup  *devserver.Supervisor
	exec *executor.Executor
	reg  *executor.Registry
	hist *history.DB
	tool sst.Tool
	log  *slog.Logger
}

func (s *service) register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("sst_dev_start",
		mcp.WithDescription("Start the sst dev server for a workspace. Idempotent: reports the existing process if one is already running."),
		rootArg(),
	), s.handleDevStart)

	srv.AddTool(mcp.NewTool("sst_dev_stop",
		mcp.WithDescription("Stop the workspace's dev server, including one started by a previous host instance."),
		rootArg(),
	), s.handleDevStop)

	srv.AddTool(mcp.NewTool("sst_dev_status",
		mcp.WithDescription("Report whether the dev server is running, its PID, uptime, and the last log line."),
		rootArg(),
	), s.handleDevStatus)

	srv.AddTool(mcp.NewTool("sst_dev_logs",
		mcp.WithDescription("Return the last lines of the workspace dev log."),
		rootArg(),
		mcp.WithNumber("lines", mcp.Description("How many trailing lines to return (default 50).")),
	), s.handleDevLogs)

	srv.AddTool(mcp.NewTool("sst_log_errors",
		mcp.WithDescription("Return only the error-looking lines from the workspace dev log, in original order."),
		rootArg(),
	), s.handleLogErrors)

	srv.AddTool(mcp.NewTool("sst_deploy",
		mcp.WithDescription("Deploy the workspace: stops the dev server, runs sst deploy, and restarts dev on success."),
		rootArg(), stageArg(),
	), s.handleDeploy)

	srv.AddTool(mcp.NewTool("sst_diff",
		mcp.WithDescription("Show what a deploy would change, without deploying."),
		rootArg(), stageArg(),
	), s.handleDiff)

	srv.AddTool(mcp.NewTool("sst_refresh",
		mcp.WithDescription("Refresh local state from the deployed infrastructure."),
		rootArg(), stageArg(),
	), s.handleRefresh)

	srv.AddTool(mcp.NewTool("sst_remove",
		mcp.WithDescription("Remove all deployed resources for the stage. Destructive."),
		rootArg(), stageArg(),
	), s.handleRemove)

	srv.AddTool(mcp.NewTool("sst_unlock",
		mcp.WithDescription("Release a stuck state lock left behind by an interrupted command."),
		rootArg(), stageArg(),
	), s.handleUnlock)

	srv.AddTool(mcp.NewTool("sst_secret_set",
		mcp.WithDescription("Set a secret for the stage. The value is passed through to sst and never logged or stored."),
		rootArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Secret name.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Secret value.")),
		stageArg(),
	), s.handleSecretSet)

	srv.AddTool(mcp.NewTool("sst_secret_list",
		mcp.WithDescription("List secret names for the stage."),
		rootArg(), stageArg(),
	), s.handleSecretList)

	srv.AddTool(mcp.NewTool("sst_secret_remove",
		mcp.WithDescription("Remove a secret from the stage."),
		rootArg(),
		mcp.WithString("name", mcp.Required(), mcp.Description("Secret name.")),
		stageArg(),
	), s.handleSecretRemove)

	srv.AddTool(mcp.NewTool("sst_cancel",
		mcp.WithDescription("Cancel every in-flight command for the workspace."),
		rootArg(),
	), s.handleCancel)

	srv.AddTool(mcp.NewTool("sst_outputs",
		mcp.WithDescription("Return the deployed stack outputs recorded in the workspace state."),
		rootArg(),
	), s.handleOutputs)
}

func rootArg() mcp.ToolOption {
	return mcp.WithString("root", mcp.Required(),
		mcp.Description("Absolute path to the workspace root."))
}

func stageArg() mcp.ToolOption {
	return mcp.WithString("stage",
		mcp.Description("Stage to operate on; falls back to the configured default."))
}

func (s *service) root(req mcp.CallToolRequest) (string, error) {
	raw, err := req.RequireString("root")
	if err != nil {
		return "", err
	}
	return workspace.Resolve(raw)
}

func (s *service) stage(req mcp.CallToolRequest) string {
	if st := req.GetString("stage", ""); st != "" {
		return st
	}
	return s.cfg.Stage
}

// --- Dev server tools ---

func (s *service) handleDevStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_dev_start", err), nil
	}
	res, err := s.sup.Start(ctx, root)
	if err != nil {
		return s.fail("sst_dev_start", err), nil
	}
	metrics.IncToolCall("sst_dev_start", "ok")
	metrics.SetDevRunning(s.sup.RunningCount())
	if res.AlreadyRunning {
		return mcp.NewToolResultText(fmt.Sprintf("dev server already running with pid %d", res.PID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("dev server started with pid %d, logging to %s", res.PID, workspace.LogFile(root))), nil
}

func (s *service) handleDevStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_dev_stop", err), nil
	}
	res, err := s.sup.Stop(ctx, root)
	if err != nil {
		return s.fail("sst_dev_stop", err), nil
	}
	metrics.IncToolCall("sst_dev_stop", "ok")
	metrics.SetDevRunning(s.sup.RunningCount())
	if !res.WasRunning {
		return mcp.NewToolResultText("dev server was not running"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stopped dev server process %d", res.PID)), nil
}

func (s *service) handleDevStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_dev_status", err), nil
	}
	st := s.sup.Status(root)
	metrics.IncToolCall("sst_dev_status", "ok")
	if !st.Running {
		return mcp.NewToolResultText("dev server is not running"), nil
	}
	out := fmt.Sprintf("dev server running with pid %d, uptime %s", st.PID, st.Uptime)
	if st.LastLog != "" {
		out += "\nlast log: " + st.LastLog
	}
	return mcp.NewToolResultText(out), nil
}

func (s *service) handleDevLogs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_dev_logs", err), nil
	}
	n := req.GetInt("lines", 50)
	lines, err := logtail.Tail(workspace.LogFile(root), n)
	if err != nil {
		return s.fail("sst_dev_logs", err), nil
	}
	metrics.IncToolCall("sst_dev_logs", "ok")
	if len(lines) == 0 {
		return mcp.NewToolResultText("log is empty"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *service) handleLogErrors(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_log_errors", err), nil
	}
	lines, err := logtail.FilterErrors(workspace.LogFile(root))
	if err != nil {
		return s.fail("sst_log_errors", err), nil
	}
	metrics.IncToolCall("sst_log_errors", "ok")
	if len(lines) == 0 {
		return mcp.NewToolResultText("no errors found in the dev log"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// --- Infrastructure commands ---

func (s *service) handleDeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_deploy", err), nil
	}
	stage := s.stage(req)
	id := s.recordStart(ctx, "deploy", root, stage)
	started := time.Now()

	res := workflow.Deploy(ctx, workflow.Deps{
		Supervisor: s.sup,
		Executor:   s.exec,
		Tool:       s.tool,
		Timeout:    s.cfg.DeployTimeout,
		StepPause:  s.cfg.StepPause,
		Logger:     s.log,
	}, root, stage)

	metrics.ObserveCommandDuration("deploy", time.Since(started).Seconds())
	metrics.SetDevRunning(s.sup.RunningCount())
	if res.Failed {
		s.recordEnd(ctx, id, 1, errors.New("deploy workflow failed"))
		metrics.IncToolCall("sst_deploy", "error")
		return mcp.NewToolResultError("deploy failed:\n" + res.Render()), nil
	}
	s.recordEnd(ctx, id, 0, nil)
	metrics.IncToolCall("sst_deploy", "ok")
	return mcp.NewToolResultText("deploy succeeded:\n" + res.Render()), nil
}

func (s *service) handleDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runStaged(ctx, req, "sst_diff", "diff", s.tool.Diff)
}

func (s *service) handleRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runStaged(ctx, req, "sst_refresh", "refresh", s.tool.Refresh)
}

func (s *service) handleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runStaged(ctx, req, "sst_remove", "remove", s.tool.Remove)
}

func (s *service) handleUnlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runStaged(ctx, req, "sst_unlock", "unlock", s.tool.Unlock)
}

func (s *service) runStaged(ctx context.Context, req mcp.CallToolRequest, tool, op string, argv func(string) []string) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail(tool, err), nil
	}
	stage := s.stage(req)
	return s.runCommand(ctx, tool, op, argv(stage), root, stage), nil
}

// --- Secrets ---
//
// Secret values flow from the request into the child's argv and nowhere
// else: not into history, not into logs, not into error text.

func (s *service) handleSecretSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_secret_set", err), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return s.fail("sst_secret_set", err), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return s.fail("sst_secret_set", err), nil
	}
	stage := s.stage(req)
	return s.runCommand(ctx, "sst_secret_set", "secret set", s.tool.SecretSet(name, value, stage), root, stage), nil
}

func (s *service) handleSecretList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_secret_list", err), nil
	}
	stage := s.stage(req)
	return s.runCommand(ctx, "sst_secret_list", "secret list", s.tool.SecretList(stage), root, stage), nil
}

func (s *service) handleSecretRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_secret_remove", err), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return s.fail("sst_secret_remove", err), nil
	}
	stage := s.stage(req)
	return s.runCommand(ctx, "sst_secret_remove", "secret remove", s.tool.SecretRemove(name, stage), root, stage), nil
}

// --- State tools ---

func (s *service) handleCancel(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_cancel", err), nil
	}
	n := s.reg.CancelWorkspace(root)
	metrics.IncToolCall("sst_cancel", "ok")
	if n == 0 {
		return mcp.NewToolResultText("no commands running for this workspace"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("canceled %d command(s)", n)), nil
}

func (s *service) handleOutputs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := s.root(req)
	if err != nil {
		return s.fail("sst_outputs", err), nil
	}
	b, err := os.ReadFile(workspace.OutputsFile(root))
	if err != nil {
		if os.IsNotExist(err) {
			return s.fail("sst_outputs", errors.New("no outputs recorded; deploy or start dev first")), nil
		}
		return s.fail("sst_outputs", err), nil
	}
	metrics.IncToolCall("sst_outputs", "ok")
	return mcp.NewToolResultText(string(b)), nil
}

// --- Shared plumbing ---

// runCommand executes one sst subcommand with the configured timeout, records
// it in history, and renders the outcome as a tool result.
func (s *service) runCommand(ctx context.Context, tool, op string, argv []string, root, stage string) *mcp.CallToolResult {
	id := s.recordStart(ctx, op, root, stage)
	started := time.Now()
	res, err := s.exec.Run(ctx, op, executor.Options{
		Argv:      argv,
		Dir:       root,
		Timeout:   s.cfg.CommandTimeout,
		Workspace: root,
	})
	metrics.ObserveCommandDuration(op, time.Since(started).Seconds())
	if err != nil {
		code := 1
		var cmdErr *executor.CommandError
		if errors.As(err, &cmdErr) {
			code = cmdErr.ExitCode
		}
		s.recordEnd(ctx, id, code, err)
		return s.fail(tool, err)
	}
	s.recordEnd(ctx, id, 0, nil)
	metrics.IncToolCall(tool, "ok")
	out := strings.TrimSpace(ansi.Strip(res.Stdout))
	if out == "" {
		out = op + " completed"
	}
	return mcp.NewToolResultText(out)
}

// fail renders err as a tool error and counts it. Executor errors carry
// command output tails; everything else is reported verbatim.
func (s *service) fail(tool string, err error) *mcp.CallToolResult {
	outcome := "error"
	var msg string
	var cmdErr *executor.CommandError
	var toErr *executor.TimeoutError
	var caErr *executor.CanceledError
	var spErr *executor.SpawnError
	var stErr *devserver.StopFailedError
	switch {
	case errors.As(err, &cmdErr):
		msg = fmt.Sprintf("%s failed with exit code %d", cmdErr.Op, cmdErr.ExitCode)
		if tail := strings.TrimSpace(ansi.Strip(cmdErr.Stderr)); tail != "" {
			msg += ":\n" + tail
		}
	case errors.As(err, &toErr):
		outcome = "timeout"
		msg = err.Error()
	case errors.As(err, &caErr):
		outcome = "canceled"
		msg = err.Error()
	case errors.As(err, &spErr):
		msg = err.Error() + "; is the sst CLI installed and on PATH?"
	case errors.As(err, &stErr):
		msg = err.Error()
	default:
		msg = err.Error()
	}
	s.log.Warn("tool call failed", "tool", tool, "error", err)
	metrics.IncToolCall(tool, outcome)
	return mcp.NewToolResultError(msg)
}

func (s *service) recordStart(ctx context.Context, op, root, stage string) int64 {
	if s.hist == nil {
		return 0
	}
	id, err := s.hist.RecordStart(ctx, op, root, stage)
	if err != nil {
		s.log.Warn("history record failed", "op", op, "error", err)
		return 0
	}
	return id
}

func (s *service) recordEnd(ctx context.Context, id int64, code int, runErr error) {
	if s.hist == nil || id == 0 {
		return
	}
	if err := s.hist.RecordEnd(ctx, id, code, runErr); err != nil {
		s.log.Warn("history record failed", "error", err)
	}
}
