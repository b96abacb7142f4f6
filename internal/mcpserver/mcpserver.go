// Package mcpserver wires the dev supervisor, command executor, and history
// store into an MCP server speaking stdio. This is the composition root: it
// creates the server instance and registers every tool; no business logic
// lives here.
//
// The MCP transport owns stdout. Nothing in the host may write to stdout
// except the protocol itself; subprocess output mirrors to stderr.
package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acastanedez/sst-mcp/internal/config"
	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/history"
	"github.com/acastanedez/sst-mcp/internal/sst"
)

// Deps carries the collaborators the tool handlers use. History may be nil
// when the audit trail is disabled.
type Deps struct {
	Config     config.Config
	Supervisor *devserver.Supervisor
	Executor   *executor.Executor
	Registry   *executor.Registry
	History    *history.DB
	Logger     *slog.Logger
}

// New creates the MCP server with all tools registered.
func New(d Deps, version string) *server.MCPServer {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := server.NewMCPServer(
		"sst-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	svc := &service{
		cfg:  d.Config,
		sup:  d.Supervisor,
		exec: d.Executor,
		reg:  d.Registry,
		hist: d.History,
		tool: sst.Tool{Bin: d.Config.Bin},
		log:  d.Logger,
	}
	svc.register(s)
	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout until the
// client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

const instructions = `Manages SST workspaces: a supervised "sst dev" server per workspace plus
deploy, diff, refresh, remove, secret, and state tools. Every tool takes an
absolute workspace root. Long commands run with timeouts and can be canceled
with sst_cancel. Dev server output is captured to .sst/dev.log inside the
workspace; use sst_dev_logs and sst_log_errors to inspect it.`
