package sstmcp

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/acastanedez/sst-mcp/internal/config"
	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/history"
	"github.com/acastanedez/sst-mcp/internal/metrics"
	iapi "github.com/acastanedez/sst-mcp/internal/server"
	"github.com/acastanedez/sst-mcp/internal/sst"
	"github.com/acastanedez/sst-mcp/internal/workflow"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type DevStatus = devserver.Status

type StartResult = devserver.StartResult

type StopResult = devserver.StopResult

type WorkflowResult = workflow.Result

type HistoryRecord = history.Record

// Supervisor is a thin facade over internal/devserver.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *devserver.Supervisor }

// NewSupervisor builds a dev-server supervisor from cfg.
func NewSupervisor(c Config) *Supervisor {
	return &Supervisor{inner: devserver.New(devserver.Config{
		Tool:      sst.Tool{Bin: c.Bin},
		StopGrace: c.StopGrace,
		KillGrace: c.KillGrace,
		WatchEnv:  c.WatchEnv,
	}, nil)}
}

func (s *Supervisor) Start(ctx context.Context, root string) (StartResult, error) {
	return s.inner.Start(ctx, root)
}
func (s *Supervisor) Stop(ctx context.Context, root string) (StopResult, error) {
	return s.inner.Stop(ctx, root)
}
func (s *Supervisor) Restart(ctx context.Context, root string) (StartResult, error) {
	return s.inner.Restart(ctx, root)
}
func (s *Supervisor) Status(root string) DevStatus { return s.inner.Status(root) }
func (s *Supervisor) Close()                       { s.inner.Close() }

// Deploy runs the stop-deploy-start workflow for a workspace.
func (s *Supervisor) Deploy(ctx context.Context, c Config, root, stage string) WorkflowResult {
	reg := executor.NewRegistry()
	return workflow.Deploy(ctx, workflow.Deps{
		Supervisor: s.inner,
		Executor:   executor.New(reg, nil),
		Tool:       sst.Tool{Bin: c.Bin},
		Timeout:    c.DeployTimeout,
		StepPause:  c.StepPause,
	}, root, stage)
}

// LoadConfig reads the TOML config at path; an empty path returns defaults.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewHTTPServer starts the debug HTTP server exposing status, logs, history,
// and metrics for the given supervisor.
func NewHTTPServer(addr, basePath string, s *Supervisor, h *history.DB) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, s.inner, nil, h)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
