package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acastanedez/sst-mcp/internal/config"
	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/history"
	"github.com/acastanedez/sst-mcp/internal/logger"
	"github.com/acastanedez/sst-mcp/internal/mcpserver"
	"github.com/acastanedez/sst-mcp/internal/metrics"
	"github.com/acastanedez/sst-mcp/internal/server"
	"github.com/acastanedez/sst-mcp/internal/sst"
)

// serve wires everything and blocks on the stdio transport.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, closeLog := logger.New(cfg.Log)
	defer func() { _ = closeLog() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var hist *history.DB
	if cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer func() { _ = hist.Close() }()
		if err := hist.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}

	sup := devserver.New(devserver.Config{
		Tool:      sst.Tool{Bin: cfg.Bin},
		StopGrace: cfg.StopGrace,
		KillGrace: cfg.KillGrace,
		WatchEnv:  cfg.WatchEnv,
		Logger:    log,
	}, devserver.TreeTerminator{})
	defer sup.Close()

	reg := executor.NewRegistry()
	exec := executor.New(reg, log)

	if cfg.HTTPAddr != "" {
		httpSrv, err := server.NewServer(cfg.HTTPAddr, "", sup, reg, hist)
		if err != nil {
			return fmt.Errorf("debug http server: %w", err)
		}
		defer func() { _ = httpSrv.Close() }()
		log.Info("debug http server listening", "addr", cfg.HTTPAddr)
	}

	s := mcpserver.New(mcpserver.Deps{
		Config:     cfg,
		Supervisor: sup,
		Executor:   exec,
		Registry:   reg,
		History:    hist,
		Logger:     log,
	}, Version)

	log.Info("serving MCP over stdio", "version", Version)
	return mcpserver.ServeStdio(s)
}
