// Package server exposes a small debug HTTP surface over the running host:
// dev server status and control, log tailing, command history, and Prometheus
// metrics. It is optional and meant for a loopback address; the MCP transport
// stays the primary interface.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acastanedez/sst-mcp/internal/devserver"
	"github.com/acastanedez/sst-mcp/internal/executor"
	"github.com/acastanedez/sst-mcp/internal/history"
	"github.com/acastanedez/sst-mcp/internal/logtail"
	"github.com/acastanedez/sst-mcp/internal/metrics"
	"github.com/acastanedez/sst-mcp/internal/workspace"
)

// Router provides embeddable HTTP handlers over the dev supervisor.
// Endpoints:
//
//	GET  {basePath}/status       query: root=...
//	GET  {basePath}/logs         query: root=...&lines=N
//	GET  {basePath}/errors       query: root=...
//	GET  {basePath}/history      query: root=... (optional) &limit=N
//	GET  {basePath}/ops
//	POST {basePath}/dev/start    query: root=...
//	POST {basePath}/dev/stop     query: root=...
//	GET  {basePath}/metrics
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *devserver.Supervisor
	reg      *executor.Registry // nil hides the ops endpoint
	hist     *history.DB        // nil when history is disabled
	basePath string
}

// NewRouter constructs a Router with configurable basePath.
func NewRouter(sup *devserver.Supervisor, reg *executor.Registry, hist *history.DB, basePath string) *Router {
	return &Router{sup: sup, reg: reg, hist: hist, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/logs", r.handleLogs)
	group.GET("/errors", r.handleErrors)
	group.GET("/history", r.handleHistory)
	group.GET("/ops", r.handleOps)
	group.POST("/dev/start", r.handleDevStart)
	group.POST("/dev/stop", r.handleDevStop)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Call Close on the returned server to shut it down.
func NewServer(addr, basePath string, sup *devserver.Supervisor, reg *executor.Registry, hist *history.DB) (*http.Server, error) {
	r := NewRouter(sup, reg, hist, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) workspaceRoot(c *gin.Context) (string, bool) {
	root, err := workspace.Resolve(c.Query("root"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return "", false
	}
	return root, true
}

func (r *Router) handleStatus(c *gin.Context) {
	root, ok := r.workspaceRoot(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, r.sup.Status(root))
}

func (r *Router) handleLogs(c *gin.Context) {
	root, ok := r.workspaceRoot(c)
	if !ok {
		return
	}
	n := 50
	if s := c.Query("lines"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			n = v
		}
	}
	lines, err := logtail.Tail(workspace.LogFile(root), n)
	if err != nil {
		code := http.StatusInternalServerError
		if err == logtail.ErrNoLog {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"lines": lines})
}

func (r *Router) handleErrors(c *gin.Context) {
	root, ok := r.workspaceRoot(c)
	if !ok {
		return
	}
	lines, err := logtail.FilterErrors(workspace.LogFile(root))
	if err != nil {
		code := http.StatusInternalServerError
		if err == logtail.ErrNoLog {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"lines": lines})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.hist == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "history is disabled"})
		return
	}
	ws := ""
	if c.Query("root") != "" {
		root, ok := r.workspaceRoot(c)
		if !ok {
			return
		}
		ws = root
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			limit = v
		}
	}
	recs, err := r.hist.Recent(c.Request.Context(), ws, limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleOps(c *gin.Context) {
	if r.reg == nil {
		writeJSON(c, http.StatusOK, []executor.ActiveOp{})
		return
	}
	writeJSON(c, http.StatusOK, r.reg.Active())
}

func (r *Router) handleDevStart(c *gin.Context) {
	root, ok := r.workspaceRoot(c)
	if !ok {
		return
	}
	res, err := r.sup.Start(c.Request.Context(), root)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleDevStop(c *gin.Context) {
	root, ok := r.workspaceRoot(c)
	if !ok {
		return
	}
	res, err := r.sup.Stop(c.Request.Context(), root)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, res)
}
