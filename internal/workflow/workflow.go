// Package workflow sequences supervisor and executor operations into named
// multi-step workflows with step-level error capture. Every step's outcome
// lands in the log whether it succeeded or not; the failure mode decides
// whether the workflow aborts or carries on.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// FailureMode decides what a step failure does to the rest of the workflow.
type FailureMode int

const (
	// FailAbort stops the workflow and marks the result failed.
	FailAbort FailureMode = iota
	// FailWarn records the failure and continues; the workflow can still
	// succeed overall.
	FailWarn
)

// Step is one unit of a workflow.
type Step struct {
	Label string
	Mode  FailureMode
	// After is a fixed pause once the step completes, giving the external
	// tool's own cleanup time to finish. Fixed by design: the tool exposes
	// no signal to poll for.
	After time.Duration
	Run   func(ctx context.Context) (string, error)
}

// Outcome records one step's result.
type Outcome struct {
	Label   string `json:"label"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Result is the accumulated outcome log of one workflow invocation.
type Result struct {
	Failed bool      `json:"failed"`
	Steps  []Outcome `json:"steps"`
}

// Render formats the outcome log for a human reader.
func (r Result) Render() string {
	var b strings.Builder
	for _, s := range r.Steps {
		mark := "✓"
		if !s.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, s.Label, s.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run executes steps strictly in order. A FailAbort failure returns
// immediately with the log accumulated so far; a FailWarn failure is
// recorded and the workflow proceeds.
func Run(ctx context.Context, logger *slog.Logger, steps []Step) Result {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result
	for _, st := range steps {
		msg, err := st.Run(ctx)
		if err != nil {
			logger.Warn("workflow step failed", "step", st.Label, "error", err)
			res.Steps = append(res.Steps, Outcome{Label: st.Label, OK: false, Message: err.Error()})
			if st.Mode == FailAbort {
				res.Failed = true
				return res
			}
		} else {
			logger.Info("workflow step done", "step", st.Label)
			res.Steps = append(res.Steps, Outcome{Label: st.Label, OK: true, Message: msg})
		}
		if st.After > 0 {
			select {
			case <-time.After(st.After):
			case <-ctx.Done():
				res.Failed = true
				res.Steps = append(res.Steps, Outcome{Label: st.Label, OK: false, Message: ctx.Err().Error()})
				return res
			}
		}
	}
	return res
}
