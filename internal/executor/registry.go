package executor

import (
	"context"
	"sync"
	"sync/atomic"
)

// Handle is the cancellation handle for one in-flight operation. It is
// returned directly at registration, so cancellation needs no key lookup;
// the registry only exists so a whole workspace's operations can be
// canceled by an external shutdown.
type Handle struct {
	ID        uint64
	Op        string
	Workspace string
	cancel    context.CancelFunc
	canceled  atomic.Bool
}

// Cancel terminates the underlying process and unblocks the waiting caller
// with a CanceledError. Safe to call more than once.
func (h *Handle) Cancel() {
	h.canceled.Store(true)
	h.cancel()
}

func (h *Handle) Canceled() bool { return h.canceled.Load() }

// Registry tracks live operation handles. Entries are removed on every
// completion path so the table stays bounded.
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	handles map[uint64]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[uint64]*Handle)}
}

func (r *Registry) register(op, workspace string, cancel context.CancelFunc) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	h := &Handle{ID: r.seq, Op: op, Workspace: workspace, cancel: cancel}
	r.handles[h.ID] = h
	return h
}

func (r *Registry) remove(h *Handle) {
	r.mu.Lock()
	delete(r.handles, h.ID)
	r.mu.Unlock()
}

// CancelWorkspace cancels every in-flight operation registered for the
// workspace and returns how many were canceled.
func (r *Registry) CancelWorkspace(workspace string) int {
	r.mu.Lock()
	var matched []*Handle
	for _, h := range r.handles {
		if h.Workspace == workspace {
			matched = append(matched, h)
		}
	}
	r.mu.Unlock()
	for _, h := range matched {
		h.Cancel()
	}
	return len(matched)
}

// ActiveOp describes one in-flight operation for status surfaces.
type ActiveOp struct {
	ID        uint64 `json:"id"`
	Op        string `json:"op"`
	Workspace string `json:"workspace"`
}

func (r *Registry) Active() []ActiveOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActiveOp, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, ActiveOp{ID: h.ID, Op: h.Op, Workspace: h.Workspace})
	}
	return out
}
