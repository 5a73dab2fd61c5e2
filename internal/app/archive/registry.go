package archive

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/pvarchive/internal/ports"
)

// Handle is an in-flight statement that can be asked to abort.
type Handle interface {
	Cancel() error
}

// Registry tracks every in-flight statement of an engine so that CancelAll
// can abort blocking network calls. Closing a connection does not stop a
// running query on every backend; cancelling the statement does.
type Registry struct {
	mu      sync.Mutex
	handles map[Handle]struct{}
	obs     ports.Observability
}

func NewRegistry(obs ports.Observability) *Registry {
	return &Registry{handles: make(map[Handle]struct{}), obs: obs}
}

func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	r.handles[h] = struct{}{}
	n := len(r.handles)
	r.mu.Unlock()
	r.obs.SetGauge("pvarchive_inflight_statements", float64(n))
}

func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	delete(r.handles, h)
	n := len(r.handles)
	r.mu.Unlock()
	r.obs.SetGauge("pvarchive_inflight_statements", float64(n))
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CancelAll cancels every registered handle and clears the set. A failing
// handle is logged and does not stop the others from being cancelled.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for h := range r.handles {
		if err := h.Cancel(); err != nil {
			r.obs.LogWarn("statement_cancel_failed", err, ports.Field{Key: "statement", Value: h})
			continue
		}
		n++
	}
	clear(r.handles)
	r.obs.SetGauge("pvarchive_inflight_statements", 0)
	if n > 0 {
		r.obs.IncCounter("pvarchive_cancellations_total", float64(n))
	}
	return n
}

// Statement is the Handle the engine registers for each query it runs. It
// owns the query's context; Cancel aborts the query through the driver.
type Statement struct {
	label  string
	cancel context.CancelFunc
	reg    *Registry
	once   sync.Once
}

// Begin derives a cancellable context for one statement and registers it.
// A positive timeout bounds the statement. Done must be called on every path.
func (r *Registry) Begin(ctx context.Context, label string, timeout time.Duration) (context.Context, *Statement) {
	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	st := &Statement{label: label, cancel: cancel, reg: r}
	r.Register(st)
	return sctx, st
}

func (s *Statement) Cancel() error {
	s.cancel()
	return nil
}

// Done unregisters the statement and releases its context. Safe to call
// more than once.
func (s *Statement) Done() {
	s.once.Do(func() {
		s.reg.Unregister(s)
		s.cancel()
	})
}

func (s *Statement) String() string { return s.label }
