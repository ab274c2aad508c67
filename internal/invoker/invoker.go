// Package invoker dispatches data-processing events to the remote
// functions bound to connectors. Each connector gets one Invoker that
// owns the backend transport, bounds in-flight calls by the connector's
// share of the hub-wide dispatch budget, and normalizes backend
// failures into the shared error taxonomy.
package invoker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/meridian/internal/connector"
)

const (
	// MinThreadsPerClient guarantees minimal service to every connector,
	// even at zero priority.
	MinThreadsPerClient = 5

	// connectionEstablishTimeout fails fast when a backend is unreachable.
	connectionEstablishTimeout = 5 * time.Second
	// connectionTTL bounds how long pooled backend connections are reused.
	connectionTTL = 60 * time.Second

	defaultGlobalExecutorBudget = 32
	defaultRequestTimeout       = 25 * time.Second
)

// Options carries the hub-wide dispatch settings shared by all invokers.
type Options struct {
	// GlobalExecutorBudget is the total dispatch capacity apportioned
	// across connectors by their priorities.
	GlobalExecutorBudget int
	// RequestTimeout bounds one backend call end to end. It also sets
	// the grace period before a replaced transport is torn down.
	RequestTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.GlobalExecutorBudget <= 0 {
		o.GlobalExecutorBudget = defaultGlobalExecutorBudget
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	return o
}

// FunctionCall is one invocation request for a connector's remote
// function. The payload is opaque to the dispatch layer.
type FunctionCall struct {
	Payload []byte
	// Marker correlates all log lines of this call.
	Marker string
	// FireAndForget requests an invocation whose result the caller does
	// not await.
	FireAndForget bool
}

// Callback receives the backend response or the normalized failure.
// Exactly one resolution happens per dispatched call, unless the call
// is cancelled first, in which case none happens.
type Callback func(response []byte, err error)

// Invoker is the dispatch client for one connector.
type Invoker interface {
	// Invoke dispatches the call asynchronously and returns immediately.
	// All failures flow to the callback; with a nil callback they are
	// logged only. The returned handle cancels the in-flight call.
	Invoke(ctx context.Context, call *FunctionCall, callback Callback) *Handle
	// Reconfigure swaps the connector snapshot, rebuilds the transport
	// under the new concurrency budget and retires the previous one
	// after a request-timeout grace period.
	Reconfigure(cfg *connector.Connector) error
	// Shutdown retires the active transport. In-flight calls still
	// resolve within the grace period.
	Shutdown()
}

// Threads computes the dispatch concurrency for one connector:
// the connector's priority share of the global budget, floored at
// MinThreadsPerClient and capped by the connector's connection limit.
func Threads(priority float64, globalBudget, maxConnections int) int {
	desired := int(priority * float64(globalBudget))
	if desired < MinThreadsPerClient {
		desired = MinThreadsPerClient
	}
	if desired > maxConnections {
		return maxConnections
	}
	return desired
}

const (
	handlePending int32 = iota
	handleSettled
	handleCancelled
)

// Handle tracks one dispatched call. Cancel aborts the underlying
// network operation without blocking; once cancelled, the call's
// callback never resolves.
type Handle struct {
	state  atomic.Int32
	cancel context.CancelFunc
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel}
}

// Cancel aborts the call if it has not resolved yet. Safe to call more
// than once and after resolution, where it has no effect.
func (h *Handle) Cancel() {
	if h.state.CompareAndSwap(handlePending, handleCancelled) {
		if h.cancel != nil {
			h.cancel()
		}
	}
}

// Cancelled reports whether Cancel won the race against resolution.
func (h *Handle) Cancelled() bool {
	return h.state.Load() == handleCancelled
}

// settle claims the exclusive right to resolve the callback. It fails
// when the call was cancelled first.
func (h *Handle) settle() bool {
	return h.state.CompareAndSwap(handlePending, handleSettled)
}

// retirer tears replaced transports down only after the grace period,
// so calls dispatched just before a swap are not aborted mid-flight.
type retirer struct {
	grace time.Duration

	mu      sync.Mutex
	pending map[*time.Timer]func()
}

func newRetirer(grace time.Duration) *retirer {
	return &retirer{grace: grace, pending: make(map[*time.Timer]func())}
}

func (r *retirer) retire(teardown func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(r.grace, func() {
		teardown()
		r.mu.Lock()
		delete(r.pending, t)
		r.mu.Unlock()
	})
	r.pending[t] = teardown
}

// flush stops all pending timers and runs their teardowns immediately.
// Used on final process shutdown, where no grace period is wanted.
func (r *retirer) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, teardown := range r.pending {
		if t.Stop() {
			teardown()
		}
		delete(r.pending, t)
	}
}
