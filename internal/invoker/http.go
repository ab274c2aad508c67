package invoker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/observability"
	"golang.org/x/sync/semaphore"
)

// statusError reports a non-2xx response from an HTTP remote function.
type statusError struct {
	status int
	body   []byte
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote function returned status %d", e.status)
}

// HTTPStatusCode feeds the shared failure classification.
func (e *statusError) HTTPStatusCode() int { return e.status }

type httpTransport struct {
	client  *http.Client
	sem     *semaphore.Weighted
	base    *http.Transport
	url     string
	threads int
}

func (t *httpTransport) close() {
	t.base.CloseIdleConnections()
}

// HTTPInvoker dispatches connector events to a plain HTTP remote
// function. HTTP backends have no one-way invocation mode, so
// fire-and-forget calls still perform the full request round-trip.
type HTTPInvoker struct {
	opts    Options
	retired *retirer

	mu     sync.Mutex // serializes Reconfigure and Shutdown
	closed bool

	cfg       atomic.Pointer[connector.Connector]
	transport atomic.Pointer[httpTransport]
}

// NewHTTPInvoker builds an invoker for the given connector.
func NewHTTPInvoker(cfg *connector.Connector, opts Options) (*HTTPInvoker, error) {
	if cfg.RemoteFunction.Kind != connector.FunctionHTTP {
		return nil, fault.Config(nil, "connector %q: remote function must be of type http, got %q", cfg.ID, cfg.RemoteFunction.Kind)
	}
	opts = opts.withDefaults()
	v := &HTTPInvoker{
		opts:    opts,
		retired: newRetirer(opts.RequestTimeout),
	}
	if err := v.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return v, nil
}

// Reconfigure swaps in a new client generation sized by the concurrency
// policy and retires the previous one after the grace period.
func (v *HTTPInvoker) Reconfigure(cfg *connector.Connector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fault.Config(nil, "connector %q: invoker is shut down", cfg.ID)
	}
	rf := cfg.RemoteFunction
	if rf.Kind != connector.FunctionHTTP {
		return fault.Config(nil, "connector %q: remote function must be of type http, got %q", cfg.ID, rf.Kind)
	}
	u, err := url.Parse(rf.URL)
	if err != nil {
		return fault.Config(err, "connector %q: invalid remote function url %q", cfg.ID, rf.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fault.Config(nil, "connector %q: remote function url must be http or https, got %q", cfg.ID, rf.URL)
	}

	threads := Threads(cfg.Priority, v.opts.GlobalExecutorBudget, cfg.MaxConnections)
	logging.Op().Info("creating http function client",
		"connector", cfg.ID,
		"url", rf.URL,
		"maxConnections", cfg.MaxConnections,
		"priority", cfg.Priority,
		"threads", threads,
		"requestTimeout", v.opts.RequestTimeout,
	)
	metrics.SetConnectorThreads(cfg.ID, threads)

	base := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectionEstablishTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConnsPerHost: threads,
		IdleConnTimeout:     connectionTTL,
	}
	next := &httpTransport{
		client:  &http.Client{Transport: base},
		sem:     semaphore.NewWeighted(int64(threads)),
		base:    base,
		url:     rf.URL,
		threads: threads,
	}
	v.cfg.Store(cfg)
	if prev := v.transport.Swap(next); prev != nil {
		v.retired.retire(prev.close)
	}
	return nil
}

// Invoke dispatches the call asynchronously and returns immediately.
// Aborting an in-flight call goes through the returned handle.
func (v *HTTPInvoker) Invoke(ctx context.Context, call *FunctionCall, callback Callback) *Handle {
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(cancel)
	go v.dispatch(cctx, cancel, call, callback, h)
	return h
}

func (v *HTTPInvoker) dispatch(ctx context.Context, cancel context.CancelFunc, call *FunctionCall, callback Callback, h *Handle) {
	defer cancel()
	metrics.IncActiveInvocations()
	defer metrics.DecActiveInvocations()
	log := logging.Marker(call.Marker)
	id := v.cfg.Load().ID

	ctx, span := observability.StartSpan(ctx, "meridian.invoke",
		observability.AttrConnectorID.String(id),
		observability.AttrFunctionType.String(string(connector.FunctionHTTP)),
		observability.AttrMarker.String(call.Marker),
	)
	defer span.End()

	t := v.transport.Load()
	if t == nil {
		err := fault.Transport(nil, "connector %q: invoker is shut down", id)
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	if err := t.sem.Acquire(ctx, 1); err != nil {
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	defer t.sem.Release(1)

	log.Debug("invoking remote http function", "connector", id, "eventBytes", len(call.Payload))

	rctx, cancelReq := context.WithTimeout(ctx, v.opts.RequestTimeout)
	defer cancelReq()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, t.url, bytes.NewReader(call.Payload))
	if err != nil {
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Meridian-Marker", call.Marker)
	// Hand the trace over to the remote function.
	if tc := observability.ExtractTraceContext(rctx); tc.TraceParent != "" {
		req.Header.Set("traceparent", tc.TraceParent)
		if tc.TraceState != "" {
			req.Header.Set("tracestate", tc.TraceState)
		}
	}

	start := time.Now()
	record := func(success bool, outputSize int, cause error) {
		durationMs := time.Since(start).Milliseconds()
		span.SetAttributes(observability.AttrDurationMs.Int64(durationMs))
		metrics.Global().RecordInvocation(id, string(connector.FunctionHTTP), durationMs, success)
		audit := &logging.InvocationLog{
			Marker:     call.Marker,
			TraceID:    observability.GetTraceID(ctx),
			SpanID:     observability.GetSpanID(ctx),
			Connector:  id,
			Function:   string(connector.FunctionHTTP),
			DurationMs: durationMs,
			Success:    success,
			InputSize:  len(call.Payload),
			OutputSize: outputSize,
		}
		if cause != nil {
			audit.Error = cause.Error()
		}
		logging.Default().Log(audit)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		record(false, 0, err)
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		record(false, 0, err)
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &statusError{status: resp.StatusCode, body: body}
		record(false, 0, err)
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	record(true, len(body), nil)
	observability.SetSpanOK(span)
	if !h.settle() {
		return
	}
	if callback != nil {
		callback(body, nil)
	}
}

// Concurrency returns the thread budget of the active generation.
func (v *HTTPInvoker) Concurrency() int {
	if t := v.transport.Load(); t != nil {
		return t.threads
	}
	return 0
}

// Shutdown retires the active transport. Calls already dispatched keep
// their generation alive through the grace period and still resolve.
func (v *HTTPInvoker) Shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	if t := v.transport.Swap(nil); t != nil {
		v.retired.retire(t.close)
	}
}

func (v *HTTPInvoker) flushRetired() { v.retired.flush() }
