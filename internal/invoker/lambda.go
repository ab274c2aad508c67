package invoker

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/google/uuid"
	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/observability"
	"golang.org/x/sync/semaphore"
)

// lambdaTransport is one immutable client generation. Reconfiguration
// replaces the whole generation, never mutates it, so concurrent calls
// always see a consistent client and budget.
type lambdaTransport struct {
	client  *lambda.Client
	sem     *semaphore.Weighted
	base    *http.Transport
	arn     string
	threads int
}

func (t *lambdaTransport) close() {
	t.base.CloseIdleConnections()
}

// LambdaInvoker dispatches connector events to an AWS Lambda function.
// Backend calls run with zero low-level retries; retrying is a policy
// decision left to callers.
type LambdaInvoker struct {
	opts    Options
	creds   *CredentialResolver
	retired *retirer

	mu     sync.Mutex // serializes Reconfigure and Shutdown
	closed bool

	cfg       atomic.Pointer[connector.Connector]
	transport atomic.Pointer[lambdaTransport]
}

// NewLambdaInvoker builds an invoker for the given connector.
// Credentials resolve lazily at the first dispatched call; a role
// change on Reconfigure swaps in a fresh resolver.
func NewLambdaInvoker(cfg *connector.Connector, opts Options) (*LambdaInvoker, error) {
	if cfg.RemoteFunction.Kind != connector.FunctionAWSLambda {
		return nil, fault.Config(nil, "connector %q: remote function must be of type awsLambda, got %q", cfg.ID, cfg.RemoteFunction.Kind)
	}
	opts = opts.withDefaults()
	v := &LambdaInvoker{
		opts:    opts,
		creds:   NewCredentialResolver(cfg.RemoteFunction.RoleARN, sessionName()),
		retired: newRetirer(opts.RequestTimeout),
	}
	if err := v.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return v, nil
}

// sessionName returns a per-instance role session name, keeping the
// sessions of concurrently active invokers distinguishable.
func sessionName() string {
	return "meridian-" + uuid.NewString()[:8]
}

// RegionFromARN extracts the region of a colon-delimited Lambda
// function ARN, which carries the region in its fourth field.
func RegionFromARN(arn string) (string, error) {
	parts := strings.Split(arn, ":")
	if len(parts) < 4 || parts[3] == "" {
		return "", fault.Config(nil, "malformed lambda ARN %q: missing region field", arn)
	}
	return parts[3], nil
}

// Reconfigure validates the new connector snapshot, builds a client
// generation sized by the concurrency policy, installs it, and retires
// the previous generation after one request-timeout grace period.
// Serialized against itself and Shutdown; concurrent Invoke calls keep
// running and may observe either generation.
func (v *LambdaInvoker) Reconfigure(cfg *connector.Connector) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return fault.Config(nil, "connector %q: invoker is shut down", cfg.ID)
	}
	rf := cfg.RemoteFunction
	if rf.Kind != connector.FunctionAWSLambda {
		return fault.Config(nil, "connector %q: remote function must be of type awsLambda, got %q", cfg.ID, rf.Kind)
	}
	region, err := RegionFromARN(rf.LambdaARN)
	if err != nil {
		return err
	}
	// Credentials are cached per resolver, so a changed role needs a
	// fresh one. In-flight calls keep the resolver of their generation.
	if prev := v.cfg.Load(); prev != nil && prev.RemoteFunction.RoleARN != rf.RoleARN {
		v.creds = NewCredentialResolver(rf.RoleARN, sessionName())
	}

	threads := Threads(cfg.Priority, v.opts.GlobalExecutorBudget, cfg.MaxConnections)
	logging.Op().Info("creating lambda function client",
		"connector", cfg.ID,
		"region", region,
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
	client := lambda.New(lambda.Options{
		Region:      region,
		Credentials: v.creds,
		HTTPClient:  &http.Client{Transport: base},
		Retryer:     aws.NopRetryer{},
	})

	next := &lambdaTransport{
		client:  client,
		sem:     semaphore.NewWeighted(int64(threads)),
		base:    base,
		arn:     rf.LambdaARN,
		threads: threads,
	}
	v.cfg.Store(cfg)
	if prev := v.transport.Swap(next); prev != nil {
		v.retired.retire(prev.close)
	}
	return nil
}

// Invoke dispatches the call asynchronously and returns immediately.
// The call's lifetime is bound to the request timeout, not to ctx
// cancellation, so a caller returning early does not abort a
// fire-and-forget dispatch; aborting goes through the returned handle.
func (v *LambdaInvoker) Invoke(ctx context.Context, call *FunctionCall, callback Callback) *Handle {
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(cancel)
	go v.dispatch(cctx, cancel, call, callback, h)
	return h
}

func (v *LambdaInvoker) dispatch(ctx context.Context, cancel context.CancelFunc, call *FunctionCall, callback Callback, h *Handle) {
	defer cancel()
	metrics.IncActiveInvocations()
	defer metrics.DecActiveInvocations()
	log := logging.Marker(call.Marker)
	id := v.cfg.Load().ID

	ctx, span := observability.StartSpan(ctx, "meridian.invoke",
		observability.AttrConnectorID.String(id),
		observability.AttrFunctionType.String(string(connector.FunctionAWSLambda)),
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
		// Only cancellation can interrupt the queue wait; the handle
		// then suppresses any resolution.
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	defer t.sem.Release(1)

	log.Debug("invoking remote lambda function", "connector", id, "eventBytes", len(call.Payload))

	invocationType := types.InvocationTypeRequestResponse
	if call.FireAndForget {
		invocationType = types.InvocationTypeEvent
	}
	rctx, cancelReq := context.WithTimeout(ctx, v.opts.RequestTimeout)
	defer cancelReq()

	start := time.Now()
	out, err := t.client.Invoke(rctx, &lambda.InvokeInput{
		FunctionName:   aws.String(t.arn),
		Payload:        call.Payload,
		InvocationType: invocationType,
	})
	durationMs := time.Since(start).Milliseconds()
	span.SetAttributes(observability.AttrDurationMs.Int64(durationMs))

	audit := &logging.InvocationLog{
		Marker:     call.Marker,
		TraceID:    observability.GetTraceID(ctx),
		SpanID:     observability.GetSpanID(ctx),
		Connector:  id,
		Function:   string(connector.FunctionAWSLambda),
		DurationMs: durationMs,
		InputSize:  len(call.Payload),
	}
	if err != nil {
		metrics.Global().RecordInvocation(id, string(connector.FunctionAWSLambda), durationMs, false)
		audit.Error = err.Error()
		logging.Default().Log(audit)
		observability.SetSpanError(span, err)
		resolveFailure(call, callback, h, log, id, err)
		return
	}
	metrics.Global().RecordInvocation(id, string(connector.FunctionAWSLambda), durationMs, true)
	audit.Success = true
	audit.OutputSize = len(out.Payload)
	logging.Default().Log(audit)
	observability.SetSpanOK(span)
	if !h.settle() {
		return
	}
	if callback != nil {
		callback(out.Payload, nil)
	}
}

// Concurrency returns the thread budget of the active generation.
func (v *LambdaInvoker) Concurrency() int {
	if t := v.transport.Load(); t != nil {
		return t.threads
	}
	return 0
}

// Shutdown retires the active transport. Calls already dispatched keep
// their generation alive through the grace period and still resolve.
func (v *LambdaInvoker) Shutdown() {
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

func (v *LambdaInvoker) flushRetired() { v.retired.flush() }
