package admin

import (
	"context"
	"sync"

	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/observability"
)

// Inbound is one message arriving over the cluster transport, together
// with the trace context of the publishing node.
type Inbound struct {
	Trace observability.TraceContext
	Data  []byte
}

// Transport moves encoded admin messages between the nodes of one
// cluster. Implementations must not deliver a node's own frames back
// to it.
type Transport interface {
	Publish(ctx context.Context, data []byte) error
	Subscribe(ctx context.Context) <-chan Inbound
	Close() error
}

const hubBuffer = 64

// ChannelHub is an in-process transport connecting the endpoints of a
// single process. It backs single-node deployments and tests.
type ChannelHub struct {
	mu        sync.Mutex
	closed    bool
	endpoints []*hubEndpoint
}

func NewChannelHub() *ChannelHub {
	return &ChannelHub{}
}

// Endpoint attaches a new node to the hub and returns its transport.
func (h *ChannelHub) Endpoint() Transport {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := &hubEndpoint{hub: h, ch: make(chan Inbound, hubBuffer)}
	if h.closed {
		e.closed = true
		close(e.ch)
		return e
	}
	h.endpoints = append(h.endpoints, e)
	return e
}

func (h *ChannelHub) broadcast(from *hubEndpoint, in Inbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.endpoints {
		if e == from || e.closed {
			continue
		}
		select {
		case e.ch <- in:
		default:
			logging.Op().Warn("admin hub endpoint is not keeping up, dropping message")
			metrics.Global().RecordAdminDropped("backpressure")
		}
	}
}

// Close detaches every endpoint and closes their channels.
func (h *ChannelHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, e := range h.endpoints {
		if !e.closed {
			e.closed = true
			close(e.ch)
		}
	}
	h.endpoints = nil
	return nil
}

type hubEndpoint struct {
	hub    *ChannelHub
	ch     chan Inbound
	closed bool
}

func (e *hubEndpoint) Publish(ctx context.Context, data []byte) error {
	e.hub.broadcast(e, Inbound{Trace: observability.ExtractTraceContext(ctx), Data: data})
	return nil
}

func (e *hubEndpoint) Subscribe(ctx context.Context) <-chan Inbound {
	return e.ch
}

func (e *hubEndpoint) Close() error {
	h := e.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.ch)
	for i, other := range h.endpoints {
		if other == e {
			h.endpoints = append(h.endpoints[:i], h.endpoints[i+1:]...)
			break
		}
	}
	return nil
}
