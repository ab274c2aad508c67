package admin

import (
	"context"
	"fmt"

	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/node"
	"github.com/oriys/meridian/internal/observability"
)

// BrokerConfig wires a Broker to its node identity and collaborators.
type BrokerConfig struct {
	// Own is the identity of this node. Required.
	Own node.Identity
	// Codec translates messages to the wire. Nil selects the default
	// codec with the built-in message types.
	Codec *Codec
	// Transport fans messages out to the local cluster. Required.
	Transport Transport
	// Relay forwards globally relayed messages to remote clusters.
	// Nil disables cross-cluster relay.
	Relay *RelayClient
	// Target is the node-local state messages act on.
	Target *Target
}

// Broker routes admin messages between the local node, the local
// cluster and remote clusters.
type Broker struct {
	own       node.Identity
	codec     *Codec
	transport Transport
	relay     *RelayClient
	target    *Target
}

func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if cfg.Own.IsZero() {
		return nil, fault.Config(nil, "message broker requires a node identity")
	}
	if cfg.Transport == nil {
		return nil, fault.Config(nil, "message broker requires a cluster transport")
	}
	codec := cfg.Codec
	if codec == nil {
		codec = NewCodec()
	}
	target := cfg.Target
	if target == nil {
		target = &Target{}
	}
	return &Broker{
		own:       cfg.Own,
		codec:     codec,
		transport: cfg.Transport,
		relay:     cfg.Relay,
		target:    target,
	}, nil
}

// Own returns the identity the broker routes for.
func (b *Broker) Own() node.Identity { return b.own }

// Send routes a message: fan-out to the local cluster unless it is
// addressed to this node, cross-cluster relay when flagged for it, and
// always local delivery of the original message. Local delivery
// happens even when serialization or publication fails, so a node
// never misses its own announcements.
func (b *Broker) Send(ctx context.Context, msg Message) error {
	meta := msg.Routing()
	if meta.Source.IsZero() {
		meta.Source = b.own
	}
	var sendErr error
	if meta.Destination != b.own {
		if data, err := b.codec.Encode(msg); err != nil {
			logging.Op().Error("cannot serialize admin message, delivering locally only",
				"type", typeName(msg), "error", err)
			sendErr = err
		} else if err := b.transport.Publish(ctx, data); err != nil {
			logging.Op().Error("cannot publish admin message to the cluster",
				"type", typeName(msg), "error", err)
			sendErr = err
		} else {
			metrics.Global().RecordAdminSent(b.label(msg))
			b.maybeRelay(ctx, msg)
		}
	}
	b.Receive(ctx, msg)
	return sendErr
}

// maybeRelay forwards a copy of the message to the remote clusters.
// The copy drops the global flag and opts in to local delivery on the
// receiving side, so the ingress node there processes it too. The
// original message is never mutated.
func (b *Broker) maybeRelay(ctx context.Context, msg Message) {
	if b.relay == nil {
		return
	}
	rel, ok := msg.(Relayable)
	if !ok || !rel.Flags().GlobalRelay {
		return
	}
	clone, err := b.codec.Clone(msg)
	if err != nil {
		logging.Op().Error("cannot copy admin message for relay", "type", typeName(msg), "error", err)
		return
	}
	flags := clone.(Relayable).Flags()
	flags.GlobalRelay = false
	flags.Relay = true
	clone.Routing().BroadcastIncludeLocalNode = true
	data, err := b.codec.Encode(clone)
	if err != nil {
		logging.Op().Error("cannot serialize admin message for relay", "type", typeName(msg), "error", err)
		return
	}
	go b.relay.Send(context.WithoutCancel(ctx), data)
}

// Receive applies the delivery rule and, when the message is for this
// node, runs its handler. A zero source is a protocol violation and
// panics; handler failures are contained and logged.
func (b *Broker) Receive(ctx context.Context, msg Message) {
	meta := msg.Routing()
	if meta.Source.IsZero() {
		panic("admin: the source node of the admin message must be defined")
	}
	broadcast := meta.Destination.IsZero() && (meta.Source != b.own || meta.BroadcastIncludeLocalNode)
	if !broadcast && meta.Destination != b.own {
		return
	}
	metrics.Global().RecordAdminReceived(b.label(msg))
	b.deliver(ctx, msg)
}

func (b *Broker) deliver(ctx context.Context, msg Message) {
	ctx, span := observability.StartSpan(ctx, "meridian.admin.handle",
		observability.AttrMessageType.String(b.label(msg)),
		observability.AttrNodeID.String(b.own.String()),
	)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("admin message handler panicked",
				"type", typeName(msg), "message", msg, "panic", r)
			observability.SetSpanError(span, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := msg.Handle(ctx, b.target); err != nil {
		logging.Op().Error("admin message handler failed",
			"type", typeName(msg), "message", msg, "error", err)
		observability.SetSpanError(span, err)
	}
}

// ReceiveRaw decodes a wire message and hands it to Receive. Malformed
// input is logged and dropped so a bad frame cannot take the node
// down.
func (b *Broker) ReceiveRaw(ctx context.Context, data []byte) {
	if len(data) == 0 {
		logging.Op().Warn("dropping empty admin message")
		metrics.Global().RecordAdminDropped("empty")
		return
	}
	msg, err := b.codec.Decode(data)
	if err != nil {
		logging.Op().Error("dropping undecodable admin message", "error", err)
		metrics.Global().RecordAdminDropped("malformed")
		return
	}
	if msg.Routing().Source.IsZero() {
		logging.Op().Error("dropping admin message without a source node", "type", typeName(msg))
		metrics.Global().RecordAdminDropped("missing_source")
		return
	}
	b.Receive(ctx, msg)
}

// SendRaw decodes a wire message and routes it like Send. The relay
// ingress uses it to inject messages arriving from remote clusters
// into the local one. Relayed messages carry globalRelay == false, so
// injection cannot start a relay loop.
func (b *Broker) SendRaw(ctx context.Context, data []byte) error {
	msg, err := b.codec.Decode(data)
	if err != nil {
		return err
	}
	return b.Send(ctx, msg)
}

// Listen consumes the cluster transport until the context ends or the
// transport closes. Each message is handled in the trace the publishing
// node started.
func (b *Broker) Listen(ctx context.Context) {
	for in := range b.transport.Subscribe(ctx) {
		b.ReceiveRaw(observability.InjectTraceContext(ctx, in.Trace), in.Data)
	}
}

// label is the metrics label for a message: its registered wire name,
// or the runtime type for unregistered ones.
func (b *Broker) label(msg Message) string {
	if name, ok := b.codec.nameOf(msg); ok {
		return name
	}
	return typeName(msg)
}

func typeName(msg Message) string {
	return fmt.Sprintf("%T", msg)
}
