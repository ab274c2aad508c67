package admin

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/node"
	"github.com/oriys/meridian/internal/observability"
)

const redisChannel = "meridian:admin:messages"

// frame wraps a published message with its origin, so nodes can discard
// their own frames coming back from the pub/sub fan-out, and with the
// publisher's trace context, so handling on the receiving node stays in
// the sender's trace.
type frame struct {
	Origin  node.Identity              `json:"origin"`
	Trace   observability.TraceContext `json:"trace"`
	Payload json.RawMessage            `json:"payload"`
}

// RedisTransport distributes admin messages across the cluster over a
// Redis pub/sub channel.
type RedisTransport struct {
	own     node.Identity
	client  *redis.Client
	channel string
	subCtx  context.Context
	cancel  context.CancelFunc
}

func NewRedisTransport(own node.Identity, client *redis.Client) *RedisTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisTransport{
		own:     own,
		client:  client,
		channel: redisChannel,
		subCtx:  ctx,
		cancel:  cancel,
	}
}

func (t *RedisTransport) Publish(ctx context.Context, data []byte) error {
	raw, err := json.Marshal(frame{
		Origin:  t.own,
		Trace:   observability.ExtractTraceContext(ctx),
		Payload: data,
	})
	if err != nil {
		return fault.Serialization(err, "framing admin message")
	}
	if err := t.client.Publish(ctx, t.channel, raw).Err(); err != nil {
		return fault.Transport(err, "publishing admin message to redis")
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context) <-chan Inbound {
	ch := make(chan Inbound, hubBuffer)
	pubsub := t.client.Subscribe(t.subCtx, t.channel)
	go func() {
		defer close(ch)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-t.subCtx.Done():
				return
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var f frame
				if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
					logging.Op().Warn("dropping malformed admin frame", "error", err)
					metrics.Global().RecordAdminDropped("malformed_frame")
					continue
				}
				if f.Origin == t.own {
					continue
				}
				select {
				case ch <- Inbound{Trace: f.Trace, Data: []byte(f.Payload)}:
				default:
					logging.Op().Warn("admin subscriber is not keeping up, dropping message")
					metrics.Global().RecordAdminDropped("backpressure")
				}
			}
		}
	}()
	return ch
}

func (t *RedisTransport) Close() error {
	t.cancel()
	return nil
}
