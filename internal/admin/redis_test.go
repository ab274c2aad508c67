package admin

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/meridian/internal/node"
)

// newTestRedisClient creates a Redis client for testing.
// Tests that require a running Redis instance are skipped automatically.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use a separate DB for tests
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisTransportFanOut(t *testing.T) {
	client := newTestRedisClient(t)
	t1 := NewRedisTransport(node.NewIdentity(), client)
	defer t1.Close()
	t2 := NewRedisTransport(node.NewIdentity(), client)
	defer t2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch1 := t1.Subscribe(ctx)
	ch2 := t2.Subscribe(ctx)

	// Allow subscriptions to establish
	time.Sleep(50 * time.Millisecond)

	payload := []byte(`{"type":"LogLevelMessage","source":"n1","level":"info"}`)
	if err := t1.Publish(ctx, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-ch2:
		if !bytes.Equal(got.Data, payload) {
			t.Fatalf("peer received %q, want %q", got.Data, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the frame")
	}

	select {
	case got := <-ch1:
		t.Fatalf("publisher received its own frame back: %q", got.Data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisTransportClose(t *testing.T) {
	client := newTestRedisClient(t)
	tr := NewRedisTransport(node.NewIdentity(), client)

	ch := tr.Subscribe(context.Background())
	time.Sleep(50 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected the subscription channel to close without frames")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel did not close")
	}
}
