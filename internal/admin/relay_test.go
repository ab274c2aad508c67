package admin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/meridian/internal/node"
)

func TestRelayClientRetriesOncePerEndpoint(t *testing.T) {
	var hits1, hits2 atomic.Int32
	u1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits1.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer u1.Close()
	u2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits2.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer u2.Close()

	relay := NewRelayClient([]string{u1.URL, u2.URL}, "", time.Second)
	relay.Send(context.Background(), []byte(`{}`))

	if got := hits1.Load(); got != 2 {
		t.Fatalf("first endpoint saw %d attempts, want 2 (failure then successful retry)", got)
	}
	if got := hits2.Load(); got != 2 {
		t.Fatalf("second endpoint saw %d attempts, want exactly 2 before giving up", got)
	}
}

func TestRelayClientRequestShape(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/admin/messages" {
			t.Errorf("path = %s, want /admin/messages", r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json; charset=UTF-8" {
			t.Errorf("content type = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer relay-token" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// Trailing slash on the base URL must not produce a double slash.
	relay := NewRelayClient([]string{srv.URL + "/"}, "relay-token", time.Second)
	relay.Send(context.Background(), []byte(`{"type":"LogLevelMessage"}`))

	select {
	case body := <-bodies:
		if string(body) != `{"type":"LogLevelMessage"}` {
			t.Fatalf("relayed body = %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay request never arrived")
	}
}

func TestSendPreparesRelayCopy(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := newRecordingTransport()
	b, err := NewBroker(BrokerConfig{
		Own:       node.NewIdentity(),
		Transport: tr,
		Relay:     NewRelayClient([]string{srv.URL}, "", time.Second),
	})
	if err != nil {
		t.Fatalf("NewBroker failed: %v", err)
	}

	msg := &CacheInvalidationMessage{Keys: []string{"spaces/1"}}
	msg.GlobalRelay = true
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var body []byte
	select {
	case body = <-bodies:
	case <-time.After(2 * time.Second):
		t.Fatal("relay request never arrived")
	}

	decoded, err := NewCodec().Decode(body)
	if err != nil {
		t.Fatalf("relayed payload does not decode: %v", err)
	}
	relayed, ok := decoded.(*CacheInvalidationMessage)
	if !ok {
		t.Fatalf("relayed payload has type %T", decoded)
	}
	if relayed.GlobalRelay || !relayed.Relay || !relayed.BroadcastIncludeLocalNode {
		t.Fatalf("relay copy flags wrong: %+v", relayed.RelayFlags)
	}
	if relayed.Source != b.Own() {
		t.Fatalf("relay copy source = %q, want %q", relayed.Source, b.Own())
	}

	// The original keeps its flags so local routing is unaffected.
	if !msg.GlobalRelay || msg.Relay || msg.BroadcastIncludeLocalNode {
		t.Fatalf("original message was mutated: %+v", msg)
	}
	if got := tr.count(); got != 1 {
		t.Fatalf("local cluster fan-out published %d frames, want 1", got)
	}
}

func TestSendSkipsRelayWithoutGlobalFlag(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b, err := NewBroker(BrokerConfig{
		Own:       node.NewIdentity(),
		Transport: newRecordingTransport(),
		Relay:     NewRelayClient([]string{srv.URL}, "", time.Second),
	})
	if err != nil {
		t.Fatalf("NewBroker failed: %v", err)
	}

	msg := &CacheInvalidationMessage{Keys: []string{"spaces/1"}}
	msg.Relay = true // already relayed once, must not bounce again
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := hits.Load(); got != 0 {
		t.Fatalf("relay fired %d times for a non-global message", got)
	}
}
