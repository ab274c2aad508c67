package admin

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func expectFrame(t *testing.T, ch <-chan Inbound, want []byte) {
	t.Helper()
	select {
	case got := <-ch:
		if !bytes.Equal(got.Data, want) {
			t.Fatalf("received %q, want %q", got.Data, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}

func expectNoFrame(t *testing.T, ch <-chan Inbound) {
	t.Helper()
	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("unexpected frame %q", got.Data)
		}
	default:
	}
}

func TestChannelHubFanOut(t *testing.T) {
	hub := NewChannelHub()
	defer hub.Close()
	ctx := context.Background()

	e1 := hub.Endpoint()
	e2 := hub.Endpoint()
	e3 := hub.Endpoint()
	ch1 := e1.Subscribe(ctx)
	ch2 := e2.Subscribe(ctx)
	ch3 := e3.Subscribe(ctx)

	payload := []byte(`{"type":"LogLevelMessage"}`)
	if err := e1.Publish(ctx, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	expectFrame(t, ch2, payload)
	expectFrame(t, ch3, payload)
	expectNoFrame(t, ch1)
}

func TestChannelHubClosedEndpointStopsReceiving(t *testing.T) {
	hub := NewChannelHub()
	defer hub.Close()
	ctx := context.Background()

	e1 := hub.Endpoint()
	e2 := hub.Endpoint()
	e3 := hub.Endpoint()
	ch2 := e2.Subscribe(ctx)
	ch3 := e3.Subscribe(ctx)

	if err := e2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	payload := []byte("after-close")
	if err := e1.Publish(ctx, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	expectFrame(t, ch3, payload)
	if _, ok := <-ch2; ok {
		t.Fatal("closed endpoint still receives frames")
	}
}

func TestChannelHubCloseClosesSubscribers(t *testing.T) {
	hub := NewChannelHub()
	ctx := context.Background()

	e1 := hub.Endpoint()
	ch1 := e1.Subscribe(ctx)
	if err := hub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch1; ok {
		t.Fatal("subscriber channel still open after hub close")
	}

	// Endpoints created after close are born closed.
	late := hub.Endpoint()
	if _, ok := <-late.Subscribe(ctx); ok {
		t.Fatal("endpoint on a closed hub delivered a frame")
	}
}
