package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/meridian/internal/connector"
)

func testConnector(id string) *connector.Connector {
	return &connector.Connector{
		ID:             id,
		MaxConnections: 8,
		Priority:       0.5,
		RemoteFunction: connector.RemoteFunction{
			Kind: connector.FunctionHTTP,
			URL:  "http://backend:8080",
		},
	}
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, testConnector("space-store")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "space-store")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MaxConnections != 8 {
		t.Fatalf("MaxConnections = %d, want 8", got.MaxConnections)
	}

	// The store hands out copies.
	got.MaxConnections = 99
	again, err := s.Get(ctx, "space-store")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.MaxConnections != 8 {
		t.Fatal("mutating a returned connector changed the stored one")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryStoreSaveRequiresID(t *testing.T) {
	s := NewMemoryStore()

	if err := s.Save(context.Background(), &connector.Connector{}); err == nil {
		t.Fatal("expected an error for a connector without an id")
	}
}

func TestMemoryStoreListSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"tags", "spaces", "features"} {
		if err := s.Save(ctx, testConnector(id)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	cfgs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(cfgs) != 3 {
		t.Fatalf("List returned %d connectors, want 3", len(cfgs))
	}
	for i, want := range []string{"features", "spaces", "tags"} {
		if cfgs[i].ID != want {
			t.Fatalf("List[%d] = %q, want %q", i, cfgs[i].ID, want)
		}
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, testConnector("space-store")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "space-store"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "space-store"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}
	if err := s.Delete(ctx, "space-store"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a second delete, got: %v", err)
	}
}
