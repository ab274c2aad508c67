package cache

import (
	"context"
	"testing"
	"time"
)

func newTestTiered(t *testing.T) (*TieredCache, *MemoryCache, *MemoryCache) {
	t.Helper()
	l1 := NewMemoryCache()
	l2 := NewMemoryCache()
	t.Cleanup(func() {
		l1.Close()
		l2.Close()
	})
	return NewTieredCache(l1, l2, 10*time.Second), l1, l2
}

func TestTieredCache_L1Hit(t *testing.T) {
	tc, _, _ := newTestTiered(t)
	ctx := context.Background()

	if err := tc.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := tc.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Fatalf("expected 'value1', got '%s'", string(val))
	}
}

func TestTieredCache_L2Fallthrough(t *testing.T) {
	tc, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	// Set value directly in L2 (simulating an L1 miss)
	if err := l2.Set(ctx, "key2", []byte("value2"), time.Minute); err != nil {
		t.Fatalf("L2 Set failed: %v", err)
	}

	// Should miss L1, hit L2, and populate L1
	val, err := tc.Get(ctx, "key2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value2" {
		t.Fatalf("expected 'value2', got '%s'", string(val))
	}

	// Now L1 should have the value
	if _, err := l1.Get(ctx, "key2"); err != nil {
		t.Fatalf("L1 was not populated on L2 hit: %v", err)
	}
}

func TestTieredCache_Miss(t *testing.T) {
	tc, _, _ := newTestTiered(t)

	if _, err := tc.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestTieredCache_DeleteBothLayers(t *testing.T) {
	tc, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	if err := tc.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := tc.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := l1.Get(ctx, "key"); err != ErrNotFound {
		t.Fatalf("key still in L1 after delete: %v", err)
	}
	if _, err := l2.Get(ctx, "key"); err != ErrNotFound {
		t.Fatalf("key still in L2 after delete: %v", err)
	}
}

func TestTieredCache_PurgeBothLayers(t *testing.T) {
	tc, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	tc.Set(ctx, "a", []byte("1"), time.Minute)
	tc.Set(ctx, "b", []byte("2"), time.Minute)

	if err := tc.Purge(ctx); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	for _, key := range []string{"a", "b"} {
		if _, err := l1.Get(ctx, key); err != ErrNotFound {
			t.Fatalf("key %q still in L1 after purge", key)
		}
		if _, err := l2.Get(ctx, key); err != ErrNotFound {
			t.Fatalf("key %q still in L2 after purge", key)
		}
	}
}

func TestTieredCache_ExistsChecksBothLayers(t *testing.T) {
	tc, _, l2 := newTestTiered(t)
	ctx := context.Background()

	exists, err := tc.Exists(ctx, "missing")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing key to not exist")
	}

	// Present only in L2
	l2.Set(ctx, "l2-only", []byte("value"), time.Minute)
	exists, err = tc.Exists(ctx, "l2-only")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("expected key present in L2 to exist")
	}
}
