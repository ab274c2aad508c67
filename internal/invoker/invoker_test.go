package invoker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
)

func TestThreads(t *testing.T) {
	tests := []struct {
		name           string
		priority       float64
		budget         int
		maxConnections int
		want           int
	}{
		{"share capped by max connections", 0.5, 20, 8, 8},
		{"share within cap", 0.5, 20, 64, 10},
		{"zero priority floors at minimum", 0, 20, 64, MinThreadsPerClient},
		{"cap below minimum wins", 0, 20, 3, 3},
		{"full budget", 1.0, 32, 64, 32},
		{"fractional share truncates then floors", 0.33, 10, 64, MinThreadsPerClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Threads(tt.priority, tt.budget, tt.maxConnections)
			if got != tt.want {
				t.Fatalf("Threads(%v, %d, %d) = %d, want %d", tt.priority, tt.budget, tt.maxConnections, got, tt.want)
			}
		})
	}
}

func TestThreadsNonDecreasingInPriority(t *testing.T) {
	prev := 0
	for p := 0.0; p <= 1.0; p += 0.05 {
		n := Threads(p, 40, 16)
		if n < prev {
			t.Fatalf("Threads decreased from %d to %d at priority %v", prev, n, p)
		}
		if n < MinThreadsPerClient || n > 16 {
			t.Fatalf("Threads(%v, 40, 16) = %d out of bounds", p, n)
		}
		prev = n
	}
}

func TestHandleCancelSuppressesResolution(t *testing.T) {
	var aborted atomic.Bool
	h := newHandle(func() { aborted.Store(true) })

	h.Cancel()
	if !h.Cancelled() {
		t.Fatal("expected Cancelled after Cancel")
	}
	if !aborted.Load() {
		t.Fatal("expected abort hook to run")
	}
	if h.settle() {
		t.Fatal("settle must fail after cancellation")
	}
	h.Cancel() // repeated cancel is a no-op
}

func TestHandleCancelAfterResolutionIsNoOp(t *testing.T) {
	var aborted atomic.Bool
	h := newHandle(func() { aborted.Store(true) })

	if !h.settle() {
		t.Fatal("settle on a fresh handle must succeed")
	}
	h.Cancel()
	if h.Cancelled() {
		t.Fatal("cancel after resolution must not take effect")
	}
	if aborted.Load() {
		t.Fatal("abort hook must not run after resolution")
	}
}

func TestRetirerGracePeriod(t *testing.T) {
	r := newRetirer(40 * time.Millisecond)
	done := make(chan struct{})
	r.retire(func() { close(done) })

	select {
	case <-done:
		t.Fatal("teardown ran before the grace period")
	case <-time.After(10 * time.Millisecond):
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("teardown did not run after the grace period")
	}
}

func TestRetirerFlush(t *testing.T) {
	r := newRetirer(time.Hour)
	var n atomic.Int32
	r.retire(func() { n.Add(1) })
	r.retire(func() { n.Add(1) })

	r.flush()
	if got := n.Load(); got != 2 {
		t.Fatalf("expected 2 teardowns after flush, got %d", got)
	}
	r.flush()
	if got := n.Load(); got != 2 {
		t.Fatalf("flush must not rerun teardowns, got %d", got)
	}
}

func TestRegionFromARN(t *testing.T) {
	region, err := RegionFromARN("arn:aws:lambda:eu-west-1:123456789:function:f")
	if err != nil {
		t.Fatalf("RegionFromARN: %v", err)
	}
	if region != "eu-west-1" {
		t.Fatalf("region = %q, want eu-west-1", region)
	}

	for _, arn := range []string{"", "arn:aws:lambda", "no-colons", "arn:aws:::broken"} {
		_, err := RegionFromARN(arn)
		if !fault.IsKind(err, fault.KindConfig) {
			t.Fatalf("RegionFromARN(%q) err = %v, want config error", arn, err)
		}
	}
}

type providerStatusError struct{ code int }

func (e *providerStatusError) Error() string       { return fmt.Sprintf("provider status %d", e.code) }
func (e *providerStatusError) HTTPStatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	log := logging.Op()

	t.Run("normalized errors pass through", func(t *testing.T) {
		orig := fault.Timeout(nil, "already classified")
		if got := classify(log, "cx", orig); got != orig {
			t.Fatalf("classify rewrote a normalized error: %v", got)
		}
	})

	t.Run("provider 413 becomes payload too large", func(t *testing.T) {
		err := classify(log, "cx", &providerStatusError{code: 413})
		if !fault.IsKind(err, fault.KindPayloadTooLarge) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("typed provider size error becomes payload too large", func(t *testing.T) {
		cause := &smithy.GenericAPIError{Code: "RequestEntityTooLargeException", Message: "request too large"}
		err := classify(log, "cx", fmt.Errorf("invoke: %w", cause))
		if !fault.IsKind(err, fault.KindPayloadTooLarge) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("other provider statuses are transport failures", func(t *testing.T) {
		err := classify(log, "cx", &providerStatusError{code: 502})
		if !fault.IsKind(err, fault.KindTransport) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("deadline exceeded becomes timeout", func(t *testing.T) {
		err := classify(log, "cx", fmt.Errorf("invoke: %w", context.DeadlineExceeded))
		if !fault.IsKind(err, fault.KindTimeout) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("nested network timeout becomes timeout", func(t *testing.T) {
		nested := fmt.Errorf("send request: %w", &net.DNSError{Err: "lookup", IsTimeout: true})
		err := classify(log, "cx", nested)
		if !fault.IsKind(err, fault.KindTimeout) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("opaque failures are transport failures", func(t *testing.T) {
		err := classify(log, "cx", errors.New("connection reset"))
		if !fault.IsKind(err, fault.KindTransport) {
			t.Fatalf("err = %v", err)
		}
	})
}
