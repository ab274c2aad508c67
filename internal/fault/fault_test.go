package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := Transport(errors.New("connection refused"), "invoke %s", "cx1")
	want := "invoke cx1: connection refused"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}

	bare := Timeout(nil, "the connector did not respond in time")
	if bare.Error() != "the connector did not respond in time" {
		t.Fatalf("Error() = %q", bare.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	e := Config(cause, "bad role arn")
	if !errors.Is(e, cause) {
		t.Fatal("expected cause to be reachable via errors.Is")
	}

	wrapped := fmt.Errorf("outer: %w", e)
	var fe *Error
	if !errors.As(wrapped, &fe) {
		t.Fatal("expected *Error in chain")
	}
	if fe.Kind() != KindConfig {
		t.Fatalf("Kind() = %v, want %v", fe.Kind(), KindConfig)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		ok   bool
	}{
		{"direct", Serialization(nil, "decode"), KindSerialization, true},
		{"wrapped", fmt.Errorf("ctx: %w", PayloadTooLarge(nil, "too big")), KindPayloadTooLarge, true},
		{"plain", errors.New("plain"), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, ok := KindOf(tt.err)
			if ok != tt.ok {
				t.Fatalf("KindOf ok = %v, want %v", ok, tt.ok)
			}
			if ok && k != tt.kind {
				t.Fatalf("KindOf kind = %v, want %v", k, tt.kind)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	e := Handler(errors.New("panic in handler"), "handle LogLevelMessage")
	if !IsKind(e, KindHandler) {
		t.Fatal("expected KindHandler")
	}
	if IsKind(e, KindTimeout) {
		t.Fatal("did not expect KindTimeout")
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindConfig, "config"},
		{KindSerialization, "serialization"},
		{KindTransport, "transport"},
		{KindTimeout, "timeout"},
		{KindPayloadTooLarge, "payload_too_large"},
		{KindHandler, "handler"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
