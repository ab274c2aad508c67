package admin

import (
	"reflect"
	"testing"

	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
)

func TestCodecRoundTrip(t *testing.T) {
	level := &LogLevelMessage{Level: "debug"}
	level.Source = "n1"
	level.Destination = "n2"

	update := &ConnectorUpdatedMessage{Connector: &connector.Connector{
		ID:             "space-store",
		MaxConnections: 16,
		Priority:       0.25,
		RemoteFunction: connector.RemoteFunction{
			Kind:      connector.FunctionAWSLambda,
			LambdaARN: "arn:aws:lambda:eu-west-1:123456789:function:space-store",
		},
	}}
	update.Source = "n1"
	update.GlobalRelay = true

	invalidate := &CacheInvalidationMessage{Keys: []string{"spaces/1", "tags/9"}}
	invalidate.Source = "n2"
	invalidate.BroadcastIncludeLocalNode = true
	invalidate.Relay = true

	codec := NewCodec()
	for _, msg := range []Message{level, update, invalidate} {
		data, err := codec.Encode(msg)
		if err != nil {
			t.Fatalf("Encode(%T) failed: %v", msg, err)
		}
		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("Decode(%T) failed: %v", msg, err)
		}
		if !reflect.DeepEqual(decoded, msg) {
			t.Fatalf("round trip changed the message:\n got %#v\nwant %#v", decoded, msg)
		}
	}
}

func TestDecodeRejectsBadEnvelopes(t *testing.T) {
	codec := NewCodec()
	for _, tt := range []struct {
		name string
		data string
	}{
		{"invalid json", `{"type"`},
		{"missing type", `{"source":"n1"}`},
		{"unknown type", `{"type":"NoSuchMessage","source":"n1"}`},
		{"mismatched body", `{"type":"CacheInvalidationMessage","keys":"not-a-list"}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.data))
			if !fault.IsKind(err, fault.KindSerialization) {
				t.Fatalf("expected a serialization error, got %v", err)
			}
		})
	}
}

func TestEncodeRejectsUnregisteredType(t *testing.T) {
	codec := NewCodec()
	_, err := codec.Encode(&opaqueMessage{})
	if !fault.IsKind(err, fault.KindSerialization) {
		t.Fatalf("expected a serialization error, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	codec := NewCodec()
	orig := &CacheInvalidationMessage{Keys: []string{"spaces/1"}}
	orig.Source = "n1"
	orig.GlobalRelay = true

	cloned, err := codec.Clone(orig)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	dup, ok := cloned.(*CacheInvalidationMessage)
	if !ok {
		t.Fatalf("clone lost its concrete type: %T", cloned)
	}

	dup.GlobalRelay = false
	dup.Relay = true
	dup.BroadcastIncludeLocalNode = true
	dup.Keys[0] = "changed"

	if !orig.GlobalRelay || orig.Relay || orig.BroadcastIncludeLocalNode {
		t.Fatalf("mutating the clone leaked into the original: %+v", orig)
	}
	if orig.Keys[0] != "spaces/1" {
		t.Fatalf("clone shares backing storage with the original: %v", orig.Keys)
	}
}
