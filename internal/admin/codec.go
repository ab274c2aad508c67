package admin

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/oriys/meridian/internal/fault"
)

// Codec translates admin messages to and from their JSON wire form.
// The concrete message type travels in the "type" field of the
// envelope so the receiving side can reconstruct it.
type Codec struct {
	mu      sync.RWMutex
	factory map[string]func() Message
	names   map[reflect.Type]string
}

// NewCodec returns a codec with the built-in message types registered.
func NewCodec() *Codec {
	c := &Codec{
		factory: make(map[string]func() Message),
		names:   make(map[reflect.Type]string),
	}
	c.Register("LogLevelMessage", func() Message { return &LogLevelMessage{} })
	c.Register("ConnectorUpdatedMessage", func() Message { return &ConnectorUpdatedMessage{} })
	c.Register("CacheInvalidationMessage", func() Message { return &CacheInvalidationMessage{} })
	return c
}

// Register adds a message type under the given wire name. The factory
// must return a fresh zero value on every call.
func (c *Codec) Register(name string, factory func() Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factory[name] = factory
	c.names[reflect.TypeOf(factory())] = name
}

func (c *Codec) nameOf(msg Message) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[reflect.TypeOf(msg)]
	return name, ok
}

// Encode serializes a message, stamping the wire name into the
// envelope first.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	name, ok := c.nameOf(msg)
	if !ok {
		return nil, fault.Serialization(nil, "message type %T is not registered", msg)
	}
	msg.Routing().Type = name
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fault.Serialization(err, "serializing admin message %s", name)
	}
	return data, nil
}

// Decode reconstructs a message from its wire form.
func (c *Codec) Decode(data []byte) (Message, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fault.Serialization(err, "parsing admin message envelope")
	}
	if probe.Type == "" {
		return nil, fault.Serialization(nil, "admin message without a type")
	}
	c.mu.RLock()
	factory, ok := c.factory[probe.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fault.Serialization(nil, "unknown admin message type %q", probe.Type)
	}
	msg := factory()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fault.Serialization(err, "deserializing admin message %s", probe.Type)
	}
	return msg, nil
}

// Clone deep-copies a message through its wire form, preserving the
// concrete type.
func (c *Codec) Clone(msg Message) (Message, error) {
	data, err := c.Encode(msg)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}
