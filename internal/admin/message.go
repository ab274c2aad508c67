// Package admin implements the cluster administration messaging layer.
//
// Nodes exchange small control messages to keep runtime state coherent
// across the cluster: connector configuration changes, cache
// invalidations, log level adjustments. A Broker on each node publishes
// messages to the local cluster transport and, for messages flagged for
// global relay, forwards them over HTTP to remote clusters.
package admin

import (
	"context"

	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/node"
)

// Meta carries the routing envelope shared by every admin message.
// A zero Destination addresses the whole cluster; a non-zero one
// addresses a single node.
type Meta struct {
	Type                      string        `json:"type"`
	Source                    node.Identity `json:"source"`
	Destination               node.Identity `json:"destination,omitempty"`
	BroadcastIncludeLocalNode bool          `json:"broadcastIncludeLocalNode,omitempty"`
}

// Routing exposes the envelope for mutation by the broker.
func (m *Meta) Routing() *Meta { return m }

// Message is an admin message that can be routed through the broker and
// applied to the local node.
type Message interface {
	Routing() *Meta
	Handle(ctx context.Context, target *Target) error
}

// RelayFlags marks a message for cross-cluster forwarding. GlobalRelay
// is set by the sender; Relay marks a message that arrived through a
// relay and must not be forwarded again.
type RelayFlags struct {
	Relay       bool `json:"relay,omitempty"`
	GlobalRelay bool `json:"globalRelay,omitempty"`
}

// Flags exposes the relay flags for mutation by the broker.
func (f *RelayFlags) Flags() *RelayFlags { return f }

// Relayable is implemented by messages that may cross cluster
// boundaries.
type Relayable interface {
	Message
	Flags() *RelayFlags
}

// ConnectorPool is the slice of the connector runtime that admin
// messages act on.
type ConnectorPool interface {
	Apply(cfg *connector.Connector) error
	Remove(id string)
}

// Invalidator is the slice of the cache that admin messages act on.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
	Purge(ctx context.Context) error
}

// Target bundles the node-local state a message may mutate when
// handled. Fields are nil when the node does not run that subsystem.
type Target struct {
	Connectors ConnectorPool
	Cache      Invalidator
}
