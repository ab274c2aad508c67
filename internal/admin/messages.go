package admin

import (
	"context"

	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
)

// LogLevelMessage adjusts the log level of the receiving nodes.
type LogLevelMessage struct {
	Meta
	Level string `json:"level"`
}

func (m *LogLevelMessage) Handle(ctx context.Context, target *Target) error {
	if !logging.SetLevelFromString(m.Level) {
		return fault.Handler(nil, "unknown log level %q", m.Level)
	}
	logging.Op().Info("log level changed by admin message", "level", m.Level, "source", m.Source)
	return nil
}

// ConnectorCacheKey is the cache key connector metadata lives under.
// Connector updates invalidate it on every receiving node.
func ConnectorCacheKey(id string) string { return "connectors/" + id }

// ConnectorUpdatedMessage announces that a connector was created,
// reconfigured or removed. Receiving nodes bring their local pool and
// cache in line with the announced state.
type ConnectorUpdatedMessage struct {
	Meta
	RelayFlags
	Connector   *connector.Connector `json:"connector,omitempty"`
	ConnectorID string               `json:"connectorId,omitempty"`
	Removed     bool                 `json:"removed,omitempty"`
}

func (m *ConnectorUpdatedMessage) Handle(ctx context.Context, target *Target) error {
	if target == nil || target.Connectors == nil {
		return fault.Handler(nil, "no connector pool to apply the update to")
	}
	id := m.ConnectorID
	if id == "" && m.Connector != nil {
		id = m.Connector.ID
	}
	if id != "" && target.Cache != nil {
		if err := target.Cache.Delete(ctx, ConnectorCacheKey(id)); err != nil {
			logging.Op().Warn("cannot invalidate connector cache entry", "connector", id, "error", err)
		}
	}
	if m.Removed {
		if id == "" {
			return fault.Handler(nil, "connector removal without a connector id")
		}
		target.Connectors.Remove(id)
		return nil
	}
	if m.Connector == nil {
		return fault.Handler(nil, "connector update without a connector")
	}
	return target.Connectors.Apply(m.Connector)
}

// CacheInvalidationMessage evicts entries from the node-local caches.
// An empty key set purges the whole cache.
type CacheInvalidationMessage struct {
	Meta
	RelayFlags
	Keys []string `json:"keys,omitempty"`
}

func (m *CacheInvalidationMessage) Handle(ctx context.Context, target *Target) error {
	if target == nil || target.Cache == nil {
		return fault.Handler(nil, "no cache to invalidate")
	}
	if len(m.Keys) == 0 {
		return target.Cache.Purge(ctx)
	}
	return target.Cache.Delete(ctx, m.Keys...)
}
