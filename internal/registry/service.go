package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/meridian/internal/admin"
	"github.com/oriys/meridian/internal/cache"
	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
)

const defaultCacheTTL = 60 * time.Second

// Service is the write path for connector definitions. Changes are
// persisted to the store and then announced over the admin broker;
// the announcement is what updates the pools and caches on every node,
// including this one, so local and remote application share one path.
type Service struct {
	store    Store
	cache    cache.Cache
	broker   *admin.Broker
	cacheTTL time.Duration
}

// ServiceConfig wires a Service. Store and Broker are required; a nil
// Cache disables read caching.
type ServiceConfig struct {
	Store    Store
	Cache    cache.Cache
	Broker   *admin.Broker
	CacheTTL time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fault.Config(nil, "connector registry requires a store")
	}
	if cfg.Broker == nil {
		return nil, fault.Config(nil, "connector registry requires the admin broker")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		store:    cfg.Store,
		cache:    cfg.Cache,
		broker:   cfg.Broker,
		cacheTTL: ttl,
	}, nil
}

// Apply validates and persists a connector, then announces the change.
// With global set, the announcement also crosses cluster boundaries.
func (s *Service) Apply(ctx context.Context, cfg *connector.Connector, global bool) error {
	if err := cfg.Validate(); err != nil {
		return fault.Config(err, "invalid connector configuration")
	}
	if err := s.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("saving connector %q: %w", cfg.ID, err)
	}
	msg := &admin.ConnectorUpdatedMessage{Connector: cfg}
	msg.BroadcastIncludeLocalNode = true
	msg.GlobalRelay = global
	return s.broker.Send(ctx, msg)
}

// Remove deletes a connector and announces the removal.
func (s *Service) Remove(ctx context.Context, id string, global bool) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	msg := &admin.ConnectorUpdatedMessage{ConnectorID: id, Removed: true}
	msg.BroadcastIncludeLocalNode = true
	msg.GlobalRelay = global
	return s.broker.Send(ctx, msg)
}

// Get reads a connector, serving from cache when possible.
func (s *Service) Get(ctx context.Context, id string) (*connector.Connector, error) {
	key := admin.ConnectorCacheKey(id)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var cfg connector.Connector
			if err := json.Unmarshal(data, &cfg); err == nil {
				return &cfg, nil
			}
			logging.Op().Warn("dropping corrupt connector cache entry", "connector", id)
			_ = s.cache.Delete(ctx, key)
		}
	}
	cfg, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(cfg); err == nil {
			_ = s.cache.Set(ctx, key, data, s.cacheTTL)
		}
	}
	return cfg, nil
}

// List reads all connectors straight from the store.
func (s *Service) List(ctx context.Context) ([]*connector.Connector, error) {
	return s.store.List(ctx)
}

// Bootstrap loads every stored connector into the pool. Individual
// failures are logged and skipped so one bad definition cannot keep a
// node from starting.
func (s *Service) Bootstrap(ctx context.Context, pool admin.ConnectorPool) error {
	cfgs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading connectors: %w", err)
	}
	for _, cfg := range cfgs {
		if err := pool.Apply(cfg); err != nil {
			logging.Op().Error("skipping stored connector", "connector", cfg.ID, "error", err)
		}
	}
	return nil
}
