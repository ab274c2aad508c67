package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oriys/meridian/internal/connector"
)

// MemoryStore keeps connector definitions in memory. It backs tests
// and deployments that manage connectors purely through spec files.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]connector.Connector
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]connector.Connector)}
}

func (s *MemoryStore) Save(_ context.Context, cfg *connector.Connector) error {
	if cfg.ID == "" {
		return fmt.Errorf("connector id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cfg.ID] = *cfg
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*connector.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &cfg, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*connector.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*connector.Connector, 0, len(s.items))
	for _, cfg := range s.items {
		cfg := cfg
		out = append(out, &cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
