// Package registry persists connector definitions and coordinates
// changes to them across the cluster. The Store holds the durable
// copy; the Service layers caching on reads and announces writes over
// the admin broker so every node's pool follows.
package registry

import (
	"context"
	"errors"

	"github.com/oriys/meridian/internal/connector"
)

// ErrNotFound is returned when a connector id is not in the store.
var ErrNotFound = errors.New("registry: connector not found")

// Store is the durable connector store.
type Store interface {
	Save(ctx context.Context, cfg *connector.Connector) error
	Get(ctx context.Context, id string) (*connector.Connector, error)
	List(ctx context.Context) ([]*connector.Connector, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
