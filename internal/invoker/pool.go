package invoker

import (
	"sort"
	"sync"

	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/fault"
	"github.com/oriys/meridian/internal/logging"
)

// Pool owns one invoker per connector id and keeps them aligned with
// the current connector snapshots. Same-kind updates reconfigure the
// existing invoker in place; a backend-kind change replaces it.
type Pool struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]poolEntry
}

type poolEntry struct {
	kind connector.FunctionKind
	inv  Invoker
}

func NewPool(opts Options) *Pool {
	return &Pool{opts: opts.withDefaults(), entries: make(map[string]poolEntry)}
}

// Apply creates, reconfigures or replaces the invoker for cfg.
func (p *Pool) Apply(cfg *connector.Connector) error {
	if err := cfg.Validate(); err != nil {
		return fault.Config(err, "invalid connector configuration")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[cfg.ID]; ok {
		if e.kind == cfg.RemoteFunction.Kind {
			return e.inv.Reconfigure(cfg)
		}
		// Backend kind changed, the invoker cannot be reconfigured
		// across kinds.
		logging.Op().Info("replacing invoker for connector", "connector", cfg.ID, "from", e.kind, "to", cfg.RemoteFunction.Kind)
		e.inv.Shutdown()
		delete(p.entries, cfg.ID)
	}

	inv, err := p.build(cfg)
	if err != nil {
		return err
	}
	p.entries[cfg.ID] = poolEntry{kind: cfg.RemoteFunction.Kind, inv: inv}
	return nil
}

func (p *Pool) build(cfg *connector.Connector) (Invoker, error) {
	switch cfg.RemoteFunction.Kind {
	case connector.FunctionAWSLambda:
		return NewLambdaInvoker(cfg, p.opts)
	case connector.FunctionHTTP:
		return NewHTTPInvoker(cfg, p.opts)
	default:
		return nil, fault.Config(nil, "connector %q: unsupported remote function type %q", cfg.ID, cfg.RemoteFunction.Kind)
	}
}

// Get returns the invoker registered for a connector id.
func (p *Pool) Get(id string) (Invoker, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	return e.inv, ok
}

// Remove shuts the connector's invoker down and forgets it.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		e.inv.Shutdown()
		delete(p.entries, id)
	}
}

// IDs returns the ids of all registered connectors, sorted.
func (p *Pool) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown retires every invoker and tears replaced transports down
// without waiting out the grace period. In-flight calls still resolve,
// they only lose connection reuse. Meant for process exit; runtime
// removal goes through Remove, which keeps the grace period.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		e.inv.Shutdown()
		if f, ok := e.inv.(interface{ flushRetired() }); ok {
			f.flushRetired()
		}
		delete(p.entries, id)
	}
}
