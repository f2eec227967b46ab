package gateway

import (
	"log/slog"
	"sync"

	errors "github.com/sdms/payment-core/internal"
)

// Registry maps a gateway name to its configured adapter. The adapter set is
// fixed at construction; Reload swaps the whole set atomically so a resolve
// never observes a partially updated registry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger, adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		logger:   logger,
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Resolve(name string) (Adapter, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("gateway lookup failed", "gateway", name)
		return nil, errors.ErrUnknownGateway
	}
	return adapter, nil
}

// Reload replaces the registered adapter set in one swap.
func (r *Registry) Reload(adapters ...Adapter) {
	next := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		next[a.Name()] = a
	}

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()

	r.logger.Info("gateway registry reloaded", "gateways", len(next))
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
