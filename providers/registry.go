package providers

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory constructs the correct adapter variant for a provider type.
// Implemented outside this package so adapters can depend on the contract
// without a cycle.
type Factory interface {
	Create(cfg ProviderConfig) (Provider, error)
}

// Registry holds the set of live adapters, at most one per provider type,
// plus the operator-chosen per-capability defaults.
//
// Administrative operations are safe to run concurrently with candidate
// reads: CandidatesFor returns a point-in-time snapshot, so an in-flight
// request keeps its adapter references across a concurrent unregister.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderType]Provider
	configs   map[ProviderType]ProviderConfig
	order     []ProviderType // registration order, for stable tie-breaks
	defaults  map[Capability]ProviderType
	factory   Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry that builds adapters via factory.
func NewRegistry(factory Factory, logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[ProviderType]Provider),
		configs:   make(map[ProviderType]ProviderConfig),
		defaults:  make(map[Capability]ProviderType),
		factory:   factory,
		logger:    logger,
	}
}

// Register constructs an adapter from cfg and stores it. A prior adapter for
// the same type is unregistered first, never silently shadowed.
func (r *Registry) Register(cfg ProviderConfig) error {
	if !cfg.Type.Valid() {
		return fmt.Errorf("%w: unknown provider type %q", ErrInvalidConfig, cfg.Type)
	}

	provider, err := r.factory.Create(cfg)
	if err != nil {
		return fmt.Errorf("create provider %s: %w", cfg.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.providers[cfg.Type]; exists {
		r.removeLocked(cfg.Type)
		if cerr := old.Close(); cerr != nil {
			r.logger.Warn("failed to close replaced provider",
				zap.String("provider", string(cfg.Type)),
				zap.Error(cerr))
		}
	}

	r.providers[cfg.Type] = provider
	r.configs[cfg.Type] = cfg
	r.order = append(r.order, cfg.Type)

	r.logger.Info("provider registered",
		zap.String("provider", string(cfg.Type)),
		zap.Int("priority", cfg.Priority),
		zap.Bool("enabled", cfg.Enabled))
	return nil
}

// Unregister removes and closes the adapter for the given type, clearing
// any capability defaults that pointed at it. Requests that already hold
// a candidate snapshot keep running against it.
func (r *Registry) Unregister(t ProviderType) error {
	r.mu.Lock()
	provider, exists := r.providers[t]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProviderNotFound, t)
	}
	r.removeLocked(t)
	for c, dt := range r.defaults {
		if dt == t {
			delete(r.defaults, c)
		}
	}
	r.mu.Unlock()

	if err := provider.Close(); err != nil {
		r.logger.Warn("failed to close provider",
			zap.String("provider", string(t)), zap.Error(err))
	}

	r.logger.Info("provider unregistered", zap.String("provider", string(t)))
	return nil
}

// removeLocked drops the adapter but leaves capability defaults alone:
// they point at a provider kind, and a replacement of the same kind must
// keep serving them. Unregister clears them itself.
func (r *Registry) removeLocked(t ProviderType) {
	delete(r.providers, t)
	delete(r.configs, t)
	for i, ot := range r.order {
		if ot == t {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// SetDefault records the preferred provider for a capability. The provider
// must currently be registered.
func (r *Registry) SetDefault(c Capability, t ProviderType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[t]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, t)
	}
	r.defaults[c] = t

	r.logger.Info("default provider set",
		zap.String("capability", string(c)),
		zap.String("provider", string(t)))
	return nil
}

// Default returns the configured default provider for a capability.
func (r *Registry) Default(c Capability) (ProviderType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.defaults[c]
	return t, ok
}

// Defaults returns a copy of the per-capability default table.
func (r *Registry) Defaults() map[Capability]ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Capability]ProviderType, len(r.defaults))
	for c, t := range r.defaults {
		out[c] = t
	}
	return out
}

// Get retrieves the live adapter for a provider type.
func (r *Registry) Get(t ProviderType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, exists := r.providers[t]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, t)
	}
	return provider, nil
}

// List returns all registered adapters in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.providers[t])
	}
	return out
}

// RateLimitRPM returns the configured per-minute request cap for a provider,
// or 0 when none applies.
func (r *Registry) RateLimitRPM(t ProviderType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[t].RateLimitRPM
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// CandidatesFor returns the ordered providers eligible to serve a
// capability, as a snapshot owned by the caller.
//
// With an explicit type the list is exactly that adapter, even when
// disabled: the caller asked for it by name, so its own failure is
// surfaced rather than silently rerouting. Otherwise adapters are filtered
// to enabled ones declaring the capability and sorted ascending by
// priority, ties preserving registration order. A configured capability
// default present in the filtered set is moved to the front.
func (r *Registry) CandidatesFor(c Capability, explicit *ProviderType) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if explicit != nil {
		provider, exists := r.providers[*explicit]
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, *explicit)
		}
		return []Provider{provider}, nil
	}

	candidates := make([]Provider, 0, len(r.order))
	for _, t := range r.order {
		p := r.providers[t]
		if p.Enabled() && SupportsCapability(p, c) {
			candidates = append(candidates, p)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority() < candidates[j].Priority()
	})

	if def, ok := r.defaults[c]; ok {
		for i, p := range candidates {
			if p.Type() == def {
				if i > 0 {
					moved := candidates[i]
					copy(candidates[1:i+1], candidates[:i])
					candidates[0] = moved
				}
				break
			}
		}
	}

	return candidates, nil
}
