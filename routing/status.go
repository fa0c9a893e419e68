package routing

import (
	"context"
	"sync"
	"time"

	"github.com/openmeet/ai-router/providers"
)

// ProviderStatus is the operational snapshot of one registered provider.
type ProviderStatus struct {
	Type         providers.ProviderType `json:"type"`
	Enabled      bool                   `json:"enabled"`
	Priority     int                    `json:"priority"`
	Capabilities []providers.Capability `json:"capabilities"`
	ModelCount   int                    `json:"model_count"`
	AvgLatencyMS float64                `json:"avg_latency_ms"`
}

// Status returns a snapshot of every registered provider plus the active
// strategy and capability defaults.
type Status struct {
	Strategy  Strategy                                       `json:"strategy"`
	Providers []ProviderStatus                               `json:"providers"`
	Defaults  map[providers.Capability]providers.ProviderType `json:"defaults"`
}

// GetStatus reports the registry and latency state. No backend I/O happens
// here; use HealthCheckAll for liveness.
func (m *Manager) GetStatus() *Status {
	latencies := m.latency.snapshot()

	list := m.registry.List()
	statuses := make([]ProviderStatus, 0, len(list))
	for _, p := range list {
		statuses = append(statuses, ProviderStatus{
			Type:         p.Type(),
			Enabled:      p.Enabled(),
			Priority:     p.Priority(),
			Capabilities: p.Capabilities(),
			ModelCount:   len(p.ListModels()),
			AvgLatencyMS: float64(latencies[p.Type()]) / float64(time.Millisecond),
		})
	}

	return &Status{
		Strategy:  m.Strategy(),
		Providers: statuses,
		Defaults:  m.registry.Defaults(),
	}
}

// HealthCheckAll probes every registered provider concurrently. Each probe
// gets its own timeout, so one hung backend cannot delay the rest.
func (m *Manager) HealthCheckAll(ctx context.Context) map[providers.ProviderType]bool {
	list := m.registry.List()

	results := make(map[providers.ProviderType]bool, len(list))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range list {
		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, m.healthTimeout)
			defer cancel()

			healthy := p.HealthCheck(probeCtx)

			mu.Lock()
			results[p.Type()] = healthy
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return results
}

// Comparison holds per-provider cost estimates for the same request.
type Comparison struct {
	Estimates map[providers.ProviderType]*providers.CostEstimate `json:"estimates"`
	Cheapest  providers.ProviderType                             `json:"cheapest"`
}

// CompareProviders prices a chat request against every enabled chat
// provider and names the cheapest. Estimation is pure, so this performs no
// backend I/O.
func (m *Manager) CompareProviders(req *providers.ChatRequest, model string) (*Comparison, error) {
	candidates, err := m.registry.CandidatesFor(providers.CapabilityChat, nil)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, noProviderErr(providers.CapabilityChat)
	}

	comparison := &Comparison{
		Estimates: make(map[providers.ProviderType]*providers.CostEstimate, len(candidates)),
	}

	best := -1.0
	for _, p := range candidates {
		estimate, err := p.EstimateCost(req, model)
		if err != nil {
			continue
		}
		comparison.Estimates[p.Type()] = estimate
		if best < 0 || estimate.TotalCost < best {
			best = estimate.TotalCost
			comparison.Cheapest = p.Type()
		}
	}

	return comparison, nil
}

// ListAllModels aggregates the model catalogs of every registered provider.
func (m *Manager) ListAllModels() []providers.ModelInfo {
	var out []providers.ModelInfo
	for _, p := range m.registry.List() {
		out = append(out, p.ListModels()...)
	}
	return out
}
