package routing

import (
	"fmt"
	"sort"

	"github.com/openmeet/ai-router/providers"
)

// Strategy controls how candidates are ordered and whether a failure moves
// on to the next one.
type Strategy string

const (
	// StrategyFallback keeps the registry order and tries the next
	// candidate after a failure. This is the default.
	StrategyFallback Strategy = "fallback"

	// StrategyPriority keeps the registry order but stops at the first
	// failure.
	StrategyPriority Strategy = "priority"

	// StrategyCostOptimized orders candidates by estimated request cost,
	// cheapest first, and stops at the first failure.
	StrategyCostOptimized Strategy = "cost_optimized"

	// StrategyFastest orders candidates by observed average latency and
	// stops at the first failure.
	StrategyFastest Strategy = "fastest"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFallback, StrategyPriority, StrategyCostOptimized, StrategyFastest:
		return true
	}
	return false
}

// ParseStrategy converts a string to a Strategy, defaulting to fallback
// for the empty string.
func ParseStrategy(raw string) (Strategy, error) {
	if raw == "" {
		return StrategyFallback, nil
	}
	s := Strategy(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown routing strategy %q", raw)
	}
	return s, nil
}

// continuesOnFailure reports whether a provider failure moves on to the
// next candidate. Unsupported capabilities always skip regardless.
func (s Strategy) continuesOnFailure() bool {
	return s == StrategyFallback
}

// orderCandidates reorders the registry's candidate snapshot in place
// according to the strategy. The strategy comes in as the caller's
// snapshot so a concurrent SetStrategy cannot race the walk. chatReq
// feeds cost estimation and may be nil for non-chat capabilities, in
// which case cost ordering degrades to the registry order.
func (m *Manager) orderCandidates(strategy Strategy, candidates []providers.Provider, chatReq *providers.ChatRequest) {
	switch strategy {
	case StrategyCostOptimized:
		if chatReq == nil {
			return
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return m.estimateTotal(candidates[i], chatReq) < m.estimateTotal(candidates[j], chatReq)
		})
	case StrategyFastest:
		sort.SliceStable(candidates, func(i, j int) bool {
			return m.latency.average(candidates[i].Type()) < m.latency.average(candidates[j].Type())
		})
	}
}

func (m *Manager) estimateTotal(p providers.Provider, req *providers.ChatRequest) float64 {
	estimate, err := p.EstimateCost(req, req.Model)
	if err != nil {
		return 0
	}
	return estimate.TotalCost
}
