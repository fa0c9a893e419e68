package routing

import (
	"sync"
	"time"

	"github.com/openmeet/ai-router/providers"
)

// latencyTracker keeps an exponential moving average of successful call
// latency per provider, feeding the fastest strategy.
type latencyTracker struct {
	mu       sync.RWMutex
	averages map[providers.ProviderType]time.Duration
}

const emaWeight = 0.2

func newLatencyTracker() *latencyTracker {
	return &latencyTracker{averages: make(map[providers.ProviderType]time.Duration)}
}

func (t *latencyTracker) record(pt providers.ProviderType, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.averages[pt]
	if !ok {
		t.averages[pt] = elapsed
		return
	}
	t.averages[pt] = time.Duration(float64(prev)*(1-emaWeight) + float64(elapsed)*emaWeight)
}

// average returns the tracked latency; providers never observed sort first
// so new backends get a chance to be measured.
func (t *latencyTracker) average(pt providers.ProviderType) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.averages[pt]
}

func (t *latencyTracker) snapshot() map[providers.ProviderType]time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[providers.ProviderType]time.Duration, len(t.averages))
	for pt, avg := range t.averages {
		out[pt] = avg
	}
	return out
}
