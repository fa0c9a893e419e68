package routing

import (
	"sync"
	"time"

	"github.com/openmeet/ai-router/providers"
)

// rpmLimiter enforces per-provider request caps with an in-memory sliding
// window. Events older than the window are pruned on every check, so memory
// stays proportional to the configured limits.
type rpmLimiter struct {
	mu     sync.Mutex
	events map[providers.ProviderType][]time.Time
	window time.Duration
	now    func() time.Time
}

func newRPMLimiter() *rpmLimiter {
	return &rpmLimiter{
		events: make(map[providers.ProviderType][]time.Time),
		window: time.Minute,
		now:    time.Now,
	}
}

// allow reports whether another request to the provider fits under limit
// requests per window, recording it when it does. A limit of zero or less
// means unlimited.
func (l *rpmLimiter) allow(t providers.ProviderType, limit int) (bool, time.Time) {
	if limit <= 0 {
		return true, time.Time{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[t][:0]
	for _, ts := range l.events[t] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events[t] = kept

	if len(kept) >= limit {
		// The window slides; capacity frees up when the oldest event ages out.
		return false, kept[0].Add(l.window)
	}

	l.events[t] = append(kept, now)
	return true, time.Time{}
}
