// Package routing selects a backend for each AI request and walks the
// candidate list until one succeeds. Ordering comes from the registry
// (priority plus capability defaults) refined by the active strategy;
// failure handling is strategy-dependent, but a backend that simply does
// not serve the capability is always skipped.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openmeet/ai-router/providers"
)

const defaultHealthTimeout = 5 * time.Second

// Options tunes a single routed request.
type Options struct {
	// Provider pins the request to one backend. Its failure surfaces
	// directly; no rerouting happens, even when the backend is disabled.
	Provider *providers.ProviderType

	// Capability overrides the operation's natural capability for
	// candidate selection. Used to route summarization and sentiment
	// requests over chat-serving backends.
	Capability providers.Capability
}

func (o *Options) capabilityOr(fallback providers.Capability) providers.Capability {
	if o != nil && o.Capability != "" {
		return o.Capability
	}
	return fallback
}

func (o *Options) explicit() *providers.ProviderType {
	if o == nil {
		return nil
	}
	return o.Provider
}

// Manager routes requests across the registered providers.
type Manager struct {
	registry      *providers.Registry
	logger        *zap.Logger
	latency       *latencyTracker
	limiter       *rpmLimiter
	healthTimeout time.Duration

	mu       sync.RWMutex
	strategy Strategy
}

// NewManager creates a routing manager with the given strategy.
func NewManager(registry *providers.Registry, strategy Strategy, logger *zap.Logger) *Manager {
	if !strategy.Valid() {
		strategy = StrategyFallback
	}
	return &Manager{
		registry:      registry,
		logger:        logger,
		latency:       newLatencyTracker(),
		limiter:       newRPMLimiter(),
		healthTimeout: defaultHealthTimeout,
		strategy:      strategy,
	}
}

// SetHealthTimeout overrides the per-probe timeout used by HealthCheckAll.
// Non-positive values are ignored. Call during wiring, before requests flow.
func (m *Manager) SetHealthTimeout(d time.Duration) {
	if d > 0 {
		m.healthTimeout = d
	}
}

// Registry exposes the underlying provider registry.
func (m *Manager) Registry() *providers.Registry {
	return m.registry
}

// Strategy returns the active routing strategy.
func (m *Manager) Strategy() Strategy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategy
}

// SetStrategy switches the routing strategy at runtime.
func (m *Manager) SetStrategy(s Strategy) error {
	if !s.Valid() {
		return fmt.Errorf("unknown routing strategy %q", s)
	}
	m.mu.Lock()
	m.strategy = s
	m.mu.Unlock()
	return nil
}

// Transcribe routes a transcription request.
func (m *Manager) Transcribe(ctx context.Context, req *providers.TranscriptionRequest, opts *Options) (*providers.TranscriptionResponse, error) {
	return route(m, ctx, opts.capabilityOr(providers.CapabilityTranscription), opts.explicit(), nil,
		func(ctx context.Context, p providers.Provider) (*providers.TranscriptionResponse, error) {
			return p.Transcribe(ctx, req)
		})
}

// ChatCompletion routes a chat completion request.
func (m *Manager) ChatCompletion(ctx context.Context, req *providers.ChatRequest, opts *Options) (*providers.ChatResponse, error) {
	return route(m, ctx, opts.capabilityOr(providers.CapabilityChat), opts.explicit(), req,
		func(ctx context.Context, p providers.Provider) (*providers.ChatResponse, error) {
			return p.ChatCompletion(ctx, req)
		})
}

// GenerateEmbedding routes an embedding request.
func (m *Manager) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest, opts *Options) (*providers.EmbeddingResponse, error) {
	return route(m, ctx, opts.capabilityOr(providers.CapabilityEmbedding), opts.explicit(), nil,
		func(ctx context.Context, p providers.Provider) (*providers.EmbeddingResponse, error) {
			return p.GenerateEmbedding(ctx, req)
		})
}

// VisionCompletion routes a vision request.
func (m *Manager) VisionCompletion(ctx context.Context, req *providers.VisionRequest, opts *Options) (*providers.VisionResponse, error) {
	return route(m, ctx, opts.capabilityOr(providers.CapabilityVision), opts.explicit(), nil,
		func(ctx context.Context, p providers.Provider) (*providers.VisionResponse, error) {
			return p.VisionCompletion(ctx, req)
		})
}

// ChatCompletionStream routes a streaming chat completion. Rerouting to
// the next candidate is only possible before the first fragment reaches
// the handler; once output has been delivered a failure surfaces to the
// caller so partial text is never silently restarted on another backend.
func (m *Manager) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, opts *Options, handler providers.StreamHandler) error {
	type streamResult struct{ delivered bool }

	_, err := route(m, ctx, opts.capabilityOr(providers.CapabilityChat), opts.explicit(), req,
		func(ctx context.Context, p providers.Provider) (*streamResult, error) {
			result := &streamResult{}
			wrapped := func(chunk string) error {
				result.delivered = true
				return handler(chunk)
			}
			if err := p.ChatCompletionStream(ctx, req, wrapped); err != nil {
				if result.delivered {
					// Mid-stream failure: terminal for the whole walk.
					return nil, &midStreamError{err: err}
				}
				return nil, err
			}
			return result, nil
		})

	var mid *midStreamError
	if err != nil {
		if asMidStream(err, &mid) {
			return mid.err
		}
		return err
	}
	return nil
}

// route walks the ordered candidates for a capability and returns the
// first success. At most one provider produces output for a request.
func route[T any](
	m *Manager,
	ctx context.Context,
	capability providers.Capability,
	explicit *providers.ProviderType,
	chatReq *providers.ChatRequest,
	call func(ctx context.Context, p providers.Provider) (T, error),
) (T, error) {
	var zero T

	candidates, err := m.registry.CandidatesFor(capability, explicit)
	if err != nil {
		return zero, err
	}
	if len(candidates) == 0 {
		return zero, noProviderErr(capability)
	}

	strategy := m.Strategy()
	if explicit == nil {
		m.orderCandidates(strategy, candidates, chatReq)
	}

	var lastErr error
	attempts := 0

	for _, candidate := range candidates {
		attempts++

		if rpm := m.registry.RateLimitRPM(candidate.Type()); rpm > 0 {
			if ok, resetAt := m.limiter.allow(candidate.Type(), rpm); !ok {
				m.logger.Warn("provider over local rate limit",
					zap.String("provider", string(candidate.Type())),
					zap.Time("reset_at", resetAt))
				lastErr = providers.NewProviderError(candidate.Type(), providers.CodeRateLimited,
					fmt.Sprintf("request cap of %d/min reached, resets at %s", rpm, resetAt.Format(time.RFC3339)),
					0, true, nil)
				if explicit != nil || !strategy.continuesOnFailure() {
					return zero, lastErr
				}
				continue
			}
		}

		start := time.Now()

		resp, err := call(ctx, candidate)
		if err == nil {
			m.latency.record(candidate.Type(), time.Since(start))
			m.logger.Debug("request routed",
				zap.String("capability", string(capability)),
				zap.String("provider", string(candidate.Type())),
				zap.Duration("elapsed", time.Since(start)))
			return resp, nil
		}

		var mid *midStreamError
		if asMidStream(err, &mid) {
			// Output already reached the caller; never reroute.
			return zero, err
		}

		if providers.IsUnsupported(err) {
			if explicit != nil {
				// The caller named this backend; unsupported is its
				// answer, not a reason to report an empty walk.
				return zero, err
			}
			// Not a failure: the backend just does not serve this.
			m.logger.Debug("provider skipped",
				zap.String("capability", string(capability)),
				zap.String("provider", string(candidate.Type())))
			attempts--
			continue
		}

		m.logger.Warn("provider failed",
			zap.String("capability", string(capability)),
			zap.String("provider", string(candidate.Type())),
			zap.Error(err))
		lastErr = err

		if explicit != nil || !strategy.continuesOnFailure() {
			return zero, err
		}
	}

	if lastErr != nil {
		return zero, &AllProvidersFailedError{Capability: capability, Attempts: attempts, LastErr: lastErr}
	}
	return zero, noProviderErr(capability)
}

// midStreamError marks a failure that happened after stream output was
// delivered, so the walk must stop instead of falling back.
type midStreamError struct {
	err error
}

func (e *midStreamError) Error() string { return e.err.Error() }
func (e *midStreamError) Unwrap() error { return e.err }

func asMidStream(err error, target **midStreamError) bool {
	for err != nil {
		if mid, ok := err.(*midStreamError); ok {
			*target = mid
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
