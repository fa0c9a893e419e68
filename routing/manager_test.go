package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openmeet/ai-router/providers"
)

// stubProvider is a scriptable Provider for routing tests.
type stubProvider struct {
	pt       providers.ProviderType
	enabled  bool
	priority int
	rpm      int
	caps     []providers.Capability

	chatErr   error
	chatResp  string
	chatCalls int

	streamFn func(handler providers.StreamHandler) error
	healthFn func(ctx context.Context) bool
	cost     float64
}

func (s *stubProvider) Type() providers.ProviderType { return s.pt }

func (s *stubProvider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	if !s.has(providers.CapabilityTranscription) {
		return nil, providers.NewUnsupportedError(s.pt, providers.CapabilityTranscription)
	}
	return &providers.TranscriptionResponse{Text: "transcript", Provider: s.pt}, nil
}

func (s *stubProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	s.chatCalls++
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &providers.ChatResponse{Content: s.chatResp, Provider: s.pt}, nil
}

func (s *stubProvider) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	s.chatCalls++
	if s.streamFn != nil {
		return s.streamFn(handler)
	}
	if s.chatErr != nil {
		return s.chatErr
	}
	return handler(s.chatResp)
}

func (s *stubProvider) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if !s.has(providers.CapabilityEmbedding) {
		return nil, providers.NewUnsupportedError(s.pt, providers.CapabilityEmbedding)
	}
	return &providers.EmbeddingResponse{Provider: s.pt}, nil
}

func (s *stubProvider) VisionCompletion(ctx context.Context, req *providers.VisionRequest) (*providers.VisionResponse, error) {
	if !s.has(providers.CapabilityVision) {
		return nil, providers.NewUnsupportedError(s.pt, providers.CapabilityVision)
	}
	return &providers.VisionResponse{Provider: s.pt}, nil
}

func (s *stubProvider) ListModels() []providers.ModelInfo {
	return []providers.ModelInfo{{ID: string(s.pt) + "-model", Provider: s.pt}}
}

func (s *stubProvider) HealthCheck(ctx context.Context) bool {
	if s.healthFn != nil {
		return s.healthFn(ctx)
	}
	return true
}

func (s *stubProvider) Capabilities() []providers.Capability { return s.caps }

func (s *stubProvider) EstimateCost(req *providers.ChatRequest, model string) (*providers.CostEstimate, error) {
	return &providers.CostEstimate{TotalCost: s.cost}, nil
}

func (s *stubProvider) Enabled() bool  { return s.enabled }
func (s *stubProvider) Priority() int  { return s.priority }
func (s *stubProvider) Close() error   { return nil }

func (s *stubProvider) has(c providers.Capability) bool {
	for _, sc := range s.caps {
		if sc == c {
			return true
		}
	}
	return false
}

// stubFactory hands out pre-built stubs keyed by provider type.
type stubFactory struct {
	stubs map[providers.ProviderType]*stubProvider
}

func (f *stubFactory) Create(cfg providers.ProviderConfig) (providers.Provider, error) {
	return f.stubs[cfg.Type], nil
}

// newTestManager registers the given stubs in order and returns a manager.
func newTestManager(t *testing.T, strategy Strategy, stubs ...*stubProvider) *Manager {
	t.Helper()

	factory := &stubFactory{stubs: make(map[providers.ProviderType]*stubProvider)}
	for _, s := range stubs {
		factory.stubs[s.pt] = s
	}

	registry := providers.NewRegistry(factory, zaptest.NewLogger(t))
	for _, s := range stubs {
		cfg := providers.DefaultProviderConfig(s.pt)
		cfg.Enabled = s.enabled
		cfg.Priority = s.priority
		cfg.RateLimitRPM = s.rpm
		require.NoError(t, registry.Register(cfg))
	}

	return NewManager(registry, strategy, zaptest.NewLogger(t))
}

func chatStub(pt providers.ProviderType, priority int) *stubProvider {
	return &stubProvider{
		pt:       pt,
		enabled:  true,
		priority: priority,
		caps:     []providers.Capability{providers.CapabilityChat},
		chatResp: string(pt) + "-reply",
	}
}

var errUpstream = providers.NewProviderError(providers.ProviderOpenAI, providers.CodeUpstream, "boom", 500, true, nil)

func TestFallbackMovesToNextCandidate(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.chatErr = errUpstream
	second := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, first, second)

	resp, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderAnthropic, resp.Provider)
	assert.Equal(t, 1, first.chatCalls)
	assert.Equal(t, 1, second.chatCalls)
}

func TestUnsupportedSkippedSilently(t *testing.T) {
	first := chatStub(providers.ProviderAnthropic, 1)
	first.chatErr = providers.NewUnsupportedError(providers.ProviderAnthropic, providers.CapabilityChat)
	second := chatStub(providers.ProviderLocal, 2)

	// Priority stops on failure, so reaching the second provider proves
	// the unsupported result was a skip, not a failure.
	m := newTestManager(t, StrategyPriority, first, second)

	resp, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderLocal, resp.Provider)
}

func TestPriorityStrategyStopsOnFailure(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.chatErr = errUpstream
	second := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyPriority, first, second)

	_, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.Error(t, err)

	var perr *providers.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, second.chatCalls, "priority strategy must not fall back")
}

func TestAllProvidersFailed(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.chatErr = errUpstream
	lastFailure := providers.NewProviderError(providers.ProviderAnthropic, providers.CodeRateLimited, "slow down", 429, true, nil)
	second := chatStub(providers.ProviderAnthropic, 2)
	second.chatErr = lastFailure

	m := newTestManager(t, StrategyFallback, first, second)

	_, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.Error(t, err)

	var allFailed *AllProvidersFailedError
	require.ErrorAs(t, err, &allFailed)
	assert.Equal(t, 2, allFailed.Attempts)
	assert.ErrorIs(t, err, lastFailure, "the last provider failure must be preserved")
}

func TestNoProviderAvailable(t *testing.T) {
	m := newTestManager(t, StrategyFallback)

	_, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestAllUnsupportedYieldsNoProvider(t *testing.T) {
	only := chatStub(providers.ProviderAnthropic, 1)
	only.chatErr = providers.NewUnsupportedError(providers.ProviderAnthropic, providers.CapabilityChat)

	m := newTestManager(t, StrategyFallback, only)

	_, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestExplicitProviderFailureSurfacesDirectly(t *testing.T) {
	pinned := chatStub(providers.ProviderOpenAI, 1)
	pinned.chatErr = errUpstream
	other := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, pinned, other)

	explicit := providers.ProviderOpenAI
	_, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, &Options{Provider: &explicit})
	require.Error(t, err)

	var perr *providers.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, other.chatCalls, "a pinned request must never reroute")
}

func TestExplicitUnsupportedFailsWithoutReroute(t *testing.T) {
	pinned := chatStub(providers.ProviderAnthropic, 1) // chat only
	transcriber := &stubProvider{
		pt:       providers.ProviderLocal,
		enabled:  true,
		priority: 2,
		caps:     []providers.Capability{providers.CapabilityTranscription},
	}

	m := newTestManager(t, StrategyFallback, pinned, transcriber)

	explicit := providers.ProviderAnthropic
	_, err := m.Transcribe(context.Background(), &providers.TranscriptionRequest{
		AudioPath: "/tmp/meeting.wav",
	}, &Options{Provider: &explicit})
	require.Error(t, err)

	assert.True(t, providers.IsUnsupported(err),
		"a pinned backend that cannot serve the capability must answer unsupported")
	assert.ErrorIs(t, err, providers.ErrCapabilityUnsupported)
	assert.NotErrorIs(t, err, ErrNoProviderAvailable)
}

func TestExplicitProviderOverridesDefault(t *testing.T) {
	def := chatStub(providers.ProviderOpenAI, 1)
	pinned := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, def, pinned)
	require.NoError(t, m.Registry().SetDefault(providers.CapabilityChat, providers.ProviderOpenAI))

	explicit := providers.ProviderAnthropic
	resp, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, &Options{Provider: &explicit})
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderAnthropic, resp.Provider)
	assert.Equal(t, 0, def.chatCalls)
}

func TestStreamFallsBackBeforeFirstChunk(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.streamFn = func(handler providers.StreamHandler) error {
		return errUpstream // fails before emitting anything
	}
	second := chatStub(providers.ProviderAnthropic, 2)
	second.streamFn = func(handler providers.StreamHandler) error {
		if err := handler("hel"); err != nil {
			return err
		}
		return handler("lo")
	}

	m := newTestManager(t, StrategyFallback, first, second)

	var got string
	err := m.ChatCompletionStream(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil, func(chunk string) error {
		got += chunk
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestStreamMidFailureSurfacesToCaller(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.streamFn = func(handler providers.StreamHandler) error {
		if err := handler("partial"); err != nil {
			return err
		}
		return errUpstream // fails after output was delivered
	}
	second := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, first, second)

	var got string
	err := m.ChatCompletionStream(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil, func(chunk string) error {
		got += chunk
		return nil
	})
	require.Error(t, err)

	var perr *providers.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, "partial", got)
	assert.Equal(t, 0, second.chatCalls, "mid-stream failure must not restart on another backend")
}

func TestCostOptimizedPrefersCheapest(t *testing.T) {
	expensive := chatStub(providers.ProviderOpenAI, 1)
	expensive.cost = 0.10
	cheap := chatStub(providers.ProviderLocal, 2)
	cheap.cost = 0.0

	m := newTestManager(t, StrategyCostOptimized, expensive, cheap)

	resp, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderLocal, resp.Provider,
		"cost-optimized must try the cheapest provider first")
}

func TestFastestPrefersLowestLatency(t *testing.T) {
	slow := chatStub(providers.ProviderOpenAI, 1)
	fast := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFastest, slow, fast)
	m.latency.record(providers.ProviderOpenAI, 800*time.Millisecond)
	m.latency.record(providers.ProviderAnthropic, 50*time.Millisecond)

	resp, err := m.ChatCompletion(context.Background(), &providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderAnthropic, resp.Provider)
}

func TestHealthCheckAllIsolatesHungProbe(t *testing.T) {
	hung := chatStub(providers.ProviderOpenAI, 1)
	hung.healthFn = func(ctx context.Context) bool {
		<-ctx.Done() // never answers on its own
		return false
	}
	healthy := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, hung, healthy)
	m.healthTimeout = 50 * time.Millisecond

	start := time.Now()
	results := m.HealthCheckAll(context.Background())
	elapsed := time.Since(start)

	assert.False(t, results[providers.ProviderOpenAI])
	assert.True(t, results[providers.ProviderAnthropic])
	assert.Less(t, elapsed, time.Second, "a hung probe must not block the sweep")
}

func TestCompareProviders(t *testing.T) {
	hosted := chatStub(providers.ProviderOpenAI, 1)
	hosted.cost = 0.05
	free := chatStub(providers.ProviderLocal, 2)
	free.cost = 0.0

	m := newTestManager(t, StrategyFallback, hosted, free)

	comparison, err := m.CompareProviders(&providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: "hi"}},
	}, "")
	require.NoError(t, err)
	assert.Len(t, comparison.Estimates, 2)
	assert.Equal(t, providers.ProviderLocal, comparison.Cheapest)
}

func TestGetStatus(t *testing.T) {
	a := chatStub(providers.ProviderOpenAI, 1)
	b := chatStub(providers.ProviderLocal, 7)

	m := newTestManager(t, StrategyFallback, a, b)
	require.NoError(t, m.Registry().SetDefault(providers.CapabilityChat, providers.ProviderLocal))

	status := m.GetStatus()
	assert.Equal(t, StrategyFallback, status.Strategy)
	require.Len(t, status.Providers, 2)
	assert.Equal(t, providers.ProviderLocal, status.Defaults[providers.CapabilityChat])
	assert.Equal(t, 7, status.Providers[1].Priority)
}

func TestListAllModels(t *testing.T) {
	m := newTestManager(t, StrategyFallback,
		chatStub(providers.ProviderOpenAI, 1),
		chatStub(providers.ProviderAnthropic, 2))

	models := m.ListAllModels()
	assert.Len(t, models, 2)
}

func TestSetStrategy(t *testing.T) {
	m := newTestManager(t, StrategyFallback)

	require.NoError(t, m.SetStrategy(StrategyFastest))
	assert.Equal(t, StrategyFastest, m.Strategy())

	err := m.SetStrategy(Strategy("bogus"))
	assert.Error(t, err)
	assert.Equal(t, StrategyFastest, m.Strategy())
}

func TestSetStrategySafeDuringRouting(t *testing.T) {
	m := newTestManager(t, StrategyCostOptimized,
		chatStub(providers.ProviderOpenAI, 1),
		chatStub(providers.ProviderAnthropic, 2))

	req := &providers.ChatRequest{Messages: []providers.Message{{Role: "user", Content: "hi"}}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := m.ChatCompletion(context.Background(), req, nil)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			require.NoError(t, m.SetStrategy(StrategyFastest))
			require.NoError(t, m.SetStrategy(StrategyCostOptimized))
		}
	}()
	wg.Wait()
}

func TestSetHealthTimeout(t *testing.T) {
	m := newTestManager(t, StrategyFallback)

	m.SetHealthTimeout(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, m.healthTimeout)

	m.SetHealthTimeout(0)
	assert.Equal(t, 250*time.Millisecond, m.healthTimeout, "non-positive values are ignored")
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyFallback, s)

	s, err = ParseStrategy("cost_optimized")
	require.NoError(t, err)
	assert.Equal(t, StrategyCostOptimized, s)

	_, err = ParseStrategy("nope")
	assert.Error(t, err)
}

func TestErrorsIsWorksThroughAllProvidersFailed(t *testing.T) {
	inner := errors.New("inner")
	wrapped := &AllProvidersFailedError{Capability: providers.CapabilityChat, Attempts: 1, LastErr: inner}
	assert.ErrorIs(t, wrapped, inner)
}
