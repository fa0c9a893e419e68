package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openmeet/ai-router/app"
	"github.com/openmeet/ai-router/config"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/routing"
)

// fakeProvider serves chat and summarization from a canned reply.
type fakeProvider struct {
	pt      providers.ProviderType
	reply   string
	chatErr error
	healthy bool
}

func (f *fakeProvider) Type() providers.ProviderType { return f.pt }

func (f *fakeProvider) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	return &providers.TranscriptionResponse{Text: "transcribed", Provider: f.pt}, nil
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &providers.ChatResponse{Content: f.reply, Model: "test-model", Provider: f.pt, FinishReason: "stop"}, nil
}

func (f *fakeProvider) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	for _, chunk := range strings.SplitAfter(f.reply, " ") {
		if err := handler(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProvider) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	out := make([][]float64, len(req.Input))
	for i := range req.Input {
		out[i] = []float64{0.1}
	}
	return &providers.EmbeddingResponse{Embeddings: out, Provider: f.pt}, nil
}

func (f *fakeProvider) VisionCompletion(ctx context.Context, req *providers.VisionRequest) (*providers.VisionResponse, error) {
	return &providers.VisionResponse{Content: "a whiteboard", Provider: f.pt}, nil
}

func (f *fakeProvider) ListModels() []providers.ModelInfo {
	return []providers.ModelInfo{
		{ID: "test-model", Provider: f.pt, Capabilities: []providers.Capability{providers.CapabilityChat}},
		{ID: "test-whisper", Provider: f.pt, Capabilities: []providers.Capability{providers.CapabilityTranscription}},
	}
}

func (f *fakeProvider) HealthCheck(ctx context.Context) bool { return f.healthy }

func (f *fakeProvider) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapabilityChat,
		providers.CapabilityTranscription,
		providers.CapabilityEmbedding,
		providers.CapabilityVision,
		providers.CapabilitySummarization,
	}
}

func (f *fakeProvider) EstimateCost(req *providers.ChatRequest, model string) (*providers.CostEstimate, error) {
	return &providers.CostEstimate{TotalCost: 0.01}, nil
}

func (f *fakeProvider) Enabled() bool { return true }
func (f *fakeProvider) Priority() int { return 50 }
func (f *fakeProvider) Close() error  { return nil }

type fakeFactory struct {
	provider *fakeProvider
}

func (f *fakeFactory) Create(cfg providers.ProviderConfig) (providers.Provider, error) {
	return f.provider, nil
}

func newTestDeps(t *testing.T, provider *fakeProvider) *app.Dependencies {
	t.Helper()
	logger := zaptest.NewLogger(t)

	registry := providers.NewRegistry(&fakeFactory{provider: provider}, logger)
	if provider != nil {
		require.NoError(t, registry.Register(providers.DefaultProviderConfig(provider.pt)))
	}

	return &app.Dependencies{
		Config:   &config.Config{},
		Logger:   logger,
		Registry: registry,
		Router:   routing.NewManager(registry, routing.StrategyFallback, logger),
		Store:    config.NewStore(filepath.Join(t.TempDir(), "providers.json"), logger),
		Validate: validator.New(),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestChatCompletionHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "hello there", healthy: true})

	rec := postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, providers.ProviderOpenAI, resp.Provider)
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
}

func TestChatCompletionHandlerValidation(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, ChatCompletionHandler(deps), `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, ChatCompletionHandler(deps), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"robot","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatCompletionHandlerUnknownProviderPin(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}],"provider":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatCompletionHandlerNoProviders(t *testing.T) {
	deps := newTestDeps(t, nil)

	rec := postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatCompletionHandlerUpstreamFailure(t *testing.T) {
	failing := &fakeProvider{
		pt:      providers.ProviderOpenAI,
		chatErr: providers.NewProviderError(providers.ProviderOpenAI, providers.CodeUpstream, "boom", 500, true, nil),
	}
	deps := newTestDeps(t, failing)

	rec := postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatCompletionHandlerStream(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "hello world"})

	rec := postJSON(t, ChatCompletionHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"content":"hello "`)
	assert.Contains(t, body, "data: [DONE]")
}

func TestTranscribeHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderLocal, reply: "x"})

	rec := postJSON(t, TranscribeHandler(deps), `{"audio_path":"/tmp/meeting.wav"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transcribed")

	rec = postJSON(t, TranscribeHandler(deps), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmbeddingHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, EmbeddingHandler(deps), `{"input":["alpha","beta"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, EmbeddingHandler(deps), `{"input":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "decisions were made"})

	rec := postJSON(t, SummarizeHandler(deps), `{"text":"long transcript here"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "decisions were made")
}

func TestStatusHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	StatusHandler(deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fallback")
	assert.Contains(t, rec.Body.String(), "openai")
}

func TestProvidersHealthHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x", healthy: true})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/health", nil)
	rec := httptest.NewRecorder()
	ProvidersHealthHandler(deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":1`)
}

func TestListModelsHandlerFiltersByCapability(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models?capability=chat", nil)
	rec := httptest.NewRecorder()
	ListModelsHandler(deps)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "test-model")
	assert.NotContains(t, rec.Body.String(), "test-whisper")
}

func TestCompareCostHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, CompareCostHandler(deps),
		`{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cheapest")
}

func TestSetStrategyHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, SetStrategyHandler(deps), `{"strategy":"fastest"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, routing.StrategyFastest, deps.Router.Strategy())

	rec = postJSON(t, SetStrategyHandler(deps), `{"strategy":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetDefaultHandler(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	rec := postJSON(t, SetDefaultHandler(deps), `{"capability":"chat","provider":"openai"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	def, ok := deps.Registry.Default(providers.CapabilityChat)
	require.True(t, ok)
	assert.Equal(t, providers.ProviderOpenAI, def)

	// Unregistered provider is rejected.
	rec = postJSON(t, SetDefaultHandler(deps), `{"capability":"chat","provider":"anthropic"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProviderMergesOverStoredConfig(t *testing.T) {
	deps := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})

	stored := providers.DefaultProviderConfig(providers.ProviderOpenAI)
	stored.APIKey = "sk-old"
	stored.Organization = "org-meet"
	stored.Timeout = 300 * time.Second
	stored.RateLimitRPM = 30
	require.NoError(t, deps.Store.Save(&config.Document{
		Providers: map[providers.ProviderType]providers.ProviderConfig{
			providers.ProviderOpenAI: stored,
		},
	}))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/providers/openai",
		strings.NewReader(`{"enabled":true,"api_key":"sk-new"}`))
	req.Header.Set("Content-Type", "application/json")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("type", "openai")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	UpdateProviderHandler(deps)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	doc, err := deps.Store.Load()
	require.NoError(t, err)
	got := doc.Providers[providers.ProviderOpenAI]
	assert.Equal(t, "sk-new", got.APIKey)
	assert.Equal(t, "org-meet", got.Organization, "unmentioned settings must survive the update")
	assert.Equal(t, 300*time.Second, got.Timeout)
	assert.Equal(t, 30, got.RateLimitRPM)
}

func TestReadinessCheck(t *testing.T) {
	ready := newTestDeps(t, &fakeProvider{pt: providers.ProviderOpenAI, reply: "x"})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	ReadinessCheck(ready)(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	empty := newTestDeps(t, nil)
	rec = httptest.NewRecorder()
	ReadinessCheck(empty)(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
