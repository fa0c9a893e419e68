// Package local adapts on-device inference runtimes (Whisper speech
// models, HuggingFace LLMs, sentence embedders) to the unified provider
// contract. Everything runs at zero API cost; the trade-off is that model
// weights must be loaded into memory before first use.
package local

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/providers"
)

const (
	defaultChatModel      = "llama-3.1-8b"
	defaultEmbeddingModel = "bge-large-en-v1.5"
	defaultWhisperModel   = "whisper-large-v3"
	defaultVisionModel    = "moondream2"

	defaultMaxWorkers = 2
)

// Adapter implements providers.Provider over local inference engines.
//
// Model loads are expensive (seconds to minutes) and serialized per model
// ID: concurrent first requests for the same model trigger exactly one
// load. Loaded instances are shared read-only. Inference itself is bounded
// by a worker semaphore so a burst cannot oversubscribe the device.
type Adapter struct {
	config  providers.ProviderConfig
	engines Engines
	logger  *zap.Logger

	speechModels    *modelCache[SpeechModel]
	languageModels  *modelCache[LanguageModel]
	embeddingModels *modelCache[EmbeddingModel]
	visionModels    *modelCache[VisionModel]

	workers chan struct{}
	models  map[string]providers.ModelInfo
}

// New creates a local adapter. The worker pool size comes from the
// "max_workers" extra setting, defaulting to 2.
func New(config providers.ProviderConfig, engines Engines, logger *zap.Logger) *Adapter {
	maxWorkers := defaultMaxWorkers
	if raw, ok := config.Extra["max_workers"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxWorkers = n
		}
	}

	return &Adapter{
		config:          config,
		engines:         engines,
		logger:          logger,
		speechModels:    newModelCache[SpeechModel](),
		languageModels:  newModelCache[LanguageModel](),
		embeddingModels: newModelCache[EmbeddingModel](),
		visionModels:    newModelCache[VisionModel](),
		workers:         make(chan struct{}, maxWorkers),
		models:          buildCatalog(),
	}
}

// Type returns the provider type.
func (a *Adapter) Type() providers.ProviderType {
	return providers.ProviderLocal
}

// Capabilities reflects which engines were injected.
func (a *Adapter) Capabilities() []providers.Capability {
	var caps []providers.Capability
	if a.engines.Speech != nil {
		caps = append(caps, providers.CapabilityTranscription)
	}
	if a.engines.LLM != nil {
		caps = append(caps,
			providers.CapabilityChat,
			providers.CapabilityTextGeneration,
			providers.CapabilitySummarization,
			providers.CapabilitySentimentAnalysis,
		)
	}
	if a.engines.Embedder != nil {
		caps = append(caps, providers.CapabilityEmbedding)
	}
	if a.engines.Vision != nil {
		caps = append(caps, providers.CapabilityVision)
	}
	return caps
}

// Transcribe runs local speech-to-text.
func (a *Adapter) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	if a.engines.Speech == nil {
		return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityTranscription)
	}

	start := time.Now()
	modelKey := a.whisperModelKey()

	model, err := a.speechModels.get(modelKey, func() (SpeechModel, error) {
		return a.loadSpeech(ctx, modelKey)
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUnavailable,
			fmt.Sprintf("failed to load speech model %s", modelKey), 0, true, err)
	}

	if err := a.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer a.releaseWorker()

	traceID := uuid.NewString()
	a.logger.Debug("local transcription started",
		zap.String("trace_id", traceID),
		zap.String("model", modelKey),
		zap.String("audio_path", req.AudioPath))

	transcript, err := model.Transcribe(ctx, req.AudioPath, TranscribeOptions{
		Language:       req.Language,
		WordTimestamps: req.Timestamps,
		VADFilter:      true,
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "transcription failed", 0, true, err)
	}

	return &providers.TranscriptionResponse{
		Text:       transcript.Text,
		Segments:   transcript.Segments,
		Language:   transcript.Language,
		Duration:   transcript.Duration,
		Confidence: transcript.Confidence,
		Provider:   a.Type(),
		Model:      modelKey,
		Elapsed:    time.Since(start),
	}, nil
}

// ChatCompletion runs a local LLM over the flattened conversation.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	if a.engines.LLM == nil {
		return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityChat)
	}

	start := time.Now()
	modelKey := req.Model
	if modelKey == "" {
		modelKey = defaultChatModel
	}

	model, err := a.loadLanguageModel(ctx, modelKey)
	if err != nil {
		return nil, err
	}

	if err := a.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer a.releaseWorker()

	prompt := buildPrompt(req.Messages)
	text, err := model.Generate(ctx, prompt, a.generateOptions(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "generation failed", 0, true, err)
	}

	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(text))

	return &providers.ChatResponse{
		Content:      text,
		Model:        modelKey,
		Provider:     a.Type(),
		FinishReason: "stop",
		Usage: providers.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}

// ChatCompletionStream streams fragments from the local LLM.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	if a.engines.LLM == nil {
		return providers.NewUnsupportedError(a.Type(), providers.CapabilityChat)
	}

	modelKey := req.Model
	if modelKey == "" {
		modelKey = defaultChatModel
	}

	model, err := a.loadLanguageModel(ctx, modelKey)
	if err != nil {
		return err
	}

	if err := a.acquireWorker(ctx); err != nil {
		return err
	}
	defer a.releaseWorker()

	prompt := buildPrompt(req.Messages)
	return model.GenerateStream(ctx, prompt, a.generateOptions(req), handler)
}

// GenerateEmbedding encodes texts with a local embedding model.
func (a *Adapter) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	if a.engines.Embedder == nil {
		return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityEmbedding)
	}

	modelKey := req.Model
	if modelKey == "" {
		modelKey = defaultEmbeddingModel
	}
	info, ok := a.models[modelKey]
	if !ok {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("unknown embedding model %q", modelKey))
	}

	model, err := a.embeddingModels.get(modelKey, func() (EmbeddingModel, error) {
		a.logger.Info("loading embedding model", zap.String("model", info.ID))
		return a.engines.Embedder.Load(ctx, info.ID)
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUnavailable,
			fmt.Sprintf("failed to load embedding model %s", modelKey), 0, true, err)
	}

	if err := a.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer a.releaseWorker()

	embeddings, err := model.Embed(ctx, req.Input)
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "embedding failed", 0, true, err)
	}

	tokens := 0
	for _, text := range req.Input {
		tokens += len(strings.Fields(text))
	}

	return &providers.EmbeddingResponse{
		Embeddings: embeddings,
		Model:      modelKey,
		Provider:   a.Type(),
		Usage:      providers.Usage{PromptTokens: tokens, TotalTokens: tokens},
	}, nil
}

// VisionCompletion answers a prompt about an image with a local model.
func (a *Adapter) VisionCompletion(ctx context.Context, req *providers.VisionRequest) (*providers.VisionResponse, error) {
	if a.engines.Vision == nil {
		return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityVision)
	}

	modelKey := req.Model
	if modelKey == "" {
		modelKey = defaultVisionModel
	}
	info, ok := a.models[modelKey]
	if !ok {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("unknown vision model %q", modelKey))
	}

	model, err := a.visionModels.get(modelKey, func() (VisionModel, error) {
		a.logger.Info("loading vision model", zap.String("model", info.ID))
		return a.engines.Vision.Load(ctx, info.ID)
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUnavailable,
			fmt.Sprintf("failed to load vision model %s", modelKey), 0, true, err)
	}

	if err := a.acquireWorker(ctx); err != nil {
		return nil, err
	}
	defer a.releaseWorker()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}

	content, err := model.Describe(ctx, req.ImagePath, req.Prompt, maxTokens)
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "vision inference failed", 0, true, err)
	}

	return &providers.VisionResponse{
		Content:  content,
		Model:    modelKey,
		Provider: a.Type(),
	}, nil
}

// ListModels returns the static model catalog.
func (a *Adapter) ListModels() []providers.ModelInfo {
	out := make([]providers.ModelInfo, 0, len(a.models))
	for _, m := range a.models {
		out = append(out, m)
	}
	return out
}

// HealthCheck reports whether any engine is wired. No model load happens
// here; an unloaded model is healthy, just cold.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.engines.Speech != nil || a.engines.LLM != nil ||
		a.engines.Embedder != nil || a.engines.Vision != nil
}

// EstimateCost always returns zero: local inference has no per-request
// price. Token estimates are still filled for comparison views.
func (a *Adapter) EstimateCost(req *providers.ChatRequest, model string) (*providers.CostEstimate, error) {
	outputTokens := req.MaxTokens
	if outputTokens == 0 {
		outputTokens = 500
	}
	return &providers.CostEstimate{
		EstimatedInputTokens:  providers.EstimateTokens(req.Messages),
		EstimatedOutputTokens: outputTokens,
	}, nil
}

// Enabled reports whether the adapter participates in auto-selection.
func (a *Adapter) Enabled() bool { return a.config.Enabled }

// Priority returns the auto-selection priority.
func (a *Adapter) Priority() int { return a.config.Priority }

// Close unloads every cached model.
func (a *Adapter) Close() error {
	var firstErr error
	for _, err := range []error{
		a.speechModels.close(),
		a.languageModels.close(),
		a.embeddingModels.close(),
		a.visionModels.close(),
	} {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Adapter) whisperModelKey() string {
	if key, ok := a.config.Extra["whisper_model"]; ok && key != "" {
		return key
	}
	return defaultWhisperModel
}

func (a *Adapter) loadSpeech(ctx context.Context, modelKey string) (SpeechModel, error) {
	info, ok := a.models[modelKey]
	if !ok {
		return nil, fmt.Errorf("unknown speech model %q", modelKey)
	}
	a.logger.Info("loading speech model", zap.String("model", info.ID))
	return a.engines.Speech.Load(ctx, info.ID)
}

func (a *Adapter) loadLanguageModel(ctx context.Context, modelKey string) (LanguageModel, error) {
	info, ok := a.models[modelKey]
	if !ok {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("unknown model %q", modelKey))
	}

	model, err := a.languageModels.get(modelKey, func() (LanguageModel, error) {
		a.logger.Info("loading language model", zap.String("model", info.ID))
		return a.engines.LLM.Load(ctx, info.ID)
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUnavailable,
			fmt.Sprintf("failed to load model %s", modelKey), 0, true, err)
	}
	return model, nil
}

func (a *Adapter) generateOptions(req *providers.ChatRequest) GenerateOptions {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	return GenerateOptions{
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
}

func (a *Adapter) acquireWorker(ctx context.Context) error {
	select {
	case a.workers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return providers.NewProviderError(a.Type(), providers.CodeTimeout, "cancelled while waiting for a worker", 0, false, ctx.Err())
	}
}

func (a *Adapter) releaseWorker() {
	<-a.workers
}

// buildPrompt flattens a conversation into a plain chat transcript ending
// with the assistant turn marker.
func buildPrompt(messages []providers.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("assistant: ")
	return sb.String()
}
