// Package openai adapts the hosted OpenAI-style REST API to the unified
// provider contract: chat completions, SSE streaming, Whisper
// transcription, embeddings and vision.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/providers"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultChatModel = "gpt-4-turbo-preview"
)

// Adapter implements providers.Provider against the OpenAI API.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
	models     map[string]providers.ModelInfo
}

// New creates an OpenAI adapter from config.
func New(config providers.ProviderConfig, logger *zap.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Adapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		models:     buildCatalog(),
	}
}

// Type returns the provider type.
func (a *Adapter) Type() providers.ProviderType {
	return providers.ProviderOpenAI
}

// Capabilities returns the capabilities this adapter serves.
func (a *Adapter) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapabilityTextGeneration,
		providers.CapabilityChat,
		providers.CapabilityTranscription,
		providers.CapabilityEmbedding,
		providers.CapabilityVision,
		providers.CapabilitySummarization,
		providers.CapabilitySentimentAnalysis,
	}
}

// ChatCompletion performs a chat completion request.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = defaultChatModel
	}

	body, err := json.Marshal(a.buildChatRequest(req, model, false))
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.doJSON(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", 0, false, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "response contained no choices", 0, true, nil)
	}

	return &providers.ChatResponse{
		Content:      chatResp.Choices[0].Message.Content,
		Model:        chatResp.Model,
		Provider:     a.Type(),
		FinishReason: chatResp.Choices[0].FinishReason,
		Usage: providers.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}

// ChatCompletionStream streams a chat completion over SSE, invoking handler
// once per content fragment.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	model := req.Model
	if model == "" {
		model = defaultChatModel
	}

	body, err := json.Marshal(a.buildChatRequest(req, model, true))
	if err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to create request", 0, false, err)
	}
	a.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeUnavailable, "stream request failed", 0, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return a.errorFromResponse(resp.StatusCode, raw)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			a.logger.Debug("skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := handler(content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeUpstream, "stream interrupted", 0, true, err)
	}
	return nil
}

// GenerateEmbedding produces vector embeddings via the embeddings endpoint.
func (a *Adapter) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = "text-embedding-3-large"
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: req.Input})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.doJSON(ctx, http.MethodPost, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", 0, false, err)
	}

	embeddings := make([][]float64, len(embResp.Data))
	for _, d := range embResp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}

	return &providers.EmbeddingResponse{
		Embeddings: embeddings,
		Model:      embResp.Model,
		Provider:   a.Type(),
		Usage: providers.Usage{
			PromptTokens: embResp.Usage.PromptTokens,
			TotalTokens:  embResp.Usage.TotalTokens,
		},
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

// HealthCheck probes the models endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// EstimateCost prices a chat request against the catalog. Unknown models
// yield a zero estimate rather than an error.
func (a *Adapter) EstimateCost(req *providers.ChatRequest, model string) (*providers.CostEstimate, error) {
	if model == "" {
		model = req.Model
	}
	if model == "" {
		model = defaultChatModel
	}

	info, ok := a.lookupModel(model)
	if !ok {
		return &providers.CostEstimate{}, nil
	}

	inputTokens := providers.EstimateTokens(req.Messages)
	outputTokens := req.MaxTokens
	if outputTokens == 0 {
		outputTokens = 500
	}

	inputCost := float64(inputTokens) / 1000 * info.CostPer1KInput
	outputCost := float64(outputTokens) / 1000 * info.CostPer1KOutput

	return &providers.CostEstimate{
		InputCost:             inputCost,
		OutputCost:            outputCost,
		TotalCost:             inputCost + outputCost,
		EstimatedInputTokens:  inputTokens,
		EstimatedOutputTokens: outputTokens,
	}, nil
}

// Enabled reports whether the adapter participates in auto-selection.
func (a *Adapter) Enabled() bool { return a.config.Enabled }

// Priority returns the auto-selection priority.
func (a *Adapter) Priority() int { return a.config.Priority }

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// lookupModel resolves a model by catalog key or full model ID.
func (a *Adapter) lookupModel(model string) (providers.ModelInfo, bool) {
	if info, ok := a.models[model]; ok {
		return info, true
	}
	for _, info := range a.models {
		if info.ID == model {
			return info, true
		}
	}
	return providers.ModelInfo{}, false
}

func (a *Adapter) buildChatRequest(req *providers.ChatRequest, model string, stream bool) *chatRequest {
	out := &chatRequest{
		Model:    model,
		Messages: make([]message, len(req.Messages)),
		Stream:   stream,
	}
	for i, msg := range req.Messages {
		out.Messages[i] = message{Role: msg.Role, Content: msg.Content, Name: msg.Name}
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		out.TopP = &req.TopP
	}
	if len(req.Stop) > 0 {
		out.Stop = req.Stop
	}
	return out
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.Organization != "" {
		req.Header.Set("OpenAI-Organization", a.config.Organization)
	}
}

// doJSON executes a JSON request with exponential backoff on transient
// failures. 4xx responses other than 429 are terminal.
func (a *Adapter) doJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to create request", 0, false, err))
		}
		a.setHeaders(req)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return providers.NewProviderError(a.Type(), providers.CodeUnavailable, "request failed", 0, true, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to read response", resp.StatusCode, true, err)
		}

		if resp.StatusCode != http.StatusOK {
			perr := a.errorFromResponse(resp.StatusCode, raw)
			if !providers.IsRetryable(perr) {
				return backoff.Permanent(perr)
			}
			return perr
		}

		respBody = raw
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(a.config.MaxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (a *Adapter) errorFromResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Type(), providers.CodeUpstream,
			fmt.Sprintf("unexpected status %d", statusCode), statusCode, statusCode >= 500, nil)
	}

	code := providers.CodeUpstream
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		code = providers.CodeUnauthenticated
	case statusCode == http.StatusTooManyRequests:
		code = providers.CodeRateLimited
	case statusCode >= 400 && statusCode < 500:
		code = providers.CodeInvalidRequest
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests
	return providers.NewProviderError(a.Type(), code, errResp.Error.Message, statusCode, retryable, nil)
}

// Wire types.

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage usage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
