// Package anthropic adapts the hosted Anthropic-style Messages API to the
// unified provider contract. The backend serves chat, streaming and vision;
// transcription and embeddings are reported as unsupported so routing can
// fall through to another provider.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	defaultChatModel = "claude-3-5-sonnet-20241022"
	healthModel      = "claude-3-haiku-20240307"
)

// Adapter implements providers.Provider against the Anthropic Messages API.
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	logger     *zap.Logger
	models     map[string]providers.ModelInfo
}

// New creates an Anthropic adapter from config.
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
	return providers.ProviderAnthropic
}

// Capabilities returns the capabilities this adapter serves.
func (a *Adapter) Capabilities() []providers.Capability {
	return []providers.Capability{
		providers.CapabilityTextGeneration,
		providers.CapabilityChat,
		providers.CapabilityVision,
		providers.CapabilitySummarization,
		providers.CapabilitySentimentAnalysis,
	}
}

// Transcribe is not served by this backend.
func (a *Adapter) Transcribe(ctx context.Context, req *providers.TranscriptionRequest) (*providers.TranscriptionResponse, error) {
	return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityTranscription)
}

// GenerateEmbedding is not served by this backend.
func (a *Adapter) GenerateEmbedding(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	return nil, providers.NewUnsupportedError(a.Type(), providers.CapabilityEmbedding)
}

// ChatCompletion performs a chat completion via the messages endpoint.
// System-role turns are lifted into the top-level system field.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	start := time.Now()

	body, err := json.Marshal(a.buildMessagesRequest(req, false))
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.doJSON(ctx, body)
	if err != nil {
		return nil, err
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", 0, false, err)
	}

	return &providers.ChatResponse{
		Content:      msgResp.text(),
		Model:        msgResp.Model,
		Provider:     a.Type(),
		FinishReason: msgResp.StopReason,
		Usage: providers.Usage{
			PromptTokens:     msgResp.Usage.InputTokens,
			CompletionTokens: msgResp.Usage.OutputTokens,
			TotalTokens:      msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}

// ChatCompletionStream streams a completion over SSE. Anthropic frames
// deltas as content_block_delta events carrying text fragments.
func (a *Adapter) ChatCompletionStream(ctx context.Context, req *providers.ChatRequest, handler providers.StreamHandler) error {
	body, err := json.Marshal(a.buildMessagesRequest(req, true))
	if err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/messages", bytes.NewReader(body))
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

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			a.logger.Debug("skipping malformed stream event", zap.Error(err))
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				if err := handler(event.Delta.Text); err != nil {
					return err
				}
			}
		case "message_stop":
			return nil
		case "error":
			return providers.NewProviderError(a.Type(), providers.CodeUpstream, event.Error.Message, 0, true, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		return providers.NewProviderError(a.Type(), providers.CodeUpstream, "stream interrupted", 0, true, err)
	}
	return nil
}

// VisionCompletion sends the image inline as a base64 content block.
func (a *Adapter) VisionCompletion(ctx context.Context, req *providers.VisionRequest) (*providers.VisionResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultChatModel
	}

	imageData, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, providers.NewInvalidRequestError(a.Type(), fmt.Sprintf("cannot read image file: %v", err))
	}

	mediaType := mime.TypeByExtension(filepath.Ext(req.ImagePath))
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []messageParam{{
			Role: "user",
			Content: []contentBlock{
				{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      base64.StdEncoding.EncodeToString(imageData),
					},
				},
				{Type: "text", Text: req.Prompt},
			},
		}},
	})
	if err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.doJSON(ctx, body)
	if err != nil {
		return nil, err
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, providers.NewProviderError(a.Type(), providers.CodeUpstream, "failed to unmarshal response", 0, false, err)
	}

	return &providers.VisionResponse{
		Content:  msgResp.text(),
		Model:    msgResp.Model,
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

// HealthCheck sends a minimal completion against the cheapest model.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	body, err := json.Marshal(messagesRequest{
		Model:     healthModel,
		MaxTokens: 10,
		Messages: []messageParam{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: "Hi"}},
		}},
	})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/messages", bytes.NewReader(body))
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
		outputTokens = 1000
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

func (a *Adapter) buildMessagesRequest(req *providers.ChatRequest, stream bool) *messagesRequest {
	model := req.Model
	if model == "" {
		model = defaultChatModel
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	out := &messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    stream,
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, messageParam{
			Role:    msg.Role,
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
		})
	}
	if len(system) > 0 {
		out.System = strings.Join(system, "\n\n")
	}

	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		out.TopP = &req.TopP
	}
	if len(req.Stop) > 0 {
		out.StopSequences = req.Stop
	}
	return out
}

func (a *Adapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
}

// doJSON posts to the messages endpoint with exponential backoff on
// transient failures.
func (a *Adapter) doJSON(ctx context.Context, body []byte) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/messages", bytes.NewReader(body))
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

type messagesRequest struct {
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Messages      []messageParam `json:"messages"`
	System        string         `json:"system,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
}

type messageParam struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r *messagesResponse) text() string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
