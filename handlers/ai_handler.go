package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/app"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/routing"
	"github.com/openmeet/ai-router/utils"
)

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model       string        `json:"model,omitempty"`
	Temperature float64       `json:"temperature,omitempty" validate:"gte=0,lte=2"`
	MaxTokens   int           `json:"max_tokens,omitempty" validate:"gte=0"`
	TopP        float64       `json:"top_p,omitempty" validate:"gte=0,lte=1"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Provider    string        `json:"provider,omitempty"` // Optional: pin to one backend
}

// ChatCompletionResponse represents a chat completion response
type ChatCompletionResponse struct {
	ID           string                 `json:"id"`
	Content      string                 `json:"content"`
	Model        string                 `json:"model"`
	Provider     providers.ProviderType `json:"provider"`
	FinishReason string                 `json:"finish_reason"`
	Usage        providers.Usage        `json:"usage"`
	LatencyMS    int64                  `json:"latency_ms"`
}

// TranscriptionRequest represents a transcription request
type TranscriptionRequest struct {
	AudioPath  string `json:"audio_path" validate:"required"`
	Language   string `json:"language,omitempty"`
	Timestamps bool   `json:"timestamps,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// EmbeddingRequest represents an embedding request
type EmbeddingRequest struct {
	Input    []string `json:"input" validate:"required,min=1"`
	Model    string   `json:"model,omitempty"`
	Provider string   `json:"provider,omitempty"`
}

// VisionRequest represents a vision request
type VisionRequest struct {
	ImagePath string `json:"image_path" validate:"required"`
	Prompt    string `json:"prompt" validate:"required"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" validate:"gte=0"`
	Provider  string `json:"provider,omitempty"`
}

// SummarizationRequest represents a meeting summarization request
type SummarizationRequest struct {
	Text      string `json:"text" validate:"required"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty" validate:"gte=0"`
	Provider  string `json:"provider,omitempty"`
}

// routeOptions builds routing options from an optional provider pin.
func routeOptions(provider string) (*routing.Options, error) {
	if provider == "" {
		return nil, nil
	}
	pt := providers.ProviderType(provider)
	if !pt.Valid() {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	return &routing.Options{Provider: &pt}, nil
}

func decodeAndValidate(deps *app.Dependencies, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := deps.Validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// TranscribeHandler routes a transcription request.
func TranscribeHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TranscriptionRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		opts, err := routeOptions(req.Provider)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		resp, err := deps.Router.Transcribe(r.Context(), &providers.TranscriptionRequest{
			AudioPath:  req.AudioPath,
			Language:   req.Language,
			Timestamps: req.Timestamps,
		}, opts)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		_ = utils.WriteOK(w, resp)
	}
}

// ChatCompletionHandler routes a chat completion, streaming over SSE when
// the request asks for it.
func ChatCompletionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		opts, err := routeOptions(req.Provider)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		chatReq := &providers.ChatRequest{
			Messages:    toProviderMessages(req.Messages),
			Model:       req.Model,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			TopP:        req.TopP,
			Stop:        req.Stop,
		}

		if req.Stream {
			streamChatCompletion(deps, w, r, chatReq, opts)
			return
		}

		start := time.Now()
		resp, err := deps.Router.ChatCompletion(r.Context(), chatReq, opts)
		if err != nil {
			writeRouteError(w, err)
			return
		}

		_ = utils.WriteJSON(w, http.StatusOK, ChatCompletionResponse{
			ID:           "chatcmpl-" + uuid.NewString(),
			Content:      resp.Content,
			Model:        resp.Model,
			Provider:     resp.Provider,
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
			LatencyMS:    time.Since(start).Milliseconds(),
		})
	}
}

// streamChatCompletion writes chat fragments as server-sent events.
// Failures before the first fragment surface as a JSON error; afterwards
// the stream terminates with an error event because the status line is
// already gone.
func streamChatCompletion(deps *app.Dependencies, w http.ResponseWriter, r *http.Request, chatReq *providers.ChatRequest, opts *routing.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalError(w, "streaming unsupported by connection")
		return
	}

	headersSent := false
	sendHeaders := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		headersSent = true
	}

	err := deps.Router.ChatCompletionStream(r.Context(), chatReq, opts, func(chunk string) error {
		if !headersSent {
			sendHeaders()
		}
		payload, err := json.Marshal(map[string]string{"content": chunk})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if err != nil {
		if !headersSent {
			writeRouteError(w, err)
			return
		}
		deps.Logger.Warn("stream aborted", zap.Error(err))
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return
	}

	if !headersSent {
		sendHeaders()
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// EmbeddingHandler routes an embedding request.
func EmbeddingHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		opts, err := routeOptions(req.Provider)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		resp, err := deps.Router.GenerateEmbedding(r.Context(), &providers.EmbeddingRequest{
			Input: req.Input,
			Model: req.Model,
		}, opts)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		_ = utils.WriteOK(w, resp)
	}
}

// VisionHandler routes a vision request.
func VisionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VisionRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		opts, err := routeOptions(req.Provider)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		resp, err := deps.Router.VisionCompletion(r.Context(), &providers.VisionRequest{
			ImagePath: req.ImagePath,
			Prompt:    req.Prompt,
			Model:     req.Model,
			MaxTokens: req.MaxTokens,
		}, opts)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		_ = utils.WriteOK(w, resp)
	}
}

const summarizationPrompt = "You are a meeting assistant. Summarize the following meeting transcript. " +
	"Include key discussion points, decisions made, and action items with owners where mentioned."

// SummarizeHandler routes a meeting summarization request over the
// summarization capability so providers that declare it are preferred.
func SummarizeHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SummarizationRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		opts, err := routeOptions(req.Provider)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		if opts == nil {
			opts = &routing.Options{}
		}
		opts.Capability = providers.CapabilitySummarization

		resp, err := deps.Router.ChatCompletion(r.Context(), &providers.ChatRequest{
			Messages: []providers.Message{
				{Role: "system", Content: summarizationPrompt},
				{Role: "user", Content: req.Text},
			},
			Model:     req.Model,
			MaxTokens: req.MaxTokens,
		}, opts)
		if err != nil {
			writeRouteError(w, err)
			return
		}

		_ = utils.WriteOK(w, map[string]interface{}{
			"summary":  resp.Content,
			"model":    resp.Model,
			"provider": resp.Provider,
			"usage":    resp.Usage,
		})
	}
}

func toProviderMessages(messages []ChatMessage) []providers.Message {
	out := make([]providers.Message, len(messages))
	for i, m := range messages {
		out[i] = providers.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
