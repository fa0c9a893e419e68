package providers

import (
	"time"
)

// ProviderType identifies a backend kind. At most one live adapter exists
// per type at any time.
type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderLocal     ProviderType = "local"

	// Reserved for future adapters; no factory binding exists for these yet.
	ProviderGoogle ProviderType = "google"
	ProviderAzure  ProviderType = "azure"
	ProviderCustom ProviderType = "custom"
)

// Valid reports whether t is a known provider type.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderOpenAI, ProviderAnthropic, ProviderLocal, ProviderGoogle, ProviderAzure, ProviderCustom:
		return true
	}
	return false
}

// Capability is a category of AI operation a provider may support.
// A request is always scoped to exactly one capability.
type Capability string

const (
	CapabilityTextGeneration    Capability = "text_generation"
	CapabilityChat              Capability = "chat"
	CapabilityTranscription     Capability = "transcription"
	CapabilityVision            Capability = "vision"
	CapabilityEmbedding         Capability = "embedding"
	CapabilitySummarization     Capability = "summarization"
	CapabilitySentimentAnalysis Capability = "sentiment_analysis"
)

// ProviderConfig holds per-provider settings. It is immutable once handed to
// an adapter constructor; changing settings requires re-registration.
type ProviderConfig struct {
	// Type of the backend this config targets.
	Type ProviderType `json:"type" yaml:"type" validate:"required"`

	// Enabled controls whether the adapter participates in auto-selection.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// APIKey for hosted backends; the local runtime may use it as an
	// optional model-hub token.
	APIKey string `json:"api_key,omitempty" yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url" validate:"omitempty,url"`

	// Organization for providers with org-scoped endpoints.
	Organization string `json:"organization,omitempty" yaml:"organization"`

	// Priority orders auto-selection; lower is tried first.
	Priority int `json:"priority" yaml:"priority" validate:"gte=0"`

	// MaxRetries bounds per-call retries against the same backend.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// Timeout for a single backend call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// RateLimitRPM caps requests per minute when set (0 = unlimited).
	RateLimitRPM int `json:"rate_limit_rpm,omitempty" yaml:"rate_limit_rpm" validate:"gte=0"`

	// Extra carries backend-specific tuning (local quantization mode,
	// device selection, whisper model size).
	Extra map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// DefaultProviderConfig returns the baseline settings for a provider type.
func DefaultProviderConfig(t ProviderType) ProviderConfig {
	return ProviderConfig{
		Type:       t,
		Enabled:    true,
		Priority:   100,
		MaxRetries: 3,
		Timeout:    60 * time.Second,
	}
}

// ModelInfo is static metadata a provider publishes per model it can serve.
// It is never mutated after construction.
type ModelInfo struct {
	ID                      string       `json:"id"`
	Name                    string       `json:"name"`
	Provider                ProviderType `json:"provider"`
	Capabilities            []Capability `json:"capabilities"`
	ContextWindow           int          `json:"context_window"`
	MaxOutputTokens         int          `json:"max_output_tokens"`
	CostPer1KInput          float64      `json:"cost_per_1k_input"`
	CostPer1KOutput         float64      `json:"cost_per_1k_output"`
	SupportsStreaming       bool         `json:"supports_streaming"`
	SupportsFunctionCalling bool         `json:"supports_function_calling"`
	Description             string       `json:"description,omitempty"`
}

// HasCapability reports whether the model serves the given capability.
func (m ModelInfo) HasCapability(c Capability) bool {
	for _, mc := range m.Capabilities {
		if mc == c {
			return true
		}
	}
	return false
}

// TranscriptionRequest asks for speech-to-text over a local audio file.
type TranscriptionRequest struct {
	AudioPath        string   `json:"audio_path"`
	Language         string   `json:"language,omitempty"`
	Diarize          bool     `json:"diarize,omitempty"`
	Timestamps       bool     `json:"timestamps"`
	CustomVocabulary []string `json:"custom_vocabulary,omitempty"`
}

// TranscriptionSegment is one timed span of transcribed speech.
type TranscriptionSegment struct {
	ID         int     `json:"id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

// TranscriptionResponse carries the transcript plus which backend produced it.
type TranscriptionResponse struct {
	Text       string                 `json:"text"`
	Segments   []TranscriptionSegment `json:"segments"`
	Language   string                 `json:"language"`
	Duration   float64                `json:"duration"`
	Confidence float64                `json:"confidence"`
	Provider   ProviderType           `json:"provider"`
	Model      string                 `json:"model"`
	Elapsed    time.Duration          `json:"elapsed"`
}

// Message is a single turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is a unified chat completion request.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Usage is the token accounting reported by a backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a unified chat completion response.
type ChatResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	Provider     ProviderType  `json:"provider"`
	FinishReason string        `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Elapsed      time.Duration `json:"elapsed"`
}

// EmbeddingRequest asks for vector embeddings of one or more texts.
type EmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

// EmbeddingResponse carries one vector per input text, in order.
type EmbeddingResponse struct {
	Embeddings [][]float64  `json:"embeddings"`
	Model      string       `json:"model"`
	Provider   ProviderType `json:"provider"`
	Usage      Usage        `json:"usage"`
}

// VisionRequest asks a multimodal model to answer a prompt about an image.
type VisionRequest struct {
	ImagePath string `json:"image_path"`
	Prompt    string `json:"prompt"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// VisionResponse is the multimodal answer.
type VisionResponse struct {
	Content    string       `json:"content"`
	Model      string       `json:"model"`
	Provider   ProviderType `json:"provider"`
	Confidence float64      `json:"confidence,omitempty"`
}

// CostEstimate is a pure function of request size and published pricing.
// Zero-cost backends return an all-zero estimate, never an error.
type CostEstimate struct {
	InputCost             float64 `json:"input_cost"`
	OutputCost            float64 `json:"output_cost"`
	TotalCost             float64 `json:"total_cost"`
	EstimatedInputTokens  int     `json:"estimated_input_tokens,omitempty"`
	EstimatedOutputTokens int     `json:"estimated_output_tokens,omitempty"`
}

// EstimateTokens approximates the token count of chat messages.
// Rough heuristic: ~4 characters per token.
func EstimateTokens(messages []Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return chars / 4
}
