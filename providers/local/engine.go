package local

import (
	"context"

	"github.com/openmeet/ai-router/providers"
)

// Engines bundles the on-device inference runtimes the adapter drives.
// A nil engine means the corresponding capability is not served; the
// adapter reports it as unsupported instead of failing.
type Engines struct {
	Speech   SpeechEngine
	LLM      LLMEngine
	Embedder EmbeddingEngine
	Vision   VisionEngine
}

// SpeechEngine loads local speech-to-text models.
type SpeechEngine interface {
	Load(ctx context.Context, modelID string) (SpeechModel, error)
}

// SpeechModel transcribes audio files. Implementations must be safe for
// concurrent use; the adapter shares one loaded instance across requests.
type SpeechModel interface {
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions tunes a single transcription run.
type TranscribeOptions struct {
	Language       string
	WordTimestamps bool
	VADFilter      bool
}

// Transcript is the raw output of a local speech model.
type Transcript struct {
	Text       string
	Segments   []providers.TranscriptionSegment
	Language   string
	Duration   float64
	Confidence float64
}

// LLMEngine loads local language models.
type LLMEngine interface {
	Load(ctx context.Context, modelID string) (LanguageModel, error)
}

// LanguageModel generates text from a prompt. Implementations must be safe
// for concurrent use.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions, emit func(chunk string) error) error
}

// GenerateOptions tunes a single generation run.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// EmbeddingEngine loads local embedding models.
type EmbeddingEngine interface {
	Load(ctx context.Context, modelID string) (EmbeddingModel, error)
}

// EmbeddingModel encodes texts into vectors, one per input, in order.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VisionEngine loads local multimodal models.
type VisionEngine interface {
	Load(ctx context.Context, modelID string) (VisionModel, error)
}

// VisionModel answers a prompt about an image.
type VisionModel interface {
	Describe(ctx context.Context, imagePath, prompt string, maxTokens int) (string, error)
}
