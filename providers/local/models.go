package local

import (
	"github.com/openmeet/ai-router/providers"
)

// buildCatalog returns the static model registry, keyed by short name.
// Everything here is free to run; cost fields stay zero.
func buildCatalog() map[string]providers.ModelInfo {
	return map[string]providers.ModelInfo{
		"whisper-large-v3": {
			ID:           "whisper-large-v3",
			Name:         "Whisper Large V3 (Local)",
			Provider:     providers.ProviderLocal,
			Capabilities: []providers.Capability{providers.CapabilityTranscription},
			Description:  "Best accuracy, 3GB",
		},
		"whisper-medium": {
			ID:           "whisper-medium",
			Name:         "Whisper Medium (Local)",
			Provider:     providers.ProviderLocal,
			Capabilities: []providers.Capability{providers.CapabilityTranscription},
			Description:  "Balanced, 1.5GB",
		},
		"llama-3.1-8b": {
			ID:       "meta-llama/Meta-Llama-3.1-8B-Instruct",
			Name:     "Llama 3.1 8B (Local)",
			Provider: providers.ProviderLocal,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:     128000,
			MaxOutputTokens:   4096,
			SupportsStreaming: true,
			Description:       "Meta's best 8B model, excellent quality",
		},
		"qwen2.5-7b": {
			ID:       "Qwen/Qwen2.5-7B-Instruct",
			Name:     "Qwen 2.5 7B (Local)",
			Provider: providers.ProviderLocal,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:     32768,
			MaxOutputTokens:   4096,
			SupportsStreaming: true,
			Description:       "Alibaba's model, great for code and reasoning",
		},
		"gemma-2-9b": {
			ID:       "google/gemma-2-9b-it",
			Name:     "Gemma 2 9B (Local)",
			Provider: providers.ProviderLocal,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:     8192,
			MaxOutputTokens:   4096,
			SupportsStreaming: true,
			Description:       "Google's latest, very capable",
		},
		"phi-3.5-mini": {
			ID:       "microsoft/Phi-3.5-mini-instruct",
			Name:     "Phi 3.5 Mini (Local)",
			Provider: providers.ProviderLocal,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:     128000,
			MaxOutputTokens:   4096,
			SupportsStreaming: true,
			Description:       "Microsoft's lightweight model, fast and efficient",
		},
		"moondream2": {
			ID:              "vikhyatk/moondream2",
			Name:            "Moondream 2 (Local)",
			Provider:        providers.ProviderLocal,
			Capabilities:    []providers.Capability{providers.CapabilityVision},
			ContextWindow:   2048,
			MaxOutputTokens: 512,
			Description:     "Fast vision model, 3.7GB",
		},
		"bge-large-en-v1.5": {
			ID:            "BAAI/bge-large-en-v1.5",
			Name:          "BGE Large EN (Local)",
			Provider:      providers.ProviderLocal,
			Capabilities:  []providers.Capability{providers.CapabilityEmbedding},
			ContextWindow: 512,
			Description:   "Best English embeddings, 1.3GB",
		},
	}
}
