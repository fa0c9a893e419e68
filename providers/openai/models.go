package openai

import (
	"github.com/openmeet/ai-router/providers"
)

// buildCatalog returns the static model registry, keyed by short name.
func buildCatalog() map[string]providers.ModelInfo {
	return map[string]providers.ModelInfo{
		"gpt-4-turbo": {
			ID:       "gpt-4-turbo-preview",
			Name:     "GPT-4 Turbo",
			Provider: providers.ProviderOpenAI,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
				providers.CapabilityVision,
			},
			ContextWindow:           128000,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.01,
			CostPer1KOutput:         0.03,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
		},
		"gpt-4": {
			ID:       "gpt-4",
			Name:     "GPT-4",
			Provider: providers.ProviderOpenAI,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:           8192,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.03,
			CostPer1KOutput:         0.06,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
		},
		"gpt-3.5-turbo": {
			ID:       "gpt-3.5-turbo",
			Name:     "GPT-3.5 Turbo",
			Provider: providers.ProviderOpenAI,
			Capabilities: []providers.Capability{
				providers.CapabilityChat,
				providers.CapabilityTextGeneration,
			},
			ContextWindow:           16385,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.0005,
			CostPer1KOutput:         0.0015,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
		},
		"whisper-1": {
			ID:       "whisper-1",
			Name:     "Whisper",
			Provider: providers.ProviderOpenAI,
			Capabilities: []providers.Capability{
				providers.CapabilityTranscription,
			},
			// Whisper is priced per minute of audio, not per token.
			CostPer1KInput: 0.006,
		},
		"text-embedding-3-large": {
			ID:       "text-embedding-3-large",
			Name:     "Text Embedding 3 Large",
			Provider: providers.ProviderOpenAI,
			Capabilities: []providers.Capability{
				providers.CapabilityEmbedding,
			},
			ContextWindow:  8191,
			CostPer1KInput: 0.00013,
		},
	}
}
