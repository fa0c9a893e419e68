package anthropic

import (
	"github.com/openmeet/ai-router/providers"
)

// buildCatalog returns the static model registry, keyed by short name.
func buildCatalog() map[string]providers.ModelInfo {
	chatCaps := []providers.Capability{
		providers.CapabilityChat,
		providers.CapabilityTextGeneration,
		providers.CapabilityVision,
	}

	return map[string]providers.ModelInfo{
		"claude-3-5-sonnet": {
			ID:                      "claude-3-5-sonnet-20241022",
			Name:                    "Claude 3.5 Sonnet",
			Provider:                providers.ProviderAnthropic,
			Capabilities:            chatCaps,
			ContextWindow:           200000,
			MaxOutputTokens:         8192,
			CostPer1KInput:          0.003,
			CostPer1KOutput:         0.015,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			Description:             "Most intelligent model, best for complex tasks",
		},
		"claude-3-opus": {
			ID:                      "claude-3-opus-20240229",
			Name:                    "Claude 3 Opus",
			Provider:                providers.ProviderAnthropic,
			Capabilities:            chatCaps,
			ContextWindow:           200000,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.015,
			CostPer1KOutput:         0.075,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			Description:             "Top-level performance on highly complex tasks",
		},
		"claude-3-sonnet": {
			ID:                      "claude-3-sonnet-20240229",
			Name:                    "Claude 3 Sonnet",
			Provider:                providers.ProviderAnthropic,
			Capabilities:            chatCaps,
			ContextWindow:           200000,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.003,
			CostPer1KOutput:         0.015,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			Description:             "Balance of intelligence and speed",
		},
		"claude-3-haiku": {
			ID:                      "claude-3-haiku-20240307",
			Name:                    "Claude 3 Haiku",
			Provider:                providers.ProviderAnthropic,
			Capabilities:            chatCaps,
			ContextWindow:           200000,
			MaxOutputTokens:         4096,
			CostPer1KInput:          0.00025,
			CostPer1KOutput:         0.00125,
			SupportsStreaming:       true,
			SupportsFunctionCalling: true,
			Description:             "Fastest and most compact model",
		},
	}
}
