// Package factory binds provider types to their adapter constructors.
// It lives apart from the providers package so adapters can import the
// contract without a cycle.
package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/providers/anthropic"
	"github.com/openmeet/ai-router/providers/local"
	"github.com/openmeet/ai-router/providers/openai"
)

// Factory implements providers.Factory for the built-in adapter set.
type Factory struct {
	logger  *zap.Logger
	engines local.Engines
}

// New creates a factory. engines backs local adapters; hosted adapters
// ignore it.
func New(logger *zap.Logger, engines local.Engines) *Factory {
	return &Factory{logger: logger, engines: engines}
}

// Create builds the adapter for cfg.Type. Reserved types without a binding
// fail with ErrInvalidConfig.
func (f *Factory) Create(cfg providers.ProviderConfig) (providers.Provider, error) {
	switch cfg.Type {
	case providers.ProviderOpenAI:
		return openai.New(cfg, f.logger.Named("openai")), nil
	case providers.ProviderAnthropic:
		return anthropic.New(cfg, f.logger.Named("anthropic")), nil
	case providers.ProviderLocal:
		return local.New(cfg, f.engines, f.logger.Named("local")), nil
	default:
		return nil, fmt.Errorf("%w: no adapter for provider type %q", providers.ErrInvalidConfig, cfg.Type)
	}
}
