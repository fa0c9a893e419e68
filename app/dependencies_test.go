package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openmeet/ai-router/config"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/providers/local"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Routing:            config.RoutingConfig{Strategy: "fallback"},
		ProviderConfigPath: filepath.Join(t.TempDir(), "providers.json"),
	}
}

func TestNewDependenciesSeedsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("LOCAL_MODELS_ENABLED", "false")

	deps, err := NewDependencies(testConfig(t), zaptest.NewLogger(t), local.Engines{})
	require.NoError(t, err)
	defer deps.Close()

	assert.Equal(t, 2, deps.Registry.Count())

	chat, ok := deps.Registry.Default(providers.CapabilityChat)
	require.True(t, ok)
	assert.Equal(t, providers.ProviderOpenAI, chat)

	vision, ok := deps.Registry.Default(providers.CapabilityVision)
	require.True(t, ok)
	assert.Equal(t, providers.ProviderAnthropic, vision)

	// No local runtime, so transcription falls back to Whisper API.
	transcription, ok := deps.Registry.Default(providers.CapabilityTranscription)
	require.True(t, ok)
	assert.Equal(t, providers.ProviderOpenAI, transcription)
}

func TestNewDependenciesRejectsUnknownStrategy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Routing.Strategy = "round_robin"

	_, err := NewDependencies(cfg, zaptest.NewLogger(t), local.Engines{})
	require.Error(t, err)
}

func TestApplyDocumentSkipsUnbuildableProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LOCAL_MODELS_ENABLED", "false")

	deps, err := NewDependencies(testConfig(t), zaptest.NewLogger(t), local.Engines{})
	require.NoError(t, err)
	defer deps.Close()

	openaiCfg := providers.DefaultProviderConfig(providers.ProviderOpenAI)
	openaiCfg.APIKey = "sk-test"
	// Google is a recognized type with no adapter yet; it must not take
	// the rest of the document down.
	err = deps.ApplyDocument(&config.Document{
		Version: "1.0.0",
		Providers: map[providers.ProviderType]providers.ProviderConfig{
			providers.ProviderOpenAI: openaiCfg,
			providers.ProviderGoogle: providers.DefaultProviderConfig(providers.ProviderGoogle),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, deps.Registry.Count())
}

func TestReloadAppliesSavedDocument(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LOCAL_MODELS_ENABLED", "false")

	deps, err := NewDependencies(testConfig(t), zaptest.NewLogger(t), local.Engines{})
	require.NoError(t, err)
	defer deps.Close()
	require.Equal(t, 1, deps.Registry.Count())

	doc, err := deps.Store.Load()
	require.NoError(t, err)
	anthropicCfg := providers.DefaultProviderConfig(providers.ProviderAnthropic)
	anthropicCfg.APIKey = "sk-ant-test"
	doc.Providers[providers.ProviderAnthropic] = anthropicCfg
	require.NoError(t, deps.Store.Save(doc))

	require.NoError(t, deps.Reload())
	assert.Equal(t, 2, deps.Registry.Count())

	vision, ok := deps.Registry.Default(providers.CapabilityVision)
	require.True(t, ok)
	assert.Equal(t, providers.ProviderAnthropic, vision)
}

func TestCloseUnregistersProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LOCAL_MODELS_ENABLED", "false")

	deps, err := NewDependencies(testConfig(t), zaptest.NewLogger(t), local.Engines{})
	require.NoError(t, err)

	require.NoError(t, deps.Close())
	assert.Equal(t, 0, deps.Registry.Count())
}
