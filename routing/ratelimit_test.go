package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmeet/ai-router/providers"
)

func TestRPMLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	l := newRPMLimiter()
	l.now = func() time.Time { return now }

	ok, _ := l.allow(providers.ProviderOpenAI, 2)
	assert.True(t, ok)
	ok, _ = l.allow(providers.ProviderOpenAI, 2)
	assert.True(t, ok)

	ok, resetAt := l.allow(providers.ProviderOpenAI, 2)
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	// Providers are limited independently.
	ok, _ = l.allow(providers.ProviderAnthropic, 2)
	assert.True(t, ok)

	// Once the oldest event ages out, capacity returns.
	now = now.Add(61 * time.Second)
	ok, _ = l.allow(providers.ProviderOpenAI, 2)
	assert.True(t, ok)
}

func TestRPMLimiterZeroMeansUnlimited(t *testing.T) {
	l := newRPMLimiter()
	for i := 0; i < 100; i++ {
		ok, _ := l.allow(providers.ProviderLocal, 0)
		require.True(t, ok)
	}
}

func TestRateLimitedProviderFallsBack(t *testing.T) {
	first := chatStub(providers.ProviderOpenAI, 1)
	first.rpm = 1
	second := chatStub(providers.ProviderAnthropic, 2)

	m := newTestManager(t, StrategyFallback, first, second)
	req := &providers.ChatRequest{Messages: []providers.Message{{Role: "user", Content: "hi"}}}

	resp, err := m.ChatCompletion(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderOpenAI, resp.Provider)

	// The cap is spent, so the second request reroutes without touching
	// the first backend.
	resp, err = m.ChatCompletion(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, providers.ProviderAnthropic, resp.Provider)
	assert.Equal(t, 1, first.chatCalls)
}

func TestRateLimitedExplicitPinSurfacesError(t *testing.T) {
	only := chatStub(providers.ProviderOpenAI, 1)
	only.rpm = 1

	m := newTestManager(t, StrategyFallback, only)
	req := &providers.ChatRequest{Messages: []providers.Message{{Role: "user", Content: "hi"}}}
	pin := providers.ProviderOpenAI
	opts := &Options{Provider: &pin}

	_, err := m.ChatCompletion(context.Background(), req, opts)
	require.NoError(t, err)

	_, err = m.ChatCompletion(context.Background(), req, opts)
	require.Error(t, err)

	var perr *providers.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, providers.CodeRateLimited, perr.Code)
	assert.Equal(t, 1, only.chatCalls)
}
