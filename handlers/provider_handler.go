package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openmeet/ai-router/app"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/routing"
	"github.com/openmeet/ai-router/utils"
)

// UpdateProviderRequest carries a partial provider configuration change.
// Zero-valued fields leave the stored setting untouched; Enabled is the
// exception and is always applied.
type UpdateProviderRequest struct {
	Enabled        bool              `json:"enabled"`
	APIKey         string            `json:"api_key,omitempty"`
	BaseURL        string            `json:"base_url,omitempty" validate:"omitempty,url"`
	Organization   string            `json:"organization,omitempty"`
	Priority       int               `json:"priority,omitempty" validate:"gte=0"`
	MaxRetries     int               `json:"max_retries,omitempty" validate:"gte=0"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"gte=0"`
	RateLimitRPM   int               `json:"rate_limit_rpm,omitempty" validate:"gte=0"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// UpdateProviderHandler persists a provider configuration change and
// hot-swaps the running adapter. The change merges over the persisted
// entry so settings absent from the request survive.
func UpdateProviderHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pt := providers.ProviderType(chi.URLParam(r, "type"))
		if !pt.Valid() {
			_ = utils.WriteNotFound(w, "unknown provider type")
			return
		}

		var req UpdateProviderRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		doc, err := deps.Store.Load()
		if err != nil {
			_ = utils.WriteInternalError(w, err.Error())
			return
		}
		cfg, ok := doc.Providers[pt]
		if !ok {
			cfg = providers.DefaultProviderConfig(pt)
		}

		cfg.Enabled = req.Enabled
		if req.APIKey != "" {
			cfg.APIKey = req.APIKey
		}
		if req.BaseURL != "" {
			cfg.BaseURL = req.BaseURL
		}
		if req.Organization != "" {
			cfg.Organization = req.Organization
		}
		if req.Priority > 0 {
			cfg.Priority = req.Priority
		}
		if req.MaxRetries > 0 {
			cfg.MaxRetries = req.MaxRetries
		}
		if req.TimeoutSeconds > 0 {
			cfg.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
		}
		if req.RateLimitRPM > 0 {
			cfg.RateLimitRPM = req.RateLimitRPM
		}
		if req.Extra != nil {
			cfg.Extra = req.Extra
		}

		if _, err := deps.Store.Update(cfg); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		if err := deps.Registry.Register(cfg); err != nil {
			_ = utils.WriteInternalError(w, err.Error())
			return
		}

		deps.Logger.Info("provider updated",
			zap.String("provider", string(pt)),
			zap.Bool("enabled", cfg.Enabled))
		_ = utils.WriteOK(w, map[string]string{"provider": string(pt), "status": "updated"})
	}
}

// ReloadProvidersHandler re-reads the persisted configuration and
// hot-swaps the provider set.
func ReloadProvidersHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Reload(); err != nil {
			_ = utils.WriteInternalError(w, err.Error())
			return
		}
		_ = utils.WriteOK(w, map[string]interface{}{
			"status":    "reloaded",
			"providers": deps.Registry.Count(),
		})
	}
}

// SetDefaultRequest assigns a capability default.
type SetDefaultRequest struct {
	Capability string `json:"capability" validate:"required"`
	Provider   string `json:"provider" validate:"required"`
}

// SetDefaultHandler assigns the default provider for a capability.
func SetDefaultHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetDefaultRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		pt := providers.ProviderType(req.Provider)
		if !pt.Valid() {
			_ = utils.WriteBadRequest(w, "unknown provider type", nil)
			return
		}

		if err := deps.Registry.SetDefault(providers.Capability(req.Capability), pt); err != nil {
			writeRouteError(w, err)
			return
		}
		_ = utils.WriteOK(w, map[string]string{
			"capability": req.Capability,
			"provider":   req.Provider,
		})
	}
}

// SetStrategyRequest switches the routing strategy.
type SetStrategyRequest struct {
	Strategy string `json:"strategy" validate:"required"`
}

// SetStrategyHandler switches the routing strategy at runtime.
func SetStrategyHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetStrategyRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		strategy, err := routing.ParseStrategy(req.Strategy)
		if err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		if err := deps.Router.SetStrategy(strategy); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		deps.Logger.Info("routing strategy changed", zap.String("strategy", string(strategy)))
		_ = utils.WriteOK(w, map[string]string{"strategy": string(strategy)})
	}
}
