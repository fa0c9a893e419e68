package handlers

import (
	"net/http"

	"github.com/openmeet/ai-router/app"
	"github.com/openmeet/ai-router/providers"
	"github.com/openmeet/ai-router/utils"
)

// StatusHandler reports the registry snapshot, active strategy and
// capability defaults.
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, deps.Router.GetStatus())
	}
}

// ProvidersHealthHandler probes every provider concurrently.
func ProvidersHealthHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := deps.Router.HealthCheckAll(r.Context())

		healthy := 0
		for _, ok := range results {
			if ok {
				healthy++
			}
		}

		_ = utils.WriteOK(w, map[string]interface{}{
			"providers": results,
			"healthy":   healthy,
			"total":     len(results),
		})
	}
}

// ListModelsHandler aggregates the model catalogs across providers. An
// optional capability query parameter filters the result.
func ListModelsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models := deps.Router.ListAllModels()

		if raw := r.URL.Query().Get("capability"); raw != "" {
			capability := providers.Capability(raw)
			filtered := models[:0]
			for _, m := range models {
				if m.HasCapability(capability) {
					filtered = append(filtered, m)
				}
			}
			models = filtered
		}

		_ = utils.WriteOK(w, map[string]interface{}{
			"models": models,
			"count":  len(models),
		})
	}
}

// CompareCostRequest prices one chat request across providers.
type CompareCostRequest struct {
	Messages  []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model     string        `json:"model,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty" validate:"gte=0"`
}

// CompareCostHandler estimates what each provider would charge for the
// same request and names the cheapest.
func CompareCostHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CompareCostRequest
		if err := decodeAndValidate(deps, r, &req); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}

		comparison, err := deps.Router.CompareProviders(&providers.ChatRequest{
			Messages:  toProviderMessages(req.Messages),
			Model:     req.Model,
			MaxTokens: req.MaxTokens,
		}, req.Model)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		_ = utils.WriteOK(w, comparison)
	}
}
