package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/openmeet/ai-router/app"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck reports whether the service can route requests at all.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"status": "ready",
			"checks": map[string]string{},
		}

		if deps.Registry.Count() == 0 {
			response["status"] = "not_ready"
			response["checks"].(map[string]string)["providers"] = "none_configured"
		} else {
			response["checks"].(map[string]string)["providers"] = "configured"
		}

		w.Header().Set("Content-Type", "application/json")
		if response["status"] == "ready" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}
