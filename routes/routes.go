// Package routes configures the HTTP router.
package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openmeet/ai-router/app"
	"github.com/openmeet/ai-router/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Transcription and local inference can run long; the write timeout on
	// the server is the real ceiling.
	r.Use(middleware.Timeout(10 * time.Minute))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.StatusHandler(deps))
		r.Get("/models", handlers.ListModelsHandler(deps))

		// AI operations
		r.Route("/ai", func(r chi.Router) {
			r.Post("/transcribe", handlers.TranscribeHandler(deps))
			r.Post("/chat", handlers.ChatCompletionHandler(deps))
			r.Post("/embeddings", handlers.EmbeddingHandler(deps))
			r.Post("/vision", handlers.VisionHandler(deps))
			r.Post("/summarize", handlers.SummarizeHandler(deps))
			r.Post("/compare-cost", handlers.CompareCostHandler(deps))
		})

		// Provider administration
		r.Route("/providers", func(r chi.Router) {
			r.Get("/health", handlers.ProvidersHealthHandler(deps))
			r.Put("/{type}", handlers.UpdateProviderHandler(deps))
			r.Post("/reload", handlers.ReloadProvidersHandler(deps))
			r.Post("/defaults", handlers.SetDefaultHandler(deps))
		})

		// Routing administration
		r.Put("/routing/strategy", handlers.SetStrategyHandler(deps))
	})

	return r
}
