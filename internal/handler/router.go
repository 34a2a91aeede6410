package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eli-ai/eli-backend/internal/auth"
	chathandler "github.com/eli-ai/eli-backend/internal/handler/chat"
	"github.com/eli-ai/eli-backend/internal/middleware"
	"github.com/eli-ai/eli-backend/internal/service/relay"
	"github.com/eli-ai/eli-backend/internal/store"
	"github.com/eli-ai/eli-backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(logger zerolog.Logger, verifier *auth.Verifier, relaySvc *relay.Service, st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	wsHandler := chathandler.NewWebSocketHandler(relaySvc, logger)
	historyHandler := chathandler.New(st, logger)

	r.Route("/api", func(api chi.Router) {
		// The websocket entry point authenticates inside the relay so
		// rejections surface as close frames.
		wsHandler.RegisterRoutes(api)

		api.Group(func(protected chi.Router) {
			protected.Use(middleware.RequireAuth(verifier))
			historyHandler.RegisterRoutes(protected)
		})
	})

	return r
}
