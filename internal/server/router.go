package server

import (
	"net/http"

	"esports-aggregator/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const APIPrefix = "/api/esport/live"

func NewRouter(h *Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.HealthCheck)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/matches", h.GetMatches)
		r.Get("/players", h.GetPlayers)
		r.Get("/status", h.GetStatus)
		r.Get("/games", h.GetGames)
		r.Get("/analytics/trends", h.GetTrends)
		r.Post("/sync", h.PostSync)
		r.Get("/sync/history", h.GetSyncHistory)
	})

	return r
}
