// Package api wires the HTTP router, middleware and handlers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/handler"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the router needs.
type Deps struct {
	Points         *handler.PointHandler
	Ranking        *handler.RankingHandler
	Admin          *handler.AdminHandler
	Users          *handler.UserHandler
	Verifier       *auth.Verifier
	IsAdmin        AdminChecker
	AllowedOrigins []string
	Health         Pinger
}

// NewRouter creates the router with all routes configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware())
	r.Use(RecoveryMiddleware())
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(d.Health))

	requireAuth := AuthMiddleware(d.Verifier, d.IsAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Route("/points", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/earn", d.Points.Earn)
			r.Post("/redeem", d.Points.Redeem)
			r.Get("/balance/{userId}", d.Points.Balance)
			r.Get("/history/{userId}", d.Points.History)
		})

		r.Route("/rankings", func(r chi.Router) {
			r.With(OptionalAuthMiddleware(d.Verifier, d.IsAdmin)).Get("/", d.Ranking.Leaderboard)
			r.With(requireAuth).Post("/update", d.Ranking.Refresh)
			r.Get("/{userId}", d.Ranking.UserRanking)
		})

		r.With(OptionalAuthMiddleware(d.Verifier, d.IsAdmin)).Get("/users/info/{userId}", d.Users.Info)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, AdminMiddleware())

			r.Route("/point-configs", func(r chi.Router) {
				r.Get("/", d.Admin.ListConfigs)
				r.Post("/", d.Admin.CreateConfig)
				r.Get("/{id}", d.Admin.GetConfig)
				r.Put("/{id}", d.Admin.UpdateConfig)
				r.Delete("/{id}", d.Admin.DeleteConfig)
			})
			r.Route("/badges", func(r chi.Router) {
				r.Get("/", d.Admin.ListBadges)
				r.Post("/", d.Admin.CreateBadge)
				r.Put("/{id}", d.Admin.UpdateBadge)
				r.Delete("/{id}", d.Admin.DeleteBadge)
			})
			r.Get("/statistics", d.Admin.Statistics)
			r.Post("/reconcile", d.Admin.Reconcile)
		})
	})

	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				writeJSONError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(handler.Response{Success: true, Message: "ok"})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handler.Response{Success: false, Message: message})
}
