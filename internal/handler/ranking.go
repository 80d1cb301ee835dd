package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"loyalty-points/internal/auth"
	"loyalty-points/internal/service"
)

// RankingHandler serves leaderboard endpoints.
type RankingHandler struct {
	ranking      *service.RankingService
	defaultLimit int
	timeout      time.Duration
}

// NewRankingHandler creates a new RankingHandler. timeout bounds a single
// leaderboard aggregation; zero means no bound beyond the request's.
func NewRankingHandler(ranking *service.RankingService, defaultLimit int, timeout time.Duration) *RankingHandler {
	if defaultLimit <= 0 {
		defaultLimit = service.DefaultLeaderboardLimit
	}
	return &RankingHandler{ranking: ranking, defaultLimit: defaultLimit, timeout: timeout}
}

func (h *RankingHandler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

// Leaderboard handles GET /api/rankings?timeRange=&limit=.
func (h *RankingHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	tr, err := service.ParseTimeRange(r.URL.Query().Get("timeRange"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", h.defaultLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	entries, err := h.ranking.Leaderboard(ctx, tr, limit, auth.TokenFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"timeRange": tr,
		"rankings":  entries,
	})
}

// UserRanking handles GET /api/rankings/{userId}?timeRange=.
func (h *RankingHandler) UserRanking(w http.ResponseWriter, r *http.Request) {
	tr, err := service.ParseTimeRange(r.URL.Query().Get("timeRange"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	ranking, err := h.ranking.UserRanking(ctx, chi.URLParam(r, "userId"), tr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, ranking)
}

// Refresh handles POST /api/rankings/update.
func (h *RankingHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	n, err := h.ranking.RefreshRankings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]int{"updated": n})
}
