package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"loyalty-points/internal/identity"
	"loyalty-points/internal/model"
	"loyalty-points/internal/repository"
)

// Leaderboard size bounds.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

const identityConcurrency = 8

// LeaderboardEntry is one row of a windowed leaderboard.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"userId"`
	DisplayName string  `json:"name"`
	TotalPoints int64   `json:"totalPoints"`
	Tier        string  `json:"badgeLevel"`
	Avatar      *string `json:"avatar"`
}

// UserRanking is one user's standing overall and within a window.
type UserRanking struct {
	UserID       string    `json:"userId"`
	TotalPoints  int64     `json:"totalPoints"`
	Tier         string    `json:"badgeLevel"`
	GlobalRank   int       `json:"globalRank"`
	TimeRange    TimeRange `json:"timeRange"`
	PeriodPoints int64     `json:"periodPoints"`
	PeriodRank   int       `json:"periodRank"`
}

// RankingService computes leaderboards from the ledger and materializes
// ranks on balances.
type RankingService struct {
	badges   BadgeStore
	ledger   LedgerStore
	balances BalanceStore
	resolver IdentityResolver
	location *time.Location
	maxLimit int
	now      func() time.Time
}

// NewRankingService creates a new RankingService instance.
func NewRankingService(
	badges BadgeStore,
	ledger LedgerStore,
	balances BalanceStore,
	resolver IdentityResolver,
	location *time.Location,
) *RankingService {
	if location == nil {
		location = time.Local
	}
	return &RankingService{
		badges:   badges,
		ledger:   ledger,
		balances: balances,
		resolver: resolver,
		location: location,
		maxLimit: MaxLeaderboardLimit,
		now:      time.Now,
	}
}

// SetClock replaces the clock windows are anchored to.
func (s *RankingService) SetClock(now func() time.Time) {
	s.now = now
}

// SetMaxLimit caps leaderboard size.
func (s *RankingService) SetMaxLimit(n int) {
	if n > 0 {
		s.maxLimit = n
	}
}

// Leaderboard ranks users by net points earned in the current window.
// Ties are broken by user ID ascending. Display names are resolved with
// token; failures fall back to a placeholder name.
func (s *RankingService) Leaderboard(ctx context.Context, tr TimeRange, limit int, token string) ([]LeaderboardEntry, error) {
	from, to, err := WindowFor(tr, s.now(), s.location)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, s.maxLimit)

	totals, err := s.ledger.WindowTotals(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate window: %w", err)
	}
	badges, err := s.badges.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}

	entries := make([]LeaderboardEntry, len(totals))
	for i, t := range totals {
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			UserID:      t.UserID,
			DisplayName: identity.Placeholder(t.UserID),
			TotalPoints: t.TotalPoints,
			Tier:        tierOrDefault(ResolveTier(badges, t.TotalPoints, i+1)),
		}
	}

	if s.resolver != nil {
		if err := s.resolveIdentities(ctx, entries, token); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// resolveIdentities fills display names concurrently. Individual lookup
// failures are absorbed; only cancellation of ctx is returned.
func (s *RankingService) resolveIdentities(ctx context.Context, entries []LeaderboardEntry, token string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(identityConcurrency)

	for i := range entries {
		e := &entries[i]
		g.Go(func() error {
			id, err := s.resolver.Resolve(gctx, e.UserID, token)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Debug().Err(err).Str("user_id", e.UserID).Msg("Using placeholder identity")
				return nil
			}
			if id.DisplayName != "" {
				e.DisplayName = id.DisplayName
			}
			e.Avatar = id.AvatarURL
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("leaderboard cancelled: %w", err)
	}
	return nil
}

// UserRanking reports a user's global rank and their standing in the window.
func (s *RankingService) UserRanking(ctx context.Context, userID string, tr TimeRange) (*UserRanking, error) {
	from, to, err := WindowFor(tr, s.now(), s.location)
	if err != nil {
		return nil, err
	}

	balance, err := s.balances.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	above, err := s.balances.CountAbove(ctx, balance.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to compute global rank: %w", err)
	}
	globalRank := int(above) + 1

	periodPoints, err := s.ledger.UserWindowTotal(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get period points: %w", err)
	}
	periodAbove, err := s.ledger.CountUsersAbove(ctx, from, to, periodPoints)
	if err != nil {
		return nil, fmt.Errorf("failed to compute period rank: %w", err)
	}

	badges, err := s.badges.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}

	return &UserRanking{
		UserID:       userID,
		TotalPoints:  balance.TotalPoints,
		Tier:         tierOrDefault(ResolveTier(badges, balance.TotalPoints, globalRank)),
		GlobalRank:   globalRank,
		TimeRange:    tr,
		PeriodPoints: periodPoints,
		PeriodRank:   int(periodAbove) + 1,
	}, nil
}

// RefreshRankings materializes positional rank and badge level on every
// balance, ordered by total descending then user ID.
func (s *RankingService) RefreshRankings(ctx context.Context) (int, error) {
	totals, err := s.balances.ListOrdered(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list balances: %w", err)
	}
	badges, err := s.badges.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list badges: %w", err)
	}

	updates := make([]model.RankUpdate, len(totals))
	for i, t := range totals {
		u := model.RankUpdate{UserID: t.UserID, Rank: i + 1}
		if tier := ResolveTier(badges, t.TotalPoints, i+1); tier != "" {
			u.BadgeLevel = &tier
		}
		updates[i] = u
	}

	if err := s.balances.SaveRankings(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to save rankings: %w", err)
	}
	log.Info().Int("users", len(updates)).Msg("Rankings refreshed")
	return len(updates), nil
}
