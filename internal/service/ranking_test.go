package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points/internal/model"
)

func TestResolveTier_RankCeiling(t *testing.T) {
	top := 10
	badges := []*model.Badge{
		{Name: "Bronze", MinPoints: 0},
		{Name: "Silver", MinPoints: 100},
		{Name: "Gold", MinPoints: 500, TopPoints: &top},
	}

	assert.Equal(t, "Silver", ResolveTier(badges, 600, 15))
	assert.Equal(t, "Gold", ResolveTier(badges, 600, 5))
	assert.Equal(t, "Gold", ResolveTier(badges, 600, 10))
	assert.Equal(t, "Bronze", ResolveTier(badges, 50, 1))
	assert.Equal(t, "", ResolveTier(nil, 600, 1))
}

func TestResolveTier_FallsBackToLowest(t *testing.T) {
	badges := []*model.Badge{
		{Name: "Silver", MinPoints: 100},
		{Name: "Gold", MinPoints: 500},
	}
	assert.Equal(t, "Silver", ResolveTier(badges, 10, 1))
}

func TestLeaderboard_DayExcludesYesterday(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "earn", 10)
	ctx := context.Background()

	env.earnAt(t, testNow.Add(-24*time.Hour), "u1", "earn")
	env.earnAt(t, testNow.Add(-time.Hour), "u1", "earn")
	env.earnAt(t, testNow.Add(-30*time.Hour), "u2", "earn")

	rows, err := env.ranking.Leaderboard(ctx, RangeDay, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, int64(10), rows[0].TotalPoints)

	rows, err = env.ranking.Leaderboard(ctx, RangeWeek, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(20), rows[0].TotalPoints)
}

func TestLeaderboard_NetOfRedemptionsAndTieBreak(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStandardBadges(t)
	env.addConfig(t, "earn", 100)
	ctx := context.Background()

	for _, u := range []string{"carol", "alice", "bob", "bob"} {
		env.earnAt(t, testNow.Add(-time.Hour), u, "earn")
	}
	_, err := env.points.Redeem(ctx, "bob", 150, "o", RedeemMetadata{})
	require.NoError(t, err)

	rows, err := env.ranking.Leaderboard(ctx, RangeMonth, 10, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "alice", rows[0].UserID)
	assert.Equal(t, "carol", rows[1].UserID)
	assert.Equal(t, "bob", rows[2].UserID)
	assert.Equal(t, int64(50), rows[2].TotalPoints)
	for i, r := range rows {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, "Silver", rows[0].Tier)
	assert.Equal(t, "Bronze", rows[2].Tier)
}

func TestLeaderboard_LimitAndIdentity(t *testing.T) {
	resolver := &stubResolver{names: map[string]string{"user-0001": "Alice"}}
	env := newTestEnv(t, resolver)
	env.addConfig(t, "earn", 5)

	for _, u := range []string{"user-0001", "user-0002", "user-0003"} {
		env.earnAt(t, testNow, u, "earn")
	}

	rows, err := env.ranking.Leaderboard(context.Background(), RangeYear, 2, "tok")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0].DisplayName)
	assert.Equal(t, "User user-...", rows[1].DisplayName)
	assert.Equal(t, 2, resolver.calls)
}

func TestLeaderboard_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.ranking.Leaderboard(context.Background(), TimeRange("decade"), 10, "")
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	rows, err := env.ranking.Leaderboard(context.Background(), RangeDay, 0, "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLeaderboard_Cancelled(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.ranking.Leaderboard(ctx, RangeDay, 10, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserRanking(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStandardBadges(t)
	env.addConfig(t, "earn", 60)
	ctx := context.Background()

	// Earlier this month: everyone earns once.
	for _, u := range []string{"a", "b", "c"} {
		env.earnAt(t, testNow.Add(-5*24*time.Hour), u, "earn")
	}
	// Today: a earns twice, c once.
	env.earnAt(t, testNow.Add(-time.Hour), "a", "earn")
	env.earnAt(t, testNow.Add(-time.Hour), "a", "earn")
	env.earnAt(t, testNow.Add(-time.Hour), "c", "earn")

	r, err := env.ranking.UserRanking(ctx, "c", RangeDay)
	require.NoError(t, err)
	assert.Equal(t, int64(120), r.TotalPoints)
	assert.Equal(t, 2, r.GlobalRank)
	assert.Equal(t, int64(60), r.PeriodPoints)
	assert.Equal(t, 2, r.PeriodRank)
	assert.Equal(t, "Silver", r.Tier)

	r, err = env.ranking.UserRanking(ctx, "b", RangeDay)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.PeriodPoints)
	assert.Equal(t, 3, r.PeriodRank)
	assert.Equal(t, 3, r.GlobalRank)

	_, err = env.ranking.UserRanking(ctx, "ghost", RangeDay)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRefreshRankings(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStandardBadges(t)
	env.addConfig(t, "earn", 300)
	ctx := context.Background()

	for _, u := range []string{"z", "y", "y"} {
		env.earnAt(t, testNow, u, "earn")
	}

	n, err := env.ranking.RefreshRankings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	y, err := env.ledger.Get(ctx, "y")
	require.NoError(t, err)
	require.NotNil(t, y.Rank)
	assert.Equal(t, 1, *y.Rank)
	require.NotNil(t, y.BadgeLevel)
	assert.Equal(t, "Gold", *y.BadgeLevel)

	z, err := env.ledger.Get(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, 2, *z.Rank)
	assert.Equal(t, "Silver", *z.BadgeLevel)
}
