package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-points/internal/model"
)

func TestEarn_NewUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()

	res, err := env.points.Earn(ctx, "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.PointsAwarded)
	assert.Equal(t, int64(50), res.NewTotal)
	assert.False(t, res.Duplicate)

	bal, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.TotalPoints)
	assert.True(t, bal.Exists)
}

func TestEarn_UnknownOrInactiveScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "missing", EarnMetadata{})
	assert.ErrorIs(t, err, ErrConfigNotFound)

	cfg := env.addConfig(t, "daily_login", 5)
	cfg.IsActive = false
	_, err = env.configs.Update(ctx, cfg)
	require.NoError(t, err)

	_, err = env.points.Earn(ctx, "u1", "daily_login", EarnMetadata{})
	assert.ErrorIs(t, err, ErrConfigNotFound)

	_, err = env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
}

func TestEarn_ReservedScenarios(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.addConfig(t, model.ScenarioRedemptionRate, 0)
	env.addConfig(t, model.ScenarioOrderDiscount, 10)

	for _, scenario := range []string{model.ScenarioRedemptionRate, model.ScenarioOrderDiscount} {
		_, err := env.points.Earn(ctx, "u1", scenario, EarnMetadata{})
		assert.ErrorIs(t, err, ErrConfigNotFound, scenario)
	}

	page, err := env.points.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestEarn_RecordsMetadata(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_purchase", 20)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "course_purchase", EarnMetadata{CourseID: "c-9", OrderID: "o-1"})
	require.NoError(t, err)

	page, err := env.points.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	tx := page.Items[0]
	assert.Equal(t, model.TxTypeEarn, tx.Type)
	assert.Equal(t, int64(20), tx.Points)
	assert.Equal(t, "course_purchase", tx.ScenarioType)
	require.NotNil(t, tx.CourseID)
	assert.Equal(t, "c-9", *tx.CourseID)
	require.NotNil(t, tx.Description)
	assert.Equal(t, "course_purchase", *tx.Description)
}

func TestEarn_NegativeConfigCannotOverdraw(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "bonus", 10)
	env.addConfig(t, "penalty", -25)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "bonus", EarnMetadata{})
	require.NoError(t, err)

	_, err = env.points.Earn(ctx, "u1", "penalty", EarnMetadata{})
	var insufficient *InsufficientBalanceError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(10), insufficient.Available)
	assert.Equal(t, int64(25), insufficient.Requested)

	bal, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.TotalPoints)
}

func TestEarn_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()
	meta := EarnMetadata{OperationID: "op-1"}

	first, err := env.points.Earn(ctx, "u1", "course_complete", meta)
	require.NoError(t, err)
	second, err := env.points.Earn(ctx, "u1", "course_complete", meta)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, int64(50), second.PointsAwarded)
	assert.Equal(t, int64(50), second.NewTotal)

	page, err := env.points.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// The same key for another user is independent.
	other, err := env.points.Earn(ctx, "u2", "course_complete", meta)
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}

func TestEarn_TriggersRanking(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)

	var calls int
	env.points.SetRankingTrigger(func() { calls++ })

	meta := EarnMetadata{OperationID: "op-1"}
	_, err := env.points.Earn(context.Background(), "u1", "course_complete", meta)
	require.NoError(t, err)
	_, err = env.points.Earn(context.Background(), "u1", "course_complete", meta)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestRedeem_Insufficient(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)

	_, err = env.points.Redeem(ctx, "u1", 80, "order1", RedeemMetadata{})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	bal, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.TotalPoints)

	page, err := env.points.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestRedeem_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)

	env.clock.Set(testNow.Add(time.Minute))
	res, err := env.points.Redeem(ctx, "u1", 30, "order1", RedeemMetadata{})
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.PointsRedeemed)
	assert.Equal(t, int64(20), res.RemainingPoints)
	assert.True(t, decimal.NewFromInt(30000).Equal(res.AmountConverted))

	page, err := env.points.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	redeem := page.Items[0]
	assert.Equal(t, model.TxTypeRedeem, redeem.Type)
	assert.Equal(t, int64(-30), redeem.Points)
	assert.Equal(t, model.ScenarioOrderDiscount, redeem.ScenarioType)
	require.NotNil(t, redeem.OrderID)
	assert.Equal(t, "order1", *redeem.OrderID)
}

func TestRedeem_UsesConfiguredRate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	rate := decimal.RequireFromString("1500.5")
	_, err := env.configs.Create(context.Background(), &model.PointConfig{
		ScenarioType:   model.ScenarioRedemptionRate,
		Name:           "rate",
		IsActive:       true,
		RedemptionRate: &rate,
	})
	require.NoError(t, err)

	_, err = env.points.Earn(context.Background(), "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)
	res, err := env.points.Redeem(context.Background(), "u1", 2, "o", RedeemMetadata{})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3001).Equal(res.AmountConverted), res.AmountConverted.String())
}

func TestRedeem_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.points.Redeem(ctx, "u1", 0, "o", RedeemMetadata{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.points.Redeem(ctx, "u1", -5, "o", RedeemMetadata{})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.points.Redeem(ctx, "ghost", 5, "o", RedeemMetadata{})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = env.points.GetBalance(ctx, "ghost")
	require.NoError(t, err)
}

func TestRedeem_Idempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)

	meta := RedeemMetadata{OperationID: "redeem-1"}
	_, err = env.points.Redeem(ctx, "u1", 30, "order1", meta)
	require.NoError(t, err)
	again, err := env.points.Redeem(ctx, "u1", 30, "order1", meta)
	require.NoError(t, err)

	assert.True(t, again.Duplicate)
	assert.Equal(t, int64(30), again.PointsRedeemed)
	assert.Equal(t, int64(20), again.RemainingPoints)
	assert.True(t, decimal.NewFromInt(30000).Equal(again.AmountConverted))
}

func TestGetBalance_UnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	bal, err := env.points.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.TotalPoints)
	assert.Equal(t, model.DefaultTier, bal.Tier)
	assert.Nil(t, bal.Rank)
	assert.False(t, bal.Exists)

	env.addStandardBadges(t)
	bal, err = env.points.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "Bronze", bal.Tier)
}

func TestGetBalance_RankAndTier(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStandardBadges(t)
	env.addConfig(t, "big", 150)
	env.addConfig(t, "small", 10)
	ctx := context.Background()

	for _, u := range []string{"a", "b"} {
		_, err := env.points.Earn(ctx, u, "big", EarnMetadata{})
		require.NoError(t, err)
	}
	_, err := env.points.Earn(ctx, "c", "small", EarnMetadata{})
	require.NoError(t, err)

	bal, err := env.points.GetBalance(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, bal.Rank)
	assert.Equal(t, 1, *bal.Rank, "ties share the better rank")
	assert.Equal(t, "Silver", bal.Tier)

	bal, err = env.points.GetBalance(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, *bal.Rank)
	assert.Equal(t, "Bronze", bal.Tier)
}

func TestGetBalance_IdempotentReads(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addStandardBadges(t)
	env.addConfig(t, "course_complete", 50)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "course_complete", EarnMetadata{})
	require.NoError(t, err)

	first, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	second, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetHistory_Paging(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "login", 1)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		env.earnAt(t, testNow.Add(time.Duration(i)*time.Minute), "u1", "login")
	}

	page, err := env.points.GetHistory(ctx, "u1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 10)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[9].CreatedAt))

	last, err := env.points.GetHistory(ctx, "u1", 3, 10)
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)

	beyond, err := env.points.GetHistory(ctx, "u1", 9, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)

	clamped, err := env.points.GetHistory(ctx, "u1", 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, clamped.PageSize)

	empty, err := env.points.GetHistory(ctx, "nobody", 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestConcurrentEarnRedeem_NeverNegative(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "earn", 10)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "earn", EarnMetadata{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = env.points.Earn(ctx, "u1", "earn", EarnMetadata{})
		}()
		go func() {
			defer wg.Done()
			_, err := env.points.Redeem(ctx, "u1", 15, "o", RedeemMetadata{})
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientBalance)
			}
		}()
	}
	wg.Wait()

	bal, err := env.points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, bal.TotalPoints, int64(0))

	drift, err := env.points.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestReconcile_RepairsDrift(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "earn", 40)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "earn", EarnMetadata{})
	require.NoError(t, err)
	_, err = env.points.Earn(ctx, "u2", "earn", EarnMetadata{})
	require.NoError(t, err)

	skewed := newSkewedLedger(env.ledger)
	skewed.skew["u2"] = 959
	points := env.pointsOver(skewed)

	drift, err := points.Reconcile(ctx, false)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, "u2", drift[0].UserID)
	assert.Equal(t, int64(959), drift[0].Drift())
	assert.Equal(t, int64(959), skewed.skew["u2"], "report-only leaves the balance alone")

	repaired, err := points.Reconcile(ctx, true)
	require.NoError(t, err)
	require.Len(t, repaired, 1)
	assert.Equal(t, model.BalanceAudit{UserID: "u2", Stored: 999, Ledger: 40}, repaired[0])

	bal, err := points.GetBalance(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal.TotalPoints)

	drift, err = points.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestReconcile_RepairCountsEarnAfterScan(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addConfig(t, "earn", 50)
	ctx := context.Background()

	_, err := env.points.Earn(ctx, "u1", "earn", EarnMetadata{})
	require.NoError(t, err)

	skewed := newSkewedLedger(env.ledger)
	skewed.skew["u1"] = 949
	points := env.pointsOver(skewed)
	skewed.afterScan = func() {
		_, err := points.Earn(ctx, "u1", "earn", EarnMetadata{})
		require.NoError(t, err)
	}

	_, err = points.Reconcile(ctx, true)
	require.NoError(t, err)

	bal, err := points.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.TotalPoints)

	skewed.afterScan = nil
	drift, err := points.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestReconcile_UnknownUserSkipped(t *testing.T) {
	env := newTestEnv(t, nil)
	skewed := newSkewedLedger(env.ledger)
	skewed.phantom = []model.BalanceAudit{{UserID: "ghost", Stored: 5, Ledger: 0}}

	repaired, err := env.pointsOver(skewed).Reconcile(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, repaired)
}
