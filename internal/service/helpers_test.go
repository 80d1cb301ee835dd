package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"loyalty-points/internal/identity"
	"loyalty-points/internal/model"
	"loyalty-points/internal/pkg/lock"
	"loyalty-points/internal/repository/memory"
)

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type testEnv struct {
	configs *memory.Configs
	badges  *memory.Badges
	ledger  *memory.Ledger
	points  *PointService
	ranking *RankingService
	admin   *AdminService
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Wednesday, 10:00 UTC.
var testNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func newTestEnv(t testingT, resolver IdentityResolver) *testEnv {
	t.Helper()

	env := &testEnv{
		configs: memory.NewConfigs(),
		badges:  memory.NewBadges(),
		ledger:  memory.NewLedger(),
		clock:   &fakeClock{now: testNow},
	}
	env.points = NewPointService(env.configs, env.badges, env.ledger, env.ledger,
		lock.NewUserLock(), decimal.NewFromInt(1000), time.Second)
	env.points.SetClock(env.clock.Now)
	env.ranking = NewRankingService(env.badges, env.ledger, env.ledger, resolver, time.UTC)
	env.ranking.SetClock(env.clock.Now)
	env.admin = NewAdminService(env.configs, env.badges, env.ledger)
	return env
}

// pointsOver builds a PointService sharing the env's catalog and clock but
// reading balances and the ledger through store.
func (e *testEnv) pointsOver(store interface {
	LedgerStore
	BalanceStore
}) *PointService {
	svc := NewPointService(e.configs, e.badges, store, store,
		lock.NewUserLock(), decimal.NewFromInt(1000), time.Second)
	svc.SetClock(e.clock.Now)
	return svc
}

// skewedLedger reports stored totals offset by skew until a repair clears
// them. afterScan runs once Drifted has taken its snapshot.
type skewedLedger struct {
	*memory.Ledger
	skew      map[string]int64
	phantom   []model.BalanceAudit
	afterScan func()
}

func newSkewedLedger(inner *memory.Ledger) *skewedLedger {
	return &skewedLedger{Ledger: inner, skew: make(map[string]int64)}
}

func (l *skewedLedger) Get(ctx context.Context, userID string) (*model.UserBalance, error) {
	b, err := l.Ledger.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	b.TotalPoints += l.skew[userID]
	return b, nil
}

func (l *skewedLedger) Drifted(ctx context.Context) ([]model.BalanceAudit, error) {
	audits, err := l.Ledger.Drifted(ctx)
	if err != nil {
		return nil, err
	}
	for id, offset := range l.skew {
		b, err := l.Ledger.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		audits = append(audits, model.BalanceAudit{UserID: id, Stored: b.TotalPoints + offset, Ledger: b.TotalPoints})
	}
	audits = append(audits, l.phantom...)
	sort.Slice(audits, func(i, j int) bool { return audits[i].UserID < audits[j].UserID })

	if l.afterScan != nil {
		l.afterScan()
	}
	return audits, nil
}

func (l *skewedLedger) Repair(ctx context.Context, userID string) (*model.BalanceAudit, error) {
	audit, err := l.Ledger.Repair(ctx, userID)
	if err != nil {
		return nil, err
	}
	audit.Stored += l.skew[userID]
	delete(l.skew, userID)
	return audit, nil
}

func (e *testEnv) addConfig(t testingT, scenario string, points int64) *model.PointConfig {
	t.Helper()
	cfg, err := e.configs.Create(context.Background(), &model.PointConfig{
		ScenarioType: scenario,
		Name:         scenario,
		PointValue:   points,
		IsActive:     true,
	})
	require.NoError(t, err)
	return cfg
}

func (e *testEnv) addBadge(t testingT, name string, minPoints int64, topPoints *int) {
	t.Helper()
	_, err := e.badges.Create(context.Background(), &model.Badge{
		Name:      name,
		MinPoints: minPoints,
		TopPoints: topPoints,
		IsActive:  true,
	})
	require.NoError(t, err)
}

func (e *testEnv) addStandardBadges(t testingT) {
	t.Helper()
	top := 10
	e.addBadge(t, "Bronze", 0, nil)
	e.addBadge(t, "Silver", 100, nil)
	e.addBadge(t, "Gold", 500, &top)
}

// earnAt records an earn of the given scenario stamped at ts.
func (e *testEnv) earnAt(t testingT, ts time.Time, userID, scenario string) {
	t.Helper()
	prev := e.clock.Now()
	e.clock.Set(ts)
	defer e.clock.Set(prev)
	_, err := e.points.Earn(context.Background(), userID, scenario, EarnMetadata{})
	require.NoError(t, err)
}

type stubResolver struct {
	mu    sync.Mutex
	names map[string]string
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, userID, _ string) (*identity.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	name, ok := r.names[userID]
	if !ok {
		return nil, identity.ErrIdentityResolutionFailed
	}
	return &identity.Identity{DisplayName: name}, nil
}

func intPtr(v int) *int { return &v }
