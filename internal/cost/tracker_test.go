package cost

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	tr := NewTracker(rdb)
	tr.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }
	return tr, mr
}

func TestRecordIncrementsBothCounters(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", Model: "gpt-4o", CostUSD: 0.5}))
	require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", Model: "gpt-4o", CostUSD: 0.25}))

	assert.InDelta(t, 0.75, tr.DailySpend(ctx, "t1", time.Time{}), 1e-9)
	assert.InDelta(t, 0.75, tr.MTDSpend(ctx, "t1"), 1e-9)

	// Keys carry their retention TTLs.
	assert.Greater(t, mr.TTL("daily:t1:2025-06-15"), time.Duration(0))
	assert.Greater(t, mr.TTL("mtd:t1:2025-06"), time.Duration(0))
}

func TestSpendReadsMissingKeyAsZero(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	assert.Zero(t, tr.DailySpend(ctx, "nobody", time.Time{}))
	assert.Zero(t, tr.MTDSpend(ctx, "nobody"))
}

func TestSpendMonotonicWithinPeriod(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	prev := 0.0
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", CostUSD: 0.1}))
		cur := tr.DailySpend(ctx, "t1", time.Time{})
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCheckBudget(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", CostUSD: 7.5}))

	allowed, spend, pct := tr.CheckBudget(ctx, "t1", 10)
	assert.True(t, allowed)
	assert.InDelta(t, 7.5, spend, 1e-9)
	assert.InDelta(t, 0.75, pct, 1e-9)

	allowed, _, _ = tr.CheckBudget(ctx, "t1", 7.5)
	assert.False(t, allowed, "spend == budget is over")

	// Zero budget never divides by zero.
	allowed, _, pct = tr.CheckBudget(ctx, "t1", 0)
	assert.False(t, allowed)
	assert.Greater(t, pct, 0.0)
}

func TestRequireBudget(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", CostUSD: 5}))

	assert.NoError(t, tr.RequireBudget(ctx, "t1", 10))

	err := tr.RequireBudget(ctx, "t1", 5)
	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "t1", be.TenantID)
	assert.InDelta(t, 5, be.SpendUSD, 1e-9)

	// Non-positive budget disables the gate.
	assert.NoError(t, tr.RequireBudget(ctx, "t1", 0))
}

func TestRecordFailureIsReturnedNotRaised(t *testing.T) {
	tr, mr := newTestTracker(t)
	mr.Close()
	err := tr.Record(context.Background(), RecordParams{TenantID: "t1", CostUSD: 1})
	assert.Error(t, err)
}

func TestCostBreakdown(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tr.Record(ctx, RecordParams{TenantID: "t1", CostUSD: 2}))

	b := tr.CostBreakdown(ctx, "t1")
	assert.InDelta(t, 2, b.TodayUSD, 1e-9)
	assert.InDelta(t, 2, b.MTDUSD, 1e-9)
}
