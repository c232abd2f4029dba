package cost

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dailyTTL = 48 * time.Hour
	mtdTTL   = 35 * 24 * time.Hour
)

// RecordParams describes one recorded charge.
type RecordParams struct {
	TenantID     string
	RequestID    string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Tracker accumulates per-tenant spend in Redis under daily and
// month-to-date counters. Recording is best-effort: failures are logged,
// never surfaced, so a dead Redis cannot fail an inference that already
// succeeded.
type Tracker struct {
	rdb *redis.Client

	// now is used for testing; defaults to time.Now.
	now func() time.Time
}

// NewTracker wraps a Redis client.
func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb, now: time.Now}
}

func dailyKey(tenantID string, day time.Time) string {
	return fmt.Sprintf("daily:%s:%s", tenantID, day.Format("2006-01-02"))
}

func mtdKey(tenantID string, day time.Time) string {
	return fmt.Sprintf("mtd:%s:%s", tenantID, day.Format("2006-01"))
}

// Record adds the charge to both spend counters and refreshes their TTLs.
// The returned error is for the caller's breaker accounting only; recording
// is best-effort and the error is already logged here.
func (t *Tracker) Record(ctx context.Context, p RecordParams) error {
	today := t.now().UTC()
	daily := dailyKey(p.TenantID, today)
	mtd := mtdKey(p.TenantID, today)

	pipe := t.rdb.Pipeline()
	pipe.IncrByFloat(ctx, daily, p.CostUSD)
	pipe.Expire(ctx, daily, dailyTTL)
	pipe.IncrByFloat(ctx, mtd, p.CostUSD)
	pipe.Expire(ctx, mtd, mtdTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("cost record failed",
			slog.String("tenant_id", p.TenantID),
			slog.String("error", err.Error()),
		)
		return err
	}
	slog.Debug("cost recorded",
		slog.String("tenant_id", p.TenantID),
		slog.Float64("cost_usd", p.CostUSD),
		slog.String("model", p.Model),
	)
	return nil
}

// DailySpend returns the tenant's spend for the given day. A zero day means
// today. Missing keys and Redis errors both read as zero.
func (t *Tracker) DailySpend(ctx context.Context, tenantID string, day time.Time) float64 {
	if day.IsZero() {
		day = t.now().UTC()
	}
	val, err := t.rdb.Get(ctx, dailyKey(tenantID, day)).Float64()
	if err != nil {
		return 0
	}
	return val
}

// MTDSpend returns the tenant's month-to-date spend. Missing keys and Redis
// errors both read as zero.
func (t *Tracker) MTDSpend(ctx context.Context, tenantID string) float64 {
	val, err := t.rdb.Get(ctx, mtdKey(tenantID, t.now().UTC())).Float64()
	if err != nil {
		return 0
	}
	return val
}

// CheckBudget compares today's spend against the budget. pct is relative to
// max(budget, 0.01) so a zero budget cannot divide by zero.
func (t *Tracker) CheckBudget(ctx context.Context, tenantID string, budgetUSD float64) (allowed bool, spend, pct float64) {
	spend = t.DailySpend(ctx, tenantID, time.Time{})
	pct = spend / math.Max(budgetUSD, 0.01)
	return spend < budgetUSD, spend, pct
}

// BudgetExceededError reports a refused spend. Admission gates return it so
// callers can distinguish budget refusals from transport failures.
type BudgetExceededError struct {
	TenantID  string
	SpendUSD  float64
	BudgetUSD float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("tenant %s over budget: spent $%.4f of $%.2f", e.TenantID, e.SpendUSD, e.BudgetUSD)
}

// RequireBudget returns a BudgetExceededError when today's spend has reached
// the budget. A budget of zero or less disables the gate.
func (t *Tracker) RequireBudget(ctx context.Context, tenantID string, budgetUSD float64) error {
	if budgetUSD <= 0 {
		return nil
	}
	allowed, spend, _ := t.CheckBudget(ctx, tenantID, budgetUSD)
	if !allowed {
		return &BudgetExceededError{TenantID: tenantID, SpendUSD: spend, BudgetUSD: budgetUSD}
	}
	return nil
}

// Breakdown is a tenant's current spend split.
type Breakdown struct {
	MTDUSD   float64 `json:"mtd_usd"`
	TodayUSD float64 `json:"today_usd"`
}

// CostBreakdown returns the tenant's month-to-date and daily spend.
func (t *Tracker) CostBreakdown(ctx context.Context, tenantID string) Breakdown {
	return Breakdown{
		MTDUSD:   t.MTDSpend(ctx, tenantID),
		TodayUSD: t.DailySpend(ctx, tenantID, time.Time{}),
	}
}
