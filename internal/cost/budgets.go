package cost

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nexusai/nexus/internal/events"
)

// Budget statement statuses.
const (
	StatusNoBudget        = "no_budget"
	StatusWithinBudget    = "within_budget"
	StatusCapReached      = "cap_reached"
	StatusDisabledHardCap = "disabled_hard_cap"
)

// TenantBudget holds a tenant's monthly soft and hard caps. Disabled latches
// true once the hard cap is crossed and is never cleared automatically.
type TenantBudget struct {
	TenantID      string  `json:"tenant_id"`
	MonthlyCapUSD float64 `json:"monthly_cap_usd"`
	HardCapUSD    float64 `json:"hard_cap_usd"`
	Disabled      bool    `json:"disabled"`
}

// Statement reports a tenant's position after a charge is applied.
type Statement struct {
	TenantID      string  `json:"tenant_id"`
	Period        string  `json:"period"`
	TotalUSD      float64 `json:"total_usd"`
	MonthlyCapUSD float64 `json:"monthly_cap_usd,omitempty"`
	HardCapUSD    float64 `json:"hard_cap_usd,omitempty"`
	Disabled      bool    `json:"disabled"`
	Status        string  `json:"status"`
}

// TenantCost is one row of a period summary.
type TenantCost struct {
	TenantID string  `json:"tenant_id"`
	Period   string  `json:"period"`
	CostUSD  float64 `json:"cost_usd"`
}

type spendKey struct {
	tenantID string
	period   string
}

// Budgets is an in-memory budget registry with per-period spend totals.
// Safe for concurrent use.
type Budgets struct {
	mu      sync.Mutex
	budgets map[string]*TenantBudget
	spend   map[spendKey]float64
	bus     *events.Bus

	// now is used for testing; defaults to time.Now.
	now func() time.Time
}

// NewBudgets creates an empty registry.
func NewBudgets() *Budgets {
	return &Budgets{
		budgets: make(map[string]*TenantBudget),
		spend:   make(map[spendKey]float64),
		now:     time.Now,
	}
}

// AttachBus makes Apply publish a budget_exceeded event whenever a charge
// lands at or over a cap.
func (b *Budgets) AttachBus(bus *events.Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
}

// Set installs (or replaces) a tenant's caps. Replacing clears a latched
// Disabled flag.
func (b *Budgets) Set(tenantID string, monthlyCapUSD, hardCapUSD float64) TenantBudget {
	b.mu.Lock()
	defer b.mu.Unlock()
	budget := &TenantBudget{TenantID: tenantID, MonthlyCapUSD: monthlyCapUSD, HardCapUSD: hardCapUSD}
	b.budgets[tenantID] = budget
	return *budget
}

// Get returns the tenant's budget, if one is set.
func (b *Budgets) Get(tenantID string) (TenantBudget, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	budget, ok := b.budgets[tenantID]
	if !ok {
		return TenantBudget{}, false
	}
	return *budget, true
}

// Apply adds a charge to the tenant's period total and classifies the
// result. period is "YYYY-MM"; empty means the current month.
func (b *Budgets) Apply(tenantID string, amountUSD float64, period string) Statement {
	if period == "" {
		period = b.now().UTC().Format("2006-01")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	key := spendKey{tenantID: tenantID, period: period}
	b.spend[key] += amountUSD
	total := b.spend[key]

	budget, ok := b.budgets[tenantID]
	if !ok {
		return Statement{TenantID: tenantID, Period: period, TotalUSD: total, Status: StatusNoBudget}
	}

	var status string
	switch {
	case total >= budget.HardCapUSD:
		budget.Disabled = true
		status = StatusDisabledHardCap
	case total >= budget.MonthlyCapUSD:
		status = StatusCapReached
	default:
		status = StatusWithinBudget
	}

	if b.bus != nil && status != StatusWithinBudget {
		b.bus.Publish(events.Event{
			Type:         events.EventBudgetExceeded,
			TenantID:     tenantID,
			Reason:       status,
			TotalCostUSD: round4(total),
		})
	}

	return Statement{
		TenantID:      tenantID,
		Period:        period,
		TotalUSD:      round4(total),
		MonthlyCapUSD: budget.MonthlyCapUSD,
		HardCapUSD:    budget.HardCapUSD,
		Disabled:      budget.Disabled,
		Status:        status,
	}
}

// Summary lists per-tenant totals for the period, highest spend first.
// period empty means the current month.
func (b *Budgets) Summary(period string) []TenantCost {
	if period == "" {
		period = b.now().UTC().Format("2006-01")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rows := make([]TenantCost, 0, len(b.spend))
	for key, total := range b.spend {
		if key.period != period {
			continue
		}
		rows = append(rows, TenantCost{TenantID: key.tenantID, Period: key.period, CostUSD: total})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CostUSD > rows[j].CostUSD })
	return rows
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
