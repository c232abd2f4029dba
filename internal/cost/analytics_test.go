package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector()
	now := time.Now().UTC()
	c.Record(Snapshot{Timestamp: now, TenantID: "t1", ModelID: "gpt-4o", LatencyMs: 100, CostUSD: 0.1, Success: true, InputTokens: 10, OutputTokens: 20})
	c.Record(Snapshot{Timestamp: now, TenantID: "t1", ModelID: "gpt-4o", LatencyMs: 300, CostUSD: 0.2, Success: false})
	c.Record(Snapshot{Timestamp: now, TenantID: "t2", ModelID: "deepseek-chat", LatencyMs: 50, CostUSD: 0.01, Success: true})

	byModel := c.SummaryByModel()
	oneMin := byModel["1m"]
	assert.Len(t, oneMin, 2)

	var gpt *Aggregate
	for i := range oneMin {
		if oneMin[i].ModelID == "gpt-4o" {
			gpt = &oneMin[i]
		}
	}
	if assert.NotNil(t, gpt) {
		assert.Equal(t, 2, gpt.RequestCount)
		assert.Equal(t, 1, gpt.ErrorCount)
		assert.InDelta(t, 0.5, gpt.ErrorRate, 1e-9)
		assert.InDelta(t, 200, gpt.AvgLatencyMs, 1e-9)
		assert.InDelta(t, 0.3, gpt.TotalCostUSD, 1e-9)
		assert.Equal(t, 30, gpt.TotalTokens)
	}

	global := c.Global()
	assert.NotEmpty(t, global)
	assert.Equal(t, 3, global[0].RequestCount)
}

func TestCollectorPrunesOldSnapshots(t *testing.T) {
	c := NewCollector()
	c.Record(Snapshot{Timestamp: time.Now().Add(-48 * time.Hour), TenantID: "t1"})
	c.Record(Snapshot{TenantID: "t1"})

	c.Prune()
	assert.Equal(t, 1, c.SnapshotCount())
}
