package audit

import (
	"context"
	"maps"
	"sync"
)

// Sink persists appended entries. Implementations are insert-only; the Log
// never updates or deletes what it wrote.
type Sink interface {
	// Append stores one entry.
	Append(ctx context.Context, e Entry) error
	// List returns entries in append order, oldest first. Empty tenantID
	// matches all tenants; limit <= 0 means no limit.
	List(ctx context.Context, tenantID string, limit int) ([]Entry, error)
}

// MemorySink keeps the trail in memory. Used for tests and for deployments
// that export the chain elsewhere.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores a copy of the entry. The Details map is cloned so later
// caller mutations cannot reach into the stored chain.
func (s *MemorySink) Append(_ context.Context, e Entry) error {
	e.Details = maps.Clone(e.Details)
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// List returns matching entries oldest first. Each entry's Details map is
// cloned; mutating a returned entry never corrupts the stored chain.
func (s *MemorySink) List(_ context.Context, tenantID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		e.Details = maps.Clone(e.Details)
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
