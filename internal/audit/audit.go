// Package audit keeps a tamper-evident trail of inference activity. Every
// entry is hashed over a canonical JSON body and chained to its predecessor,
// so any retroactive mutation is detectable by a verifier.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the prev_hash of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one audit record. CreatedAt is an RFC3339Nano UTC string so the
// canonical form is stable across serialization round-trips.
type Entry struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	ActorID    string         `json:"actor_id,omitempty"`
	Event      string         `json:"event"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  string         `json:"created_at"`
	PrevHash   string         `json:"prev_hash"`
	EntryHash  string         `json:"entry_hash"`
}

// canonicalJSON renders every field except entry_hash as compact JSON with
// lexicographically sorted keys at every level. This string is the sole input
// to the entry hash; any divergence here breaks chain verification.
func canonicalJSON(e Entry) ([]byte, error) {
	body := map[string]any{
		"id":          e.ID,
		"tenant_id":   e.TenantID,
		"actor_id":    e.ActorID,
		"event":       e.Event,
		"resource":    e.Resource,
		"resource_id": e.ResourceID,
		"details":     e.Details,
		"ip_address":  e.IPAddress,
		"created_at":  e.CreatedAt,
		"prev_hash":   e.PrevHash,
	}
	return json.Marshal(body)
}

// ComputeHash returns the hex SHA-256 of the entry's canonical body.
func ComputeHash(e Entry) (string, error) {
	canonical, err := canonicalJSON(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashPrompt returns the hex SHA-256 of a prompt. Audit records carry this
// instead of the prompt itself.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Log appends hash-chained entries to a sink. Appends are serialized by a
// mutex held only for the local hash computation and the sink write; the
// chain head lives here, never in the sink.
type Log struct {
	mu       sync.Mutex
	lastHash string
	sink     Sink

	// now is used for testing; defaults to time.Now.
	now func() time.Time
}

// NewLog starts a chain at the genesis hash.
func NewLog(sink Sink) *Log {
	if sink == nil {
		sink = NewMemorySink()
	}
	return &Log{lastHash: GenesisHash, sink: sink, now: time.Now}
}

// LastHash returns the current chain head.
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Append links the entry to the chain head, hashes it, and persists it.
// A sink failure is logged and the chain still advances: the caller's request
// must never fail because the trail could not be written.
func (l *Log) Append(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = l.now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.Lock()
	e.PrevHash = l.lastHash
	hash, err := ComputeHash(e)
	if err != nil {
		l.mu.Unlock()
		return "", err
	}
	e.EntryHash = hash
	l.lastHash = hash
	sinkErr := l.sink.Append(ctx, e)
	l.mu.Unlock()

	if sinkErr != nil {
		slog.Error("audit sink append failed",
			slog.String("entry_id", e.ID),
			slog.String("error", sinkErr.Error()),
		)
	} else {
		slog.Debug("audit appended",
			slog.String("entry_id", e.ID),
			slog.String("event", e.Event),
		)
	}
	return e.ID, nil
}

// InferenceRecord is the audit payload for one completed orchestration.
type InferenceRecord struct {
	TenantID     string
	ActorID      string
	RequestID    string
	Model        string
	Provider     string
	LatencyMs    float64
	CostUSD      float64
	SafetyPassed bool
	PIIDetected  bool
	PromptHash   string
	InputTokens  int
	OutputTokens int
	StatusCode   int
	ErrorMessage string
}

// LogInference appends the standard inference.completed entry.
func (l *Log) LogInference(ctx context.Context, r InferenceRecord) (string, error) {
	return l.Append(ctx, Entry{
		TenantID:   r.TenantID,
		ActorID:    r.ActorID,
		Event:      "inference.completed",
		Resource:   "inference",
		ResourceID: r.RequestID,
		Details: map[string]any{
			"model":         r.Model,
			"provider":      r.Provider,
			"latency_ms":    r.LatencyMs,
			"cost_usd":      r.CostUSD,
			"safety_passed": r.SafetyPassed,
			"pii_detected":  r.PIIDetected,
			"prompt_hash":   r.PromptHash,
			"input_tokens":  r.InputTokens,
			"output_tokens": r.OutputTokens,
			"status_code":   r.StatusCode,
			"error_message": r.ErrorMessage,
		},
	})
}

// Verify walks a chain snapshot and returns (true, -1) when intact, or
// (false, i) for the first entry whose hash or prev link fails. Tampering is
// diagnosed here, never raised on append.
func Verify(entries []Entry) (bool, int) {
	prev := GenesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return false, i
		}
		expected, err := ComputeHash(e)
		if err != nil || expected != e.EntryHash {
			return false, i
		}
		prev = e.EntryHash
	}
	return true, -1
}
