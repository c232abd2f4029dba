// Package nexus is the orchestration engine: it redacts a prompt, routes it
// to a set of models, fans the call out in parallel, measures agreement
// across the answers, and returns one synthesized result with cost and audit
// recording handled off the request path.
package nexus

import (
	"errors"
	"fmt"

	"github.com/nexusai/nexus/internal/pii"
	"github.com/nexusai/nexus/internal/providers"
	"github.com/nexusai/nexus/internal/router"
)

// Request bounds accepted by Validate.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 32768

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

var (
	// ErrNoModels means routing produced an empty candidate list.
	ErrNoModels = errors.New("no models available for request")
	// ErrAllProvidersFailed means every fan-out call errored.
	ErrAllProvidersFailed = errors.New("all model calls failed")
)

// ValidationError reports a rejected request field. These are caller errors,
// surfaced as 4xx-class by outer layers.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Request is one orchestration call. Use NewRequest for the standard
// temperature and token defaults; zero values are validated as given.
type Request struct {
	Prompt   string
	Mode     router.Mode
	TenantID string
	ActorID  string

	// Messages optionally carries prior conversation turns. When present it
	// must contain at least one user message.
	Messages []providers.Message

	// OverrideModels bypasses the router entirely.
	OverrideModels []string

	// MaxModels caps fan-out width; zero means the engine default.
	MaxModels int

	System      string
	Temperature float64
	MaxTokens   int
}

// NewRequest builds a Request with the default temperature and token budget.
func NewRequest(prompt string, mode router.Mode, tenantID string) Request {
	return Request{
		Prompt:      prompt,
		Mode:        mode,
		TenantID:    tenantID,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Validate checks request bounds. The prompt may be empty only when override
// models are given; routing needs text to classify.
func (r Request) Validate() error {
	if r.Prompt == "" && len(r.OverrideModels) == 0 {
		return &ValidationError{Field: "prompt", Msg: "must not be empty"}
	}
	if len(r.Messages) > 0 && !hasUserMessage(r.Messages) {
		return &ValidationError{Field: "messages", Msg: "must contain a user message"}
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return &ValidationError{Field: "temperature", Msg: fmt.Sprintf("must be in [%.1f, %.1f]", MinTemperature, MaxTemperature)}
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		return &ValidationError{Field: "max_tokens", Msg: fmt.Sprintf("must be in [%d, %d]", MinMaxTokens, MaxMaxTokens)}
	}
	if r.MaxModels < 0 {
		return &ValidationError{Field: "max_models", Msg: "must be >= 0"}
	}
	return nil
}

func hasUserMessage(msgs []providers.Message) bool {
	for _, m := range msgs {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

// ModelResult is the outcome of one attempted provider call. Err is non-empty
// exactly when the call failed; a failed call has an empty response and zero
// cost.
type ModelResult struct {
	ModelID      string  `json:"model_id"`
	Provider     string  `json:"provider"`
	Response     string  `json:"response"`
	LatencyMs    float64 `json:"latency_ms"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TokensUsed   int     `json:"tokens_used"`
	CostUSD      float64 `json:"cost_usd"`
	Err          string  `json:"error,omitempty"`
}

// OK reports whether the call produced a usable response.
func (m ModelResult) OK() bool { return m.Err == "" }

// Result is the synthesized outcome of an orchestration.
type Result struct {
	RequestID      string        `json:"request_id"`
	Mode           router.Mode   `json:"mode"`
	FinalResponse  string        `json:"final_response"`
	ModelsUsed     []ModelResult `json:"models_used"`
	ConsensusScore float64       `json:"consensus_score"`
	TotalLatencyMs float64       `json:"total_latency_ms"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	Synthesized    bool          `json:"synthesized"`
	SafetyPassed   bool          `json:"safety_passed"`
	PIIDetected    bool          `json:"pii_detected"`
	PIIEntities    []pii.Entity  `json:"pii_entities,omitempty"`
}
