// Package policy gates requests against a static per-plan policy document:
// model allow-lists, a per-call token cap, and a topic block-list.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decision is the outcome of an Enforce call. Reason is "ok" when allowed;
// otherwise one of model_not_allowed, token_limit_exceeded:{n}>{cap}, or
// blocked_topic:{topic}.
type Decision struct {
	Allowed bool
	Reason  string
}

// DeniedError wraps a rejecting Decision for callers that surface policy
// refusals as errors.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy denied: %s", e.Reason)
}

// Document is the on-disk shape of the policy file.
type Document struct {
	Policies Policy `yaml:"policies"`
}

// Policy holds the enforced rules. Loaded once at startup; read-only after.
type Policy struct {
	AllowedModelsPerTenant map[string][]string `yaml:"allowed_models_per_tenant"`
	MaxTokensPerCall       int                 `yaml:"max_tokens_per_call"`
	DisallowedTopics       []string            `yaml:"disallowed_topics"`
	RequiredPIIScan        bool                `yaml:"required_pii_scan"`
}

// Default returns the policy used when no document is configured: a 4096
// token cap, mandatory PII scanning, and no plans or blocked topics.
func Default() Policy {
	return Policy{
		AllowedModelsPerTenant: map[string][]string{},
		MaxTokensPerCall:       4096,
		RequiredPIIScan:        true,
	}
}

// Engine evaluates requests against a loaded Policy. Safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine wraps a Policy in an Engine.
func NewEngine(p Policy) *Engine {
	if p.MaxTokensPerCall <= 0 {
		p.MaxTokensPerCall = 4096
	}
	return &Engine{policy: p}
}

// Load reads and parses a YAML policy document.
func Load(path string) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return NewEngine(doc.Policies), nil
}

// Policy returns the loaded policy document.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Enforce checks a request in gate order: model allow-list, token cap, topic
// block-list. The first failing gate decides the reason.
func (e *Engine) Enforce(plan, model, prompt string, tokens int) Decision {
	if !e.modelAllowed(plan, model) {
		return Decision{Allowed: false, Reason: "model_not_allowed"}
	}
	if d := e.validateTokens(tokens); !d.Allowed {
		return d
	}
	if d := e.validateTopic(prompt); !d.Allowed {
		return d
	}
	return Decision{Allowed: true, Reason: "ok"}
}

func (e *Engine) modelAllowed(plan, model string) bool {
	for _, m := range e.policy.AllowedModelsPerTenant[plan] {
		if m == model {
			return true
		}
	}
	return false
}

func (e *Engine) validateTokens(tokens int) Decision {
	if tokens > e.policy.MaxTokensPerCall {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("token_limit_exceeded:%d>%d", tokens, e.policy.MaxTokensPerCall),
		}
	}
	return Decision{Allowed: true, Reason: "ok"}
}

func (e *Engine) validateTopic(prompt string) Decision {
	lower := strings.ToLower(prompt)
	for _, topic := range e.policy.DisallowedTopics {
		spaced := strings.ReplaceAll(topic, "-", " ")
		if strings.Contains(lower, spaced) || strings.Contains(lower, topic) {
			return Decision{Allowed: false, Reason: "blocked_topic:" + topic}
		}
	}
	return Decision{Allowed: true, Reason: "ok"}
}
