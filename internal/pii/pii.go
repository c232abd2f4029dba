// Package pii detects and redacts sensitive strings before any prompt
// leaves the gateway. Detection runs an ordered pattern table; earlier
// categories are redacted before later ones are matched, so offsets always
// reference the buffer as it was when the category ran.
package pii

import (
	"fmt"
	"regexp"
)

// Entity is a single detected span. Start and End index the buffer the
// category matched against (prior categories already redacted).
type Entity struct {
	Type        string `json:"type"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	ValueLength int    `json:"value_length"`
	Critical    bool   `json:"critical"`
}

// Result is the outcome of one Analyze call.
type Result struct {
	HasPII       bool     `json:"has_pii"`
	HasCritical  bool     `json:"has_critical_pii"`
	Entities     []Entity `json:"entities"`
	RedactedText string   `json:"redacted_text"`
	OriginalText string   `json:"original_text"`
}

type pattern struct {
	name     string
	re       *regexp.Regexp
	critical bool
}

// patternTable is ordered; order matters because each category rewrites the
// buffer the next one scans. Critical categories may abort a request at the
// policy layer.
var patternTable = []struct {
	name     string
	expr     string
	critical bool
}{
	{"CREDIT_CARD", `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`, true},
	{"API_KEY", `\b(?:sk-[a-zA-Z0-9]{32,}|sk-ant-[a-zA-Z0-9\-]{50,}|AIza[0-9A-Za-z\-_]{35})\b`, true},
	{"AWS_KEY", `\b(?:AKIA|AIPA|ABIA|ACCA)[0-9A-Z]{16}\b`, true},
	{"EMAIL_ADDRESS", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Z|a-z]{2,}\b`, false},
	{"PHONE_NUMBER", `\b(?:\+?55\s?)?(?:\(?\d{2}\)?\s?)?(?:9\s?)?\d{4}[\s\-]?\d{4}\b`, false},
	{"CPF", `\b\d{3}[\.\-]?\d{3}[\.\-]?\d{3}[\.\-]?\d{2}\b`, false},
	{"CNPJ", `\b\d{2}[\.\-]?\d{3}[\.\-]?\d{3}[\./]?\d{4}[\.\-]?\d{2}\b`, false},
	{"SSN", `\b\d{3}[\-]?\d{2}[\-]?\d{4}\b`, false},
	{"IP_ADDRESS", `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`, false},
	{"IBAN", `\b[A-Z]{2}[0-9]{2}[A-Z0-9]{4}[0-9]{7}(?:[A-Z0-9]?){0,16}\b`, false},
	{"PASSPORT", `\b[A-Z]{1,2}[0-9]{6,9}\b`, false},
}

// Detector scans text against the compiled pattern table. It is stateless
// and safe for concurrent use.
type Detector struct {
	patterns []pattern
}

// NewDetector compiles the pattern table. Matching is case-insensitive.
func NewDetector() *Detector {
	d := &Detector{patterns: make([]pattern, 0, len(patternTable))}
	for _, p := range patternTable {
		d.patterns = append(d.patterns, pattern{
			name:     p.name,
			re:       regexp.MustCompile(`(?i)` + p.expr),
			critical: p.critical,
		})
	}
	return d
}

// Analyze scans text, returning all detected entities and a redacted copy
// where each match is replaced by its bracketed category name. Empty input
// yields no entities.
func (d *Detector) Analyze(text string) Result {
	var entities []Entity
	redacted := text
	hasCritical := false

	for _, p := range d.patterns {
		for _, loc := range p.re.FindAllStringIndex(redacted, -1) {
			entities = append(entities, Entity{
				Type:        p.name,
				Start:       loc[0],
				End:         loc[1],
				ValueLength: loc[1] - loc[0],
				Critical:    p.critical,
			})
			if p.critical {
				hasCritical = true
			}
		}
		redacted = p.re.ReplaceAllLiteralString(redacted, fmt.Sprintf("[%s]", p.name))
	}

	return Result{
		HasPII:       len(entities) > 0,
		HasCritical:  hasCritical,
		Entities:     entities,
		RedactedText: redacted,
		OriginalText: text,
	}
}

// ShouldBlock reports whether text contains a critical category. Blocking is
// a policy-layer decision; orchestration itself only records the flag.
func (d *Detector) ShouldBlock(text string) bool {
	return d.Analyze(text).HasCritical
}
