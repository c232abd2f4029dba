// Package router selects models for a prompt from a fixed registry, keyed on
// detected task type, requested mode, and credential availability.
package router

import (
	"log/slog"

	"github.com/nexusai/nexus/internal/credstore"
)

// DefaultMaxModels bounds a selection when the caller passes no limit.
const DefaultMaxModels = 5

// Router picks candidate models deterministically: same registry, same
// credentials, same answer.
type Router struct {
	creds       credstore.Store
	development bool
}

// New builds a Router. In development mode every model counts as available
// regardless of credentials.
func New(creds credstore.Store, development bool) *Router {
	return &Router{creds: creds, development: development}
}

// SelectModels returns up to maxModels candidates for the prompt. Structured
// tasks (math, code, reasoning) prefer the task table unless the caller asked
// for fast mode; everything else routes by mode. Models whose provider is
// excluded or has no credential are filtered out.
func (r *Router) SelectModels(prompt string, mode Mode, maxModels int, excludeProviders []string) []string {
	if maxModels <= 0 {
		maxModels = DefaultMaxModels
	}

	task := DetectTask(prompt)
	var candidates []string
	if (task == TaskMath || task == TaskCode || task == TaskReasoning) && mode != ModeFast {
		candidates = taskModels[task]
	} else {
		if m, ok := modeModels[mode]; ok {
			candidates = m
		} else {
			candidates = modeModels[ModeChat]
		}
	}

	excluded := make(map[string]bool, len(excludeProviders))
	for _, p := range excludeProviders {
		excluded[p] = true
	}

	available := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if excluded[Provider(id)] {
			continue
		}
		if r.isAvailable(id) {
			available = append(available, id)
		}
	}

	if len(available) == 0 {
		if r.isAvailable("gpt-4o") {
			available = []string{"gpt-4o"}
		} else {
			available = []string{Registry[0].ID}
		}
	}

	selected := available
	if len(selected) > maxModels {
		selected = selected[:maxModels]
	}

	slog.Info("router selected",
		slog.String("task", string(task)),
		slog.String("mode", string(mode)),
		slog.Any("models", selected),
	)
	return selected
}

// isAvailable reports whether the model's provider has a credential. The
// development environment bypasses the check.
func (r *Router) isAvailable(modelID string) bool {
	if r.development {
		return true
	}
	return r.creds.Get(Provider(modelID)) != ""
}
