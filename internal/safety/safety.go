// Package safety screens prompts for injection and jailbreak attempts.
// The screens are advisory: orchestration records the verdict on the result
// and leaves enforcement to the policy layer.
package safety

import "strings"

// suspiciousPhrases mark prompt-injection attempts.
var suspiciousPhrases = []string{
	"ignore previous instructions",
	"exfiltrate",
	"system prompt",
}

// jailbreakCues mark attempts to disable model safety behavior.
var jailbreakCues = []string{
	"jailbreak",
	"bypass safety",
	"developer mode",
}

// DetectPromptInjection reports whether text contains a known injection phrase.
func DetectPromptInjection(text string) bool {
	return containsAny(text, suspiciousPhrases)
}

// IsJailbreakAttempt reports whether text contains a known jailbreak cue.
func IsJailbreakAttempt(text string) bool {
	return containsAny(text, jailbreakCues)
}

// Screen runs both checks and reports whether the prompt passes.
func Screen(text string) bool {
	return !DetectPromptInjection(text) && !IsJailbreakAttempt(text)
}

// ValidateOutputFields reports whether payload carries every required field.
func ValidateOutputFields(payload map[string]any, required []string) bool {
	for _, k := range required {
		if _, ok := payload[k]; !ok {
			return false
		}
	}
	return true
}

func containsAny(text string, phrases []string) bool {
	t := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
