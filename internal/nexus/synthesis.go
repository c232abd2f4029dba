package nexus

import (
	"fmt"
	"strings"

	"github.com/nexusai/nexus/internal/router"
)

// DefaultConsensusThreshold marks the agreement level below which the final
// answer carries a synthesis disclosure header.
const DefaultConsensusThreshold = 0.75

// consensusScore maps word-set agreement across responses into [0.5, 1.0].
// A single response scores a full 1.0.
func consensusScore(responses []string) float64 {
	if len(responses) <= 1 {
		return 1.0
	}

	sets := make([]map[string]struct{}, len(responses))
	for i, r := range responses {
		sets[i] = wordSet(r)
	}

	union := make(map[string]struct{})
	for _, s := range sets {
		for w := range s {
			union[w] = struct{}{}
		}
	}

	intersection := 0
	for w := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[w]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			intersection++
		}
	}

	denom := len(union)
	if denom < 1 {
		denom = 1
	}
	jaccard := float64(intersection) / float64(denom)

	score := 0.5 + 0.5*jaccard
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

// pickPrimary chooses the answer the final response is built from. Latency
// wins by default; code and reasoning modes prefer the longest answer, with
// token count as the proxy for thoroughness.
func pickPrimary(valid []ModelResult, mode router.Mode) ModelResult {
	primary := valid[0]
	if mode == router.ModeCode || mode == router.ModeReasoning {
		for _, r := range valid[1:] {
			if r.TokensUsed > primary.TokensUsed {
				primary = r
			}
		}
		return primary
	}
	for _, r := range valid[1:] {
		if r.LatencyMs < primary.LatencyMs {
			primary = r
		}
	}
	return primary
}

// synthesize combines the valid results into the final response. When
// agreement falls under the threshold and more than one model answered, the
// response is prefixed with a disclosure header.
func synthesize(valid []ModelResult, mode router.Mode, threshold float64) (consensus float64, synthesized bool, final string) {
	responses := make([]string, len(valid))
	for i, r := range valid {
		responses[i] = r.Response
	}
	consensus = consensusScore(responses)

	primary := pickPrimary(valid, mode)
	synthesized = consensus < threshold && len(valid) >= 2
	if synthesized {
		final = fmt.Sprintf("[NEXUS Synthesized — %d models, consensus %.0f%%]\n\n%s",
			len(valid), consensus*100, primary.Response)
	} else {
		final = primary.Response
	}
	return consensus, synthesized, final
}
