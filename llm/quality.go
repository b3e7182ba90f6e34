package llm

import "strings"

var errorIndicators = []string{"error", "sorry", "cannot", "unable"}

// AssessQuality scores a response in [0,1] with simple heuristics: length
// bounds, apology or error wording and an unfinished ending.
func AssessQuality(response string) float64 {
	score := 1.0
	if len(response) < 50 {
		score -= 0.3
	}
	if len(response) > 10000 {
		score -= 0.2
	}
	lower := strings.ToLower(response)
	for _, w := range errorIndicators {
		if strings.Contains(lower, w) {
			score -= 0.4
			break
		}
	}
	trimmed := strings.TrimSpace(response)
	if !strings.HasSuffix(trimmed, ".") && !strings.HasSuffix(trimmed, "}") {
		score -= 0.2
	}
	return max(0, score)
}
