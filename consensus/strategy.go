package consensus

import (
	"encoding/json"
	"fmt"
)

// Strategy selects how votes are reduced to a decision.
type Strategy string

const (
	// StrategyMajority picks the most frequent decision.
	StrategyMajority Strategy = "majority"
	// StrategyWeighted picks the decision with the largest confidence mass.
	StrategyWeighted Strategy = "weighted"
	// StrategyUnanimous requires identical decisions and enough confidence.
	StrategyUnanimous Strategy = "unanimous"
)

// holdDecision is returned when a unanimous round fails.
func holdDecision() map[string]any {
	return map[string]any{"action": "HOLD", "reason": "No unanimous consensus"}
}

// group collects the votes sharing one canonical decision.
type group struct {
	key      string
	decision any
	votes    []Vote
	weight   float64
}

func (g *group) avgConfidence() float64 {
	if len(g.votes) == 0 {
		return 0
	}
	return g.weight / float64(len(g.votes))
}

// canonicalize re-encodes v through a generic JSON value. Map keys come out
// sorted, so struct and map forms of the same decision compare equal.
func canonicalize(v any) (string, any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v), v
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw), v
	}
	key, err := json.Marshal(generic)
	if err != nil {
		return string(raw), generic
	}
	return string(key), generic
}

// groupVotes groups votes by canonical decision in first-seen order.
func groupVotes(votes []Vote) []*group {
	var groups []*group
	index := make(map[string]*group)
	for _, v := range votes {
		key, decision := canonicalize(v.Vote)
		g, ok := index[key]
		if !ok {
			g = &group{key: key, decision: decision}
			index[key] = g
			groups = append(groups, g)
		}
		g.votes = append(g.votes, v)
		g.weight += v.Confidence
	}
	return groups
}

// reduce applies strategy to a non-empty vote set.
func reduce(strategy Strategy, votes []Vote, requiredConfidence float64) Response {
	switch strategy {
	case StrategyMajority:
		return majority(votes)
	case StrategyUnanimous:
		return unanimous(votes, requiredConfidence)
	default:
		return weighted(votes)
	}
}

func majority(votes []Vote) Response {
	var best *group
	for _, g := range groupVotes(votes) {
		if best == nil || len(g.votes) > len(best.votes) {
			best = g
		}
	}
	return Response{
		Decision:   best.decision,
		Confidence: best.avgConfidence(),
		Agreement:  float64(len(best.votes)) / float64(len(votes)),
		Votes:      votes,
	}
}

// weighted scores each decision by its share of the total confidence. When
// every vote has zero confidence the share of votes is used instead.
func weighted(votes []Vote) Response {
	var total float64
	for _, v := range votes {
		total += v.Confidence
	}

	var (
		best      *group
		bestScore float64
	)
	for _, g := range groupVotes(votes) {
		score := float64(len(g.votes)) / float64(len(votes))
		if total > 0 {
			score = g.weight / total
		}
		if best == nil || score > bestScore {
			best, bestScore = g, score
		}
	}
	return Response{
		Decision:   best.decision,
		Confidence: best.avgConfidence(),
		Agreement:  bestScore,
		Votes:      votes,
	}
}

func unanimous(votes []Vote, requiredConfidence float64) Response {
	groups := groupVotes(votes)

	var total float64
	for _, v := range votes {
		total += v.Confidence
	}
	avg := total / float64(len(votes))

	if len(groups) == 1 && avg >= requiredConfidence {
		return Response{Decision: groups[0].decision, Confidence: avg, Agreement: 1, Votes: votes}
	}
	return Response{Decision: holdDecision(), Confidence: 0, Agreement: 0, Votes: votes}
}
