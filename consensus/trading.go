package consensus

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TradePredictionCapability marks agents that vote on trades.
const TradePredictionCapability = "trade-prediction"

// RiskLevel grades a trading decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TradePrediction is a consensus decision on one symbol.
type TradePrediction struct {
	Symbol     string             `json:"symbol"`
	Action     string             `json:"action"`
	Confidence float64            `json:"confidence"`
	Reasoning  string             `json:"reasoning"`
	RiskLevel  RiskLevel          `json:"riskLevel"`
	Metadata   PredictionMetadata `json:"metadata"`
}

// PredictionMetadata records who produced a prediction and how long it took.
type PredictionMetadata struct {
	Agent         string        `json:"agent"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// TradingOptions configures TradingConsensus.
type TradingOptions struct {
	RequiredConfidence float64
	Timeout            time.Duration
}

// TradingConsensus asks every trade-prediction agent about symbol and
// returns the weighted decision as a TradePrediction.
func (o *Orchestrator) TradingConsensus(ctx context.Context, symbol string, marketContext any, optFns ...func(o *TradingOptions)) (*TradePrediction, *Response, error) {
	opts := TradingOptions{RequiredConfidence: 0.75, Timeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	agents := o.agents.ByCapability(TradePredictionCapability)
	if len(agents) == 0 {
		return nil, nil, fmt.Errorf("%w: no prediction agents", ErrNoParticipants)
	}
	participants := make([]string, 0, len(agents))
	for _, a := range agents {
		participants = append(participants, a.Name())
	}

	resp, err := o.Reach(ctx, Request{
		Question:           fmt.Sprintf("What is the trading prediction for %s?", symbol),
		Context:            marketContext,
		RequiredConfidence: opts.RequiredConfidence,
		Strategy:           StrategyWeighted,
		Participants:       participants,
		Timeout:            opts.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	action := "HOLD"
	if d, ok := resp.Decision.(map[string]any); ok {
		if a, ok := d["action"].(string); ok && a != "" {
			action = a
		}
	}

	return &TradePrediction{
		Symbol:     symbol,
		Action:     action,
		Confidence: resp.Confidence,
		Reasoning:  AggregateReasoning(resp.Votes),
		RiskLevel:  Risk(resp.Confidence, resp.Agreement),
		Metadata: PredictionMetadata{
			Agent:         "consensus-orchestrator",
			ExecutionTime: resp.Metadata.Duration,
		},
	}, resp, nil
}

// AggregateReasoning joins the reasoning of every vote, one line per agent.
func AggregateReasoning(votes []Vote) string {
	var sb strings.Builder
	sb.WriteString("Multi-agent consensus:")
	for _, v := range votes {
		fmt.Fprintf(&sb, "\n%s: %s", v.Agent, v.Reasoning)
	}
	return sb.String()
}

// Risk grades a decision by its confidence and agreement.
func Risk(confidence, agreement float64) RiskLevel {
	switch {
	case confidence > 0.8 && agreement > 0.8:
		return RiskLow
	case confidence > 0.6 && agreement > 0.6:
		return RiskMedium
	default:
		return RiskHigh
	}
}
