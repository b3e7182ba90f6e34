package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetaper/agentcore/agent"
	"github.com/tradetaper/agentcore/bus"
	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/internal/testutil"
	"github.com/tradetaper/agentcore/registry"
)

func buy() map[string]any  { return map[string]any{"action": "BUY"} }
func sell() map[string]any { return map[string]any{"action": "SELL"} }

type voter struct {
	name string
	exec core.Executor
}

func setup(t *testing.T, voters ...voter) (*Orchestrator, *registry.Registry, []string) {
	t.Helper()
	reg := registry.New()
	names := make([]string, 0, len(voters))
	for _, v := range voters {
		cfg := testutil.NewConfigBuilder(v.name).Capability(TradePredictionCapability, 0.9).Build()
		require.NoError(t, reg.Register(agent.New(cfg, v.exec)))
		names = append(names, v.name)
	}
	return New(reg), reg, names
}

func TestReach_Majority(t *testing.T) {
	o, _, names := setup(t,
		voter{"a1", testutil.Vote(buy(), 0.8, "trend")},
		voter{"a2", testutil.Vote(buy(), 0.9, "volume")},
		voter{"a3", testutil.Vote(sell(), 0.6, "overbought")},
	)

	resp, err := o.Reach(context.Background(), Request{Question: "BTC?", Strategy: StrategyMajority, Participants: names, Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, buy(), resp.Decision)
	assert.InDelta(t, 2.0/3.0, resp.Agreement, 1e-9)
	assert.InDelta(t, 0.85, resp.Confidence, 1e-9)
	assert.Len(t, resp.Votes, 3)
	assert.Equal(t, 3, resp.Metadata.ParticipantCount)
	assert.Positive(t, resp.Metadata.Duration)
}

type decision struct {
	Action string `json:"action"`
}

func TestReach_CanonicalVoteEquality(t *testing.T) {
	o, _, names := setup(t,
		voter{"a1", testutil.Vote(decision{Action: "BUY"}, 0.8, "struct form")},
		voter{"a2", testutil.Vote(buy(), 0.8, "map form")},
		voter{"a3", testutil.Vote(sell(), 0.9, "dissent")},
	)

	resp, err := o.Reach(context.Background(), Request{Strategy: StrategyMajority, Participants: names, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, buy(), resp.Decision)
	assert.InDelta(t, 2.0/3.0, resp.Agreement, 1e-9)
}

func TestReach_WeightedIsDefault(t *testing.T) {
	o, _, names := setup(t,
		voter{"a1", testutil.Vote(buy(), 0.9, "")},
		voter{"a2", testutil.Vote(sell(), 0.5, "")},
		voter{"a3", testutil.Vote(sell(), 0.5, "")},
	)

	resp, err := o.Reach(context.Background(), Request{Participants: names, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, sell(), resp.Decision)
	assert.InDelta(t, 1.0/1.9, resp.Agreement, 1e-9)
	assert.InDelta(t, 0.5, resp.Confidence, 1e-9)
}

func TestReach_TieGoesToFirstSeen(t *testing.T) {
	o, _, names := setup(t,
		voter{"a1", testutil.Vote(sell(), 0.7, "")},
		voter{"a2", testutil.Vote(buy(), 0.7, "")},
	)

	for _, s := range []Strategy{StrategyMajority, StrategyWeighted} {
		resp, err := o.Reach(context.Background(), Request{Strategy: s, Participants: names, Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, sell(), resp.Decision, s)
	}
}

func TestWeighted_ZeroConfidenceFallsBackToCounts(t *testing.T) {
	resp := weighted([]Vote{
		{Agent: "a1", Vote: "BUY"},
		{Agent: "a2", Vote: "SELL"},
		{Agent: "a3", Vote: "SELL"},
	})
	assert.Equal(t, "SELL", resp.Decision)
	assert.InDelta(t, 2.0/3.0, resp.Agreement, 1e-9)
	assert.Zero(t, resp.Confidence)
}

func TestReach_Unanimous(t *testing.T) {
	t.Run("agreement", func(t *testing.T) {
		o, _, names := setup(t,
			voter{"a1", testutil.Vote(buy(), 0.8, "")},
			voter{"a2", testutil.Vote(buy(), 0.9, "")},
		)
		resp, err := o.Reach(context.Background(), Request{Strategy: StrategyUnanimous, RequiredConfidence: 0.75, Participants: names, Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, buy(), resp.Decision)
		assert.Equal(t, 1.0, resp.Agreement)
		assert.InDelta(t, 0.85, resp.Confidence, 1e-9)
	})

	t.Run("disagreement holds", func(t *testing.T) {
		o, _, names := setup(t,
			voter{"a1", testutil.Vote(buy(), 0.9, "")},
			voter{"a2", testutil.Vote(sell(), 0.9, "")},
		)
		resp, err := o.Reach(context.Background(), Request{Strategy: StrategyUnanimous, RequiredConfidence: 0.5, Participants: names, Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"action": "HOLD", "reason": "No unanimous consensus"}, resp.Decision)
		assert.Zero(t, resp.Confidence)
		assert.Zero(t, resp.Agreement)
		assert.Len(t, resp.Votes, 2)
	})

	t.Run("low confidence holds", func(t *testing.T) {
		o, _, names := setup(t,
			voter{"a1", testutil.Vote(buy(), 0.6, "")},
			voter{"a2", testutil.Vote(buy(), 0.7, "")},
		)
		resp, err := o.Reach(context.Background(), Request{Strategy: StrategyUnanimous, RequiredConfidence: 0.75, Participants: names, Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, "HOLD", resp.Decision.(map[string]any)["action"])
	})
}

func TestReach_PartialVotesOnTimeout(t *testing.T) {
	o, _, names := setup(t,
		voter{"fast", testutil.Vote(buy(), 0.8, "quick")},
		voter{"slow", testutil.Delay(time.Second, testutil.Vote(sell(), 0.9, "late"))},
	)

	resp, err := o.Reach(context.Background(), Request{Participants: names, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, buy(), resp.Decision)
	require.Len(t, resp.Votes, 1)
	assert.Equal(t, "fast", resp.Votes[0].Agent)
	assert.Equal(t, 1, resp.Metadata.ParticipantCount)
	assert.Less(t, resp.Metadata.Duration, time.Second)
}

func TestReach_TimeoutWithoutVotes(t *testing.T) {
	gate := testutil.NewGate()
	defer gate.Release()
	o, _, names := setup(t, voter{"a1", gate}, voter{"a2", gate})

	_, err := o.Reach(context.Background(), Request{Participants: names, Timeout: 30 * time.Millisecond})
	assert.ErrorIs(t, err, ErrConsensusTimeout)
}

func TestReach_NoVotes(t *testing.T) {
	o, _, names := setup(t,
		voter{"a1", testutil.Fail("boom")},
		voter{"a2", testutil.Fail("boom")},
	)

	_, err := o.Reach(context.Background(), Request{Participants: names, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoVotes)
}

func TestReach_SkipsUnavailableParticipants(t *testing.T) {
	o, reg, _ := setup(t,
		voter{"busy", testutil.Vote(sell(), 0.9, "")},
		voter{"free", testutil.Vote(buy(), 0.6, "")},
	)
	busy, ok := reg.Get("busy")
	require.True(t, ok)
	require.NoError(t, busy.AssignTask(core.NewTask("other", nil)))

	resp, err := o.Reach(context.Background(), Request{Participants: []string{"ghost", "busy", "free"}, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, buy(), resp.Decision)
	assert.Len(t, resp.Votes, 1)

	_, err = o.Reach(context.Background(), Request{Participants: []string{"ghost", "busy"}, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestReach_VoteExtraction(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []*core.Task
	)
	bare := core.ExecutorFunc(func(_ context.Context, task *core.Task) (*core.Response, error) {
		mu.Lock()
		seen = append(seen, task)
		mu.Unlock()
		return &core.Response{Success: true, Data: map[string]any{"signal": "long"}}, nil
	})
	o, _, names := setup(t, voter{"a1", bare})

	resp, err := o.Reach(context.Background(), Request{
		Question:     "What now?",
		Context:      map[string]any{"price": 10},
		Participants: names,
		Timeout:      time.Second,
	})
	require.NoError(t, err)
	require.Len(t, resp.Votes, 1)

	v := resp.Votes[0]
	assert.Equal(t, map[string]any{"signal": "long"}, v.Vote)
	assert.Equal(t, 0.7, v.Confidence)
	assert.Equal(t, "No reasoning provided", v.Reasoning)

	require.Len(t, seen, 1)
	assert.Equal(t, agent.TaskTypeConsensusVote, seen[0].Type)
	assert.Equal(t, core.PriorityHigh, seen[0].Priority)
	assert.Equal(t, "What now?", seen[0].Data["question"])
	assert.Equal(t, map[string]any{"price": 10}, seen[0].Data["context"])
	assert.Equal(t, "a1", seen[0].AssignedAgent)
}

func TestReach_PublishesDecision(t *testing.T) {
	b := bus.New()
	reg := registry.New()
	require.NoError(t, reg.Register(agent.New(testutil.NewConfigBuilder("a1").Build(), testutil.Vote(buy(), 0.9, "ok"))))
	o := New(reg, func(o *Options) { o.Publisher = b })

	var got []core.Message
	b.Subscribe(DecisionChannel, func(_ context.Context, msg core.Message) error {
		got = append(got, msg)
		return nil
	})

	resp, err := o.Reach(context.Background(), Request{Question: "q", Participants: []string{"a1"}, Timeout: time.Second})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, core.MessageTypeNotification, got[0].Type)
	assert.Equal(t, core.PriorityHigh, got[0].Priority)
	assert.Same(t, resp, got[0].Data.(map[string]any)["response"])
}

func TestTradingConsensus(t *testing.T) {
	o, reg, _ := setup(t,
		voter{"a1", testutil.Vote(buy(), 0.9, "breakout")},
		voter{"a2", testutil.Vote(buy(), 0.85, "volume")},
		voter{"a3", testutil.Vote(sell(), 0.3, "divergence")},
	)
	require.NoError(t, reg.Register(agent.New(testutil.NewConfigBuilder("journal").Capability("journaling", 1).Build(), testutil.Fail("never asked"))))

	pred, resp, err := o.TradingConsensus(context.Background(), "BTCUSD", map[string]any{"tf": "1h"}, func(o *TradingOptions) {
		o.Timeout = time.Second
	})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSD", pred.Symbol)
	assert.Equal(t, "BUY", pred.Action)
	assert.InDelta(t, 0.875, pred.Confidence, 1e-9)
	assert.InDelta(t, 1.75/2.05, resp.Agreement, 1e-9)
	assert.Equal(t, RiskLow, pred.RiskLevel)
	assert.Equal(t, "Multi-agent consensus:\na1: breakout\na2: volume\na3: divergence", pred.Reasoning)
	assert.Equal(t, "consensus-orchestrator", pred.Metadata.Agent)
	assert.Len(t, resp.Votes, 3)
}

func TestTradingConsensus_NonObjectDecisionHolds(t *testing.T) {
	o, _, _ := setup(t, voter{"a1", testutil.Vote("BUY", 0.9, "")})

	pred, _, err := o.TradingConsensus(context.Background(), "ETH", nil)
	require.NoError(t, err)
	assert.Equal(t, "HOLD", pred.Action)
}

func TestTradingConsensus_NoAgents(t *testing.T) {
	o := New(registry.New())
	_, _, err := o.TradingConsensus(context.Background(), "BTC", nil)
	assert.ErrorIs(t, err, ErrNoParticipants)
}

func TestRisk(t *testing.T) {
	assert.Equal(t, RiskLow, Risk(0.81, 0.81))
	assert.Equal(t, RiskMedium, Risk(0.8, 0.9))
	assert.Equal(t, RiskMedium, Risk(0.61, 0.61))
	assert.Equal(t, RiskHigh, Risk(0.6, 0.9))
	assert.Equal(t, RiskHigh, Risk(0.9, 0.5))
}

func TestReduce(t *testing.T) {
	votes := []Vote{
		{Agent: "a1", Vote: "A", Confidence: 0.9},
		{Agent: "a2", Vote: "A", Confidence: 0.8},
		{Agent: "a3", Vote: "B", Confidence: 0.95},
	}

	m := reduce(StrategyMajority, votes, 0)
	assert.Equal(t, "A", m.Decision)
	assert.InDelta(t, 2.0/3.0, m.Agreement, 1e-9)
	assert.InDelta(t, 0.85, m.Confidence, 1e-9)

	w := reduce(StrategyWeighted, votes, 0)
	assert.Equal(t, "A", w.Decision)
	assert.InDelta(t, 1.7/2.65, w.Agreement, 1e-9)

	u := reduce(StrategyUnanimous, votes, 0)
	assert.Equal(t, holdDecision(), u.Decision)
	assert.Zero(t, u.Confidence)
	assert.Zero(t, u.Agreement)
}
