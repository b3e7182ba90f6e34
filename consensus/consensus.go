// Package consensus turns independent agent opinions into one decision.
// Each round hands a vote task to every participant in parallel, collects
// the answers until the round deadline and reduces them with a voting
// strategy.
package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradetaper/agentcore/agent"
	"github.com/tradetaper/agentcore/bus"
	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/logging"
)

// DecisionChannel carries a notification for every decided round.
const DecisionChannel = "consensus:decisions"

// Request describes one consensus round.
type Request struct {
	Question string `json:"question"`
	Context  any    `json:"context,omitempty"`
	// RequiredConfidence is the average confidence a unanimous round needs.
	RequiredConfidence float64  `json:"requiredConfidence"`
	Strategy           Strategy `json:"strategy"`
	Participants       []string `json:"participants"`
	// Timeout bounds the round; zero uses the orchestrator default.
	Timeout time.Duration `json:"timeout"`
}

// Vote is one agent's answer.
type Vote struct {
	Agent      string  `json:"agent"`
	Vote       any     `json:"vote"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Metadata describes how a round went.
type Metadata struct {
	Duration         time.Duration `json:"duration"`
	ParticipantCount int           `json:"participantCount"`
}

// Response is the outcome of a round.
type Response struct {
	// Decision is the winning vote in its generic JSON form.
	Decision   any      `json:"decision"`
	Confidence float64  `json:"confidence"`
	Agreement  float64  `json:"agreement"`
	Votes      []Vote   `json:"votes"`
	Metadata   Metadata `json:"metadata"`
}

// Directory finds agents.
type Directory interface {
	Get(name string) (*agent.Agent, bool)
	ByCapability(capability string) []*agent.Agent
}

// Publisher announces decisions.
type Publisher interface {
	Publish(ctx context.Context, channel, from string, data any, optFns ...func(o *bus.PublishOptions)) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Logger logging.Logger
	// Publisher receives a notification per decided round. Nil disables it.
	Publisher      Publisher
	DefaultTimeout time.Duration
	// DefaultConfidence is assumed for votes that report no confidence.
	DefaultConfidence float64
}

// Orchestrator runs consensus rounds. It is safe for concurrent use.
type Orchestrator struct {
	agents Directory
	logger logging.Logger
	opts   Options
}

// New creates an Orchestrator over the agents of dir.
func New(dir Directory, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		DefaultTimeout:    30 * time.Second,
		DefaultConfidence: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{agents: dir, logger: opts.Logger, opts: opts}
}

type ballot struct {
	agent string
	task  *core.Task
}

// Reach runs one round. Participants that are unknown or cannot accept work
// are skipped. When the deadline passes the votes collected so far are
// reduced; without any vote the round fails with ErrConsensusTimeout.
func (o *Orchestrator) Reach(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.Strategy == "" {
		req.Strategy = StrategyWeighted
	}
	if req.Timeout <= 0 {
		req.Timeout = o.opts.DefaultTimeout
	}
	o.logger.Info("Reaching consensus", "question", req.Question, "strategy", req.Strategy)

	ballots := o.ballots(req)
	if len(ballots) == 0 {
		return nil, ErrNoParticipants
	}

	votes, err := o.collect(ctx, ballots, req.Timeout)
	if err != nil {
		return nil, err
	}

	resp := reduce(req.Strategy, votes, req.RequiredConfidence)
	resp.Metadata = Metadata{Duration: time.Since(start), ParticipantCount: len(votes)}

	o.logger.Info("Consensus reached",
		"decision", fmt.Sprint(resp.Decision),
		"confidence", fmt.Sprintf("%.2f", resp.Confidence),
		"agreement", fmt.Sprintf("%.1f%%", resp.Agreement*100),
		"duration", resp.Metadata.Duration)
	o.announce(ctx, req, &resp)
	return &resp, nil
}

func (o *Orchestrator) ballots(req Request) []ballot {
	var out []ballot
	for _, name := range req.Participants {
		a, ok := o.agents.Get(name)
		if !ok {
			o.logger.Warn("Agent not found, skipping", "agent", name)
			continue
		}
		if !a.CanAcceptTask() {
			o.logger.Warn("Agent cannot accept task, skipping", "agent", name)
			continue
		}
		task := core.NewTask(agent.TaskTypeConsensusVote, map[string]any{
			"question": req.Question,
			"context":  req.Context,
		}, core.WithPriority(core.PriorityHigh))
		out = append(out, ballot{agent: name, task: task})
	}
	return out
}

// collect executes every ballot in parallel. Votes are returned in
// participant order.
func (o *Orchestrator) collect(ctx context.Context, ballots []ballot, timeout time.Duration) ([]Vote, error) {
	roundCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		index int
		vote  *Vote
	}
	results := make(chan result, len(ballots))

	var wg sync.WaitGroup
	for i, b := range ballots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- result{index: i, vote: o.castVote(roundCtx, b)}
		}()
	}

	collected := make([]*Vote, len(ballots))
	received, count := 0, 0
	timedOut := false
	for received < len(ballots) && !timedOut {
		select {
		case r := <-results:
			received++
			if r.vote != nil {
				collected[r.index] = r.vote
				count++
			}
		case <-roundCtx.Done():
			timedOut = true
		}
	}

	if timedOut {
		o.logger.Warn("Consensus deadline reached", "votes", count, "participants", len(ballots))
		if count == 0 {
			return nil, fmt.Errorf("%w after %s", ErrConsensusTimeout, timeout)
		}
	} else {
		wg.Wait()
	}
	if count == 0 {
		return nil, ErrNoVotes
	}

	votes := make([]Vote, 0, count)
	for _, v := range collected {
		if v != nil {
			votes = append(votes, *v)
		}
	}
	return votes, nil
}

func (o *Orchestrator) castVote(ctx context.Context, b ballot) *Vote {
	a, ok := o.agents.Get(b.agent)
	if !ok {
		return nil
	}
	if err := a.AssignTask(b.task); err != nil {
		o.logger.Error("Agent vote failed", "agent", b.agent, "error", err)
		return nil
	}

	resp := a.Execute(ctx, b.task)
	if !resp.Success || resp.Data == nil {
		o.logger.Error("Agent vote failed", "agent", b.agent, "error", resp.Error)
		return nil
	}

	v := &Vote{
		Agent:      b.agent,
		Vote:       resp.Data,
		Confidence: o.opts.DefaultConfidence,
		Reasoning:  "No reasoning provided",
	}
	if data, ok := resp.Data.(map[string]any); ok {
		if p, ok := data["prediction"]; ok && p != nil {
			v.Vote = p
		}
		if r, ok := data["reasoning"].(string); ok && r != "" {
			v.Reasoning = r
		}
	}
	if resp.Metadata.Confidence != nil {
		v.Confidence = *resp.Metadata.Confidence
	}
	return v
}

func (o *Orchestrator) announce(ctx context.Context, req Request, resp *Response) {
	if o.opts.Publisher == nil {
		return
	}
	_, err := o.opts.Publisher.Publish(ctx, DecisionChannel, "consensus-orchestrator", map[string]any{
		"question": req.Question,
		"strategy": req.Strategy,
		"response": resp,
	}, bus.WithType(core.MessageTypeNotification), bus.WithPriority(core.PriorityHigh))
	if err != nil {
		o.logger.Warn("Failed to publish consensus decision", "error", err)
	}
}
