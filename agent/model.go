package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/llm"
	"github.com/tradetaper/agentcore/logging"
)

// TaskTypeConsensusVote is the task type issued by consensus rounds.
const TaskTypeConsensusVote = "consensus-vote"

// DefaultPrompt asks for a vote on the task question.
const DefaultPrompt = `Question: {{.question}}
{{with .context}}Context: {{json .}}
{{end}}
Respond with a JSON object with the fields "prediction" (your decision), "confidence" (a number between 0 and 1) and "reasoning" (one or two sentences).`

// Completer is the slice of the llm orchestrator a ModelAgent needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ModelAgentOptions configures a ModelAgent.
type ModelAgentOptions struct {
	// Instruction is the system prompt.
	Instruction Instruction
	// Prompt is the user prompt, rendered with the task data.
	Prompt           Instruction
	ModelPreference  string
	TaskComplexity   cost.Complexity
	OptimizeFor      llm.Optimization
	Temperature      float64
	MaxTokens        int
	QualityThreshold float64
	// UserID attributes usage to a budget owner.
	UserID string
	Logger logging.Logger
}

// ModelAgent is a core.Executor that asks a language model for a structured
// opinion. The model must answer with a JSON object carrying "prediction" or
// "action", plus "confidence" and "reasoning".
type ModelAgent struct {
	name      string
	completer Completer
	opts      ModelAgentOptions
}

// NewModelAgent creates a model-backed executor.
func NewModelAgent(name string, completer Completer, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:    NewInstructionFromText(fmt.Sprintf("You are %s, an analyst agent in a multi-agent trading system.", name)),
		Prompt:         NewInstructionFromText(DefaultPrompt),
		TaskComplexity: cost.ComplexityMedium,
		OptimizeFor:    llm.OptimizeCost,
		Temperature:    0.3,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelAgent{name: name, completer: completer, opts: opts}
}

// Name returns the agent name used in the system prompt.
func (a *ModelAgent) Name() string { return a.name }

// ExecuteTask implements core.Executor.
func (a *ModelAgent) ExecuteTask(ctx context.Context, task *core.Task) (*core.Response, error) {
	system, err := a.opts.Instruction.Resolve(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}
	prompt, err := a.opts.Prompt.Resolve(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("resolve prompt: %w", err)
	}

	resp, err := a.completer.Complete(ctx, llm.Request{
		Prompt:           prompt,
		System:           system,
		MaxTokens:        a.opts.MaxTokens,
		Temperature:      a.opts.Temperature,
		TaskComplexity:   a.opts.TaskComplexity,
		OptimizeFor:      a.opts.OptimizeFor,
		UserID:           a.opts.UserID,
		RequireJSON:      true,
		QualityThreshold: a.opts.QualityThreshold,
		ModelPreference:  a.opts.ModelPreference,
	})
	if err != nil {
		return nil, err
	}

	opinion, err := ParseOpinion(resp.Content)
	if err != nil {
		a.opts.Logger.Warn("Unparseable model output", "agent", a.name, "model", resp.Model, "error", err)
		return nil, err
	}

	data := map[string]any{
		"prediction": opinion.Prediction,
		"reasoning":  opinion.Reasoning,
		"model":      resp.Model,
	}
	return &core.Response{
		Success: true,
		Data:    data,
		Metadata: core.ResponseMetadata{
			Confidence: opinion.Confidence,
			TokensUsed: resp.Metadata.TotalTokens,
			Cost:       resp.Metadata.Cost,
		},
	}, nil
}

// Opinion is the structured answer of a model.
type Opinion struct {
	// Prediction is a JSON object; a bare string decision becomes {"action": s}.
	Prediction map[string]any
	// Confidence is nil when the model did not report a numeric confidence.
	Confidence *float64
	Reasoning  string
}

// ErrNoPrediction is returned when model output carries no decision.
var ErrNoPrediction = errors.New("model output has no prediction or action")

// ParseOpinion decodes model output, tolerating markdown code fences.
func ParseOpinion(content string) (Opinion, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		return Opinion{}, fmt.Errorf("parse model output: %w", err)
	}

	var op Opinion
	decision, ok := raw["prediction"]
	if !ok || decision == nil {
		decision, ok = raw["action"]
	}
	switch d := decision.(type) {
	case map[string]any:
		op.Prediction = d
	case string:
		if d == "" {
			return Opinion{}, ErrNoPrediction
		}
		op.Prediction = map[string]any{"action": strings.ToUpper(d)}
	default:
		if !ok || decision == nil {
			return Opinion{}, ErrNoPrediction
		}
		op.Prediction = map[string]any{"action": d}
	}

	if c, ok := raw["confidence"].(float64); ok {
		op.Confidence = core.Float(min(1, max(0, c)))
	}
	if r, ok := raw["reasoning"].(string); ok {
		op.Reasoning = r
	}
	return op, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
