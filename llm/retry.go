package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tradetaper/agentcore/logging"
	"github.com/tradetaper/agentcore/model"
)

// backoff returns the delay after a failed attempt (1-based).
func backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

func (o *Orchestrator) executeWithRetry(ctx context.Context, req Request, mc ModelConfig) (*Response, error) {
	attempts := max(1, mc.MaxRetries)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := o.execute(ctx, req, mc)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := backoff(attempt, o.opts.BackoffBase, o.opts.BackoffMax)
		o.logger.Debug("Attempt failed, retrying", "model", mc.Name, "attempt", attempt, "backoff", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) execute(ctx context.Context, req Request, mc ModelConfig) (*Response, error) {
	gen, ok := o.generators[mc.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGenerator, mc.Provider)
	}

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = o.opts.DefaultTemperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.opts.DefaultMaxTokens
	}

	start := time.Now()
	c, err := gen.Generate(ctx, model.Request{
		Model:       mc.Name,
		Prompt:      req.Prompt,
		System:      req.System,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		RequireJSON: req.RequireJSON,
	})
	if err != nil {
		logging.LogLLMCall(o.logger, mc.Name, 0, time.Since(start), err)
		return nil, err
	}

	// Some providers omit usage; estimate from text.
	promptTokens := c.PromptTokens
	if promptTokens == 0 {
		promptTokens = o.costs.EstimateTokens(req.System + req.Prompt)
	}
	completionTokens := c.CompletionTokens
	if completionTokens == 0 {
		completionTokens = o.costs.EstimateTokens(c.Text)
	}
	total := promptTokens + completionTokens
	logging.LogLLMCall(o.logger, mc.Name, total, time.Since(start), nil)

	return &Response{
		Content:  c.Text,
		Model:    mc.Name,
		Provider: mc.Provider,
		Metadata: Metadata{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      total,
			Cost:             o.costs.CalculateCost(promptTokens, completionTokens, mc.Name),
			ExecutionTime:    time.Since(start),
		},
	}, nil
}
