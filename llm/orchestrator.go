// Package llm routes completion requests across multiple models and
// providers with caching, budget enforcement, retries, quality gating and
// fallbacks.
package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradetaper/agentcore/cache"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/logging"
	"github.com/tradetaper/agentcore/model"
	"github.com/tradetaper/agentcore/secrets"
)

// Cache is the completion cache used by the Orchestrator.
type Cache interface {
	Get(ctx context.Context, prompt, model string) (string, bool)
	Set(ctx context.Context, prompt, response, model string, meta cache.Meta) error
	EfficiencyReport() cache.EfficiencyReport
}

// CostManager prices calls, enforces budgets and records usage.
type CostManager interface {
	EstimateTokens(text string) int
	CalculateCost(promptTokens, completionTokens int, model string) float64
	ReserveBudget(ctx context.Context, userID string, estimatedCost float64) (release func(), err error)
	RecordUsage(ctx context.Context, usage cost.TokenUsage) error
	SystemStats(ctx context.Context) (cost.SystemStats, error)
}

// Options configures an Orchestrator.
type Options struct {
	Logger logging.Logger
	Models []ModelConfig
	// Generators are keyed by provider name.
	Generators map[string]model.Generator
	// Secrets, when set, disables models whose provider has no API key.
	Secrets secrets.Provider
	// BackoffBase is the first retry delay; it doubles up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// BatchConcurrency caps in-flight requests of BatchComplete.
	BatchConcurrency int
	// DefaultMaxTokens is the completion budget when a request sets none.
	DefaultMaxTokens   int
	DefaultTemperature float64
}

// Orchestrator is safe for concurrent use. The model table is fixed at
// construction.
type Orchestrator struct {
	costs      CostManager
	cache      Cache
	logger     logging.Logger
	models     []ModelConfig
	generators map[string]model.Generator
	opts       Options
}

// New creates an Orchestrator.
func New(costs CostManager, c Cache, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:             logging.NoOpLogger{},
		Models:             DefaultModels,
		Generators:         map[string]model.Generator{},
		BackoffBase:        time.Second,
		BackoffMax:         5 * time.Second,
		BatchConcurrency:   5,
		DefaultMaxTokens:   2048,
		DefaultTemperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	o := &Orchestrator{
		costs:      costs,
		cache:      c,
		logger:     opts.Logger,
		models:     append([]ModelConfig(nil), opts.Models...),
		generators: opts.Generators,
		opts:       opts,
	}
	o.initializeProviders()
	return o
}

func (o *Orchestrator) initializeProviders() {
	for i := range o.models {
		mc := &o.models[i]
		if !mc.Enabled {
			continue
		}
		if _, ok := o.generators[mc.Provider]; !ok {
			o.logger.Warn("No generator for provider, model disabled", "model", mc.Name, "provider", mc.Provider)
			mc.Enabled = false
			continue
		}
		if o.opts.Secrets != nil && o.opts.Secrets.APIKey(mc.Provider) == "" {
			o.logger.Warn("API key not found, model disabled", "model", mc.Name, "provider", mc.Provider)
			mc.Enabled = false
		}
	}
}

// Models returns a copy of the routing table.
func (o *Orchestrator) Models() []ModelConfig {
	return append([]ModelConfig(nil), o.models...)
}

// Complete routes a request: cache, budget, then primary and fallback models.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	primary := o.primaryModel(req)
	cacheKey := cachePrompt(req)

	if content, ok := o.cache.Get(ctx, cacheKey, primary.Name); ok {
		o.logger.Debug("Returning cached response", "model", primary.Name)
		return &Response{
			Content:  content,
			Model:    primary.Name,
			Provider: primary.Provider,
			Cached:   true,
			Metadata: Metadata{ExecutionTime: time.Since(start), CacheHit: true},
		}, nil
	}

	if req.UserID != "" {
		maxTokens := req.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 1000
		}
		estimated := o.costs.CalculateCost(o.costs.EstimateTokens(req.Prompt), maxTokens, primary.Name)
		release, err := o.costs.ReserveBudget(ctx, req.UserID, estimated)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	var lastErr error
	for _, mc := range o.tryOrder(primary.Name) {
		o.logger.Debug("Trying model", "model", mc.Name)
		resp, err := o.executeWithRetry(ctx, req, mc)
		if err != nil {
			lastErr = err
			o.logger.Warn("Model failed", "model", mc.Name, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if req.QualityThreshold > 0 {
			if q := AssessQuality(resp.Content); q < req.QualityThreshold {
				lastErr = fmt.Errorf("model %s: response quality %.2f below threshold %.2f", mc.Name, q, req.QualityThreshold)
				o.logger.Warn("Response quality below threshold", "model", mc.Name, "quality", q, "threshold", req.QualityThreshold)
				continue
			}
		}

		if err := o.cache.Set(ctx, cacheKey, resp.Content, mc.Name, cache.Meta{
			TokensUsed: resp.Metadata.TotalTokens,
			Cost:       resp.Metadata.Cost,
		}); err != nil {
			o.logger.Warn("Failed to cache response", "model", mc.Name, "error", err)
		}
		if err := o.costs.RecordUsage(ctx, cost.TokenUsage{
			PromptTokens:     resp.Metadata.PromptTokens,
			CompletionTokens: resp.Metadata.CompletionTokens,
			TotalTokens:      resp.Metadata.TotalTokens,
			Cost:             resp.Metadata.Cost,
			Model:            mc.Name,
			UserID:           req.UserID,
			Operation:        "completion",
		}); err != nil {
			o.logger.Warn("Failed to record usage", "model", mc.Name, "error", err)
		}

		resp.Metadata.FallbackUsed = mc.Name != primary.Name
		resp.Metadata.ExecutionTime = time.Since(start)
		return resp, nil
	}

	return nil, &AllModelsFailedError{Last: lastErr}
}

// cachePrompt is the text a response is cached under. Requests that differ
// only in their system prompt must not share an entry.
func cachePrompt(req Request) string {
	if req.System == "" {
		return req.Prompt
	}
	return req.System + "\n\n" + req.Prompt
}

// BatchComplete runs requests with bounded concurrency. Failed requests are
// logged and left out; the order of successful responses follows the input.
func (o *Orchestrator) BatchComplete(ctx context.Context, reqs []Request) []*Response {
	o.logger.Info("Processing batch", "requests", len(reqs))

	results := make([]*Response, len(reqs))
	var g errgroup.Group
	g.SetLimit(max(1, o.opts.BatchConcurrency))
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := o.Complete(ctx, req)
			if err != nil {
				o.logger.Error("Batch request failed", "index", i, "error", err)
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// primaryModel picks the first model to try. A preference naming a
// configured model wins; otherwise the tier implied by complexity and
// optimization goal decides.
func (o *Orchestrator) primaryModel(req Request) ModelConfig {
	if req.ModelPreference != "" {
		if mc, ok := o.model(req.ModelPreference); ok {
			return mc
		}
		o.logger.Warn("Invalid model preference, falling back to auto-selection", "model", req.ModelPreference)
	}

	complexity := req.TaskComplexity
	if complexity == "" {
		complexity = cost.ComplexityMedium
	}
	goal := req.OptimizeFor
	if goal == "" {
		goal = OptimizeCost
	}

	tier := TierFast
	switch goal {
	case OptimizeQuality:
		tier = TierPremium
	case OptimizeCost:
		if complexity == cost.ComplexityComplex {
			tier = TierPremium
		}
	}
	return o.bestInTier(tier)
}

// bestInTier returns the lowest priority model of a tier, preferring
// enabled ones. Without any model in the tier the overall best is used.
func (o *Orchestrator) bestInTier(tier Tier) ModelConfig {
	var best, bestDisabled *ModelConfig
	for i := range o.models {
		mc := &o.models[i]
		if mc.Tier != tier {
			continue
		}
		if mc.Enabled && (best == nil || mc.Priority < best.Priority) {
			best = mc
		}
		if !mc.Enabled && (bestDisabled == nil || mc.Priority < bestDisabled.Priority) {
			bestDisabled = mc
		}
	}
	switch {
	case best != nil:
		return *best
	case bestDisabled != nil:
		return *bestDisabled
	}
	if ordered := o.sortedModels(); len(ordered) > 0 {
		return ordered[0]
	}
	return ModelConfig{Name: cost.DefaultModel, Provider: "unknown", Tier: tier}
}

// tryOrder lists enabled models: primary first, then ascending priority.
func (o *Orchestrator) tryOrder(primary string) []ModelConfig {
	var out []ModelConfig
	for _, mc := range o.sortedModels() {
		if !mc.Enabled {
			continue
		}
		if mc.Name == primary {
			out = append([]ModelConfig{mc}, out...)
			continue
		}
		out = append(out, mc)
	}
	return out
}

func (o *Orchestrator) sortedModels() []ModelConfig {
	out := append([]ModelConfig(nil), o.models...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func (o *Orchestrator) model(name string) (ModelConfig, bool) {
	for _, mc := range o.models {
		if mc.Name == name {
			return mc, true
		}
	}
	return ModelConfig{}, false
}
