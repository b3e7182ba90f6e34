package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradetaper/agentcore/cache"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/kv/memory"
	"github.com/tradetaper/agentcore/model"
	"github.com/tradetaper/agentcore/secrets"
)

// MockGenerator is a testify mock of model.Generator.
type MockGenerator struct{ mock.Mock }

func (m *MockGenerator) Generate(ctx context.Context, req model.Request) (model.Completion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Completion), args.Error(1)
}

const longAnswer = "The market shows steady momentum with rising volume and healthy breadth across sectors."

type fixture struct {
	orch  *Orchestrator
	costs *cost.Manager
	cache *cache.SemanticCache
}

func newFixture(t *testing.T, gens map[string]model.Generator, optFns ...func(o *Options)) fixture {
	t.Helper()
	store, err := memory.New()
	require.NoError(t, err)

	costs := cost.New(store)
	c := cache.New(store)
	fns := append([]func(o *Options){func(o *Options) {
		o.Generators = gens
		o.BackoffBase = time.Millisecond
		o.BackoffMax = 2 * time.Millisecond
	}}, optFns...)
	return fixture{orch: New(costs, c, fns...), costs: costs, cache: c}
}

func TestOrchestrator_PrimarySelection(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"default is cost optimized medium", Request{}, "gpt-4o-mini"},
		{"complex task on cost goes premium", Request{TaskComplexity: cost.ComplexityComplex}, "gpt-4o"},
		{"quality goes premium", Request{OptimizeFor: OptimizeQuality}, "gpt-4o"},
		{"speed stays fast", Request{TaskComplexity: cost.ComplexityComplex, OptimizeFor: OptimizeSpeed}, "gpt-4o-mini"},
		{"valid preference wins", Request{ModelPreference: "claude-sonnet-4-0"}, "claude-sonnet-4-0"},
		{"unknown preference is ignored", Request{ModelPreference: "gpt-99"}, "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]model.Generator{
				"openai":    model.NewMockGenerator(),
				"anthropic": model.NewMockGenerator(),
			})
			tt.req.Prompt = "prompt for " + tt.name

			resp, err := f.orch.Complete(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Model)
			assert.False(t, resp.Metadata.FallbackUsed)
		})
	}
}

func TestOrchestrator_PrimaryPrefersEnabledModel(t *testing.T) {
	// Only anthropic is available, so the fast tier resolves to haiku.
	f := newFixture(t, map[string]model.Generator{"anthropic": model.NewMockGenerator()})

	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", resp.Model)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.False(t, resp.Metadata.FallbackUsed)
}

func TestOrchestrator_RetriesBeforeFallback(t *testing.T) {
	openai := model.NewMockGenerator()
	openai.FailNext(errors.New("rate limited"))
	f := newFixture(t, map[string]model.Generator{"openai": openai})

	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "retry me"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.Len(t, openai.Calls(), 2)
}

func TestOrchestrator_FallsBackInPriorityOrder(t *testing.T) {
	openai := model.NewMockGenerator()
	boom := errors.New("upstream down")
	openai.FailNext(boom, boom, boom) // gpt-4o-mini allows three attempts
	anthropic := model.NewMockGenerator()
	f := newFixture(t, map[string]model.Generator{"openai": openai, "anthropic": anthropic})

	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "fallback"})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-5-haiku-latest", resp.Model)
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.Len(t, openai.Calls(), 3)
	require.Len(t, anthropic.Calls(), 1)
	assert.Equal(t, "claude-3-5-haiku-latest", anthropic.Calls()[0].Model)
}

func TestOrchestrator_AllModelsFailed(t *testing.T) {
	boom := errors.New("boom")
	gen := model.GeneratorFunc(func(context.Context, model.Request) (model.Completion, error) {
		return model.Completion{}, boom
	})
	f := newFixture(t, map[string]model.Generator{"openai": gen, "anthropic": gen})

	_, err := f.orch.Complete(context.Background(), Request{Prompt: "doomed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "All LLM models failed. Last error: boom", err.Error())

	var failed *AllModelsFailedError
	require.ErrorAs(t, err, &failed)
}

func TestOrchestrator_QualityGate(t *testing.T) {
	openai := model.NewMockGenerator()
	openai.AddResponse("judge me", "sorry")
	f := newFixture(t, map[string]model.Generator{"openai": openai})

	_, err := f.orch.Complete(context.Background(), Request{Prompt: "judge me", QualityThreshold: 0.7})
	require.ErrorIs(t, err, ErrAllModelsFailed)
	assert.Contains(t, err.Error(), "below threshold")
	// gpt-4o-mini and gpt-4o were both tried once.
	assert.Len(t, openai.Calls(), 2)

	openai.AddResponse("judge me", longAnswer)
	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "judge me", QualityThreshold: 0.7})
	require.NoError(t, err)
	assert.Equal(t, longAnswer, resp.Content)
}

func TestOrchestrator_BudgetExceeded(t *testing.T) {
	gen := &MockGenerator{}
	f := newFixture(t, map[string]model.Generator{"openai": gen})
	ctx := context.Background()

	require.NoError(t, f.costs.RecordUsage(ctx, cost.TokenUsage{UserID: "u1", Cost: 1.0, Model: "gpt-4o-mini"}))

	_, err := f.orch.Complete(ctx, Request{Prompt: "expensive", UserID: "u1"})
	require.ErrorIs(t, err, cost.ErrBudgetExceeded)
	assert.NotErrorIs(t, err, ErrAllModelsFailed)

	var budgetErr *cost.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, "u1", budgetErr.UserID)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestOrchestrator_RecordsUsageAndCaches(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r model.Request) bool {
		return r.Model == "gpt-4o-mini" && r.Prompt == "cache me" && r.MaxTokens == 2048 && r.Temperature == 0.7
	})).Return(model.Completion{Text: longAnswer, PromptTokens: 1000, CompletionTokens: 500}, nil).Once()

	f := newFixture(t, map[string]model.Generator{"openai": gen})
	ctx := context.Background()

	first, err := f.orch.Complete(ctx, Request{Prompt: "cache me", UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1500, first.Metadata.TotalTokens)
	assert.InDelta(t, 0.00015+0.0003, first.Metadata.Cost, 1e-12)

	usage, err := f.costs.Usage(ctx, cost.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, "gpt-4o-mini", usage[0].Model)
	assert.Equal(t, 1500, usage[0].TotalTokens)

	// Normalization makes the second prompt hit the same entry.
	second, err := f.orch.Complete(ctx, Request{Prompt: "  CACHE   me ", UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, longAnswer, second.Content)
	assert.Zero(t, second.Metadata.TotalTokens)
	assert.Zero(t, second.Metadata.Cost)

	stats := f.cache.Stats()
	assert.Equal(t, 1, stats.CacheHits)
	assert.Equal(t, 1500, stats.TokensSaved)
	gen.AssertExpectations(t)
}

func TestOrchestrator_EstimatesMissingUsage(t *testing.T) {
	gen := model.GeneratorFunc(func(context.Context, model.Request) (model.Completion, error) {
		return model.Completion{Text: "12345678"}, nil
	})
	f := newFixture(t, map[string]model.Generator{"openai": gen})

	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "abcd"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Metadata.PromptTokens)
	assert.Equal(t, 2, resp.Metadata.CompletionTokens)
	assert.Equal(t, 3, resp.Metadata.TotalTokens)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	f := newFixture(t, map[string]model.Generator{"openai": model.NewMockGenerator()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Complete(ctx, Request{Prompt: "never"})
	require.ErrorIs(t, err, ErrAllModelsFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_DisablesModelsWithoutCredentials(t *testing.T) {
	f := newFixture(t, map[string]model.Generator{
		"openai":    model.NewMockGenerator(),
		"anthropic": model.NewMockGenerator(),
	}, func(o *Options) {
		o.Secrets = secrets.Static{"openai": "sk-test"}
	})

	enabled := map[string]bool{}
	for _, mc := range f.orch.Models() {
		enabled[mc.Name] = mc.Enabled
	}
	assert.Equal(t, map[string]bool{
		"gpt-4o-mini":             true,
		"claude-3-5-haiku-latest": false,
		"gpt-4o":                  true,
		"claude-sonnet-4-0":       false,
	}, enabled)

	// A disabled preference is still the primary but is never called.
	resp, err := f.orch.Complete(context.Background(), Request{Prompt: "pref", ModelPreference: "claude-sonnet-4-0"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.True(t, resp.Metadata.FallbackUsed)
}

func TestOrchestrator_BatchComplete(t *testing.T) {
	gen := model.GeneratorFunc(func(_ context.Context, req model.Request) (model.Completion, error) {
		if strings.HasPrefix(req.Prompt, "bad") {
			return model.Completion{}, errors.New("rejected")
		}
		return model.Completion{Text: "answer: " + req.Prompt, PromptTokens: 1, CompletionTokens: 1}, nil
	})
	f := newFixture(t, map[string]model.Generator{"openai": gen}, func(o *Options) {
		o.Models = []ModelConfig{{Name: "gpt-4o-mini", Provider: "openai", Tier: TierFast, Enabled: true, MaxRetries: 1}}
	})

	reqs := []Request{{Prompt: "one"}, {Prompt: "bad two"}, {Prompt: "three"}, {Prompt: "four"}}
	out := f.orch.BatchComplete(context.Background(), reqs)

	require.Len(t, out, 3)
	assert.Equal(t, "answer: one", out[0].Content)
	assert.Equal(t, "answer: three", out[1].Content)
	assert.Equal(t, "answer: four", out[2].Content)
}

func TestOrchestrator_Health(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := newFixture(t, map[string]model.Generator{"openai": model.NewMockGenerator()})
		h := f.orch.Health(ctx)
		assert.Equal(t, HealthHealthy, h.Status)
		assert.Len(t, h.Models, 4)
		assert.Equal(t, "0.0%", h.Cache.HitRate)
	})

	t.Run("degraded", func(t *testing.T) {
		f := newFixture(t, map[string]model.Generator{"openai": model.NewMockGenerator()}, func(o *Options) {
			o.Models = DefaultModels[:1]
		})
		assert.Equal(t, HealthDegraded, f.orch.Health(ctx).Status)
	})

	t.Run("unhealthy", func(t *testing.T) {
		f := newFixture(t, map[string]model.Generator{})
		assert.Equal(t, HealthUnhealthy, f.orch.Health(ctx).Status)
	})
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(1, time.Second, 5*time.Second))
	assert.Equal(t, 2*time.Second, backoff(2, time.Second, 5*time.Second))
	assert.Equal(t, 4*time.Second, backoff(3, time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, backoff(4, time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, backoff(10, time.Second, 5*time.Second))
}

func TestNew_DoesNotMutateDefaults(t *testing.T) {
	_ = newFixture(t, map[string]model.Generator{})
	for _, mc := range DefaultModels {
		assert.True(t, mc.Enabled, mc.Name)
	}
}

func TestOrchestrator_CacheSeparatesSystemPrompts(t *testing.T) {
	gen := model.NewMockGenerator()
	f := newFixture(t, map[string]model.Generator{"openai": gen, "anthropic": model.NewMockGenerator()})
	ctx := context.Background()

	first, err := f.orch.Complete(ctx, Request{System: "You are bullish.", Prompt: "BTC?"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := f.orch.Complete(ctx, Request{System: "You are bearish.", Prompt: "BTC?"})
	require.NoError(t, err)
	assert.False(t, second.Cached)

	again, err := f.orch.Complete(ctx, Request{System: "You are bullish.", Prompt: "BTC?"})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Len(t, gen.Calls(), 2)
}

func TestOrchestrator_ConcurrentCallsReserveBudget(t *testing.T) {
	started := make(chan struct{}, 1)
	unblock := make(chan struct{})
	gen := model.GeneratorFunc(func(ctx context.Context, req model.Request) (model.Completion, error) {
		if req.Prompt == "slow" {
			started <- struct{}{}
			<-unblock
		}
		return model.Completion{Text: longAnswer, PromptTokens: 10, CompletionTokens: 10}, nil
	})
	f := newFixture(t, map[string]model.Generator{"openai": gen})
	ctx := context.Background()

	// About 0.0007 left: room for one estimated gpt-4o-mini call at a time.
	require.NoError(t, f.costs.RecordUsage(ctx, cost.TokenUsage{UserID: "u1", Cost: 0.9993, Model: "gpt-4o-mini"}))

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.Complete(ctx, Request{Prompt: "slow", UserID: "u1"})
		done <- err
	}()
	<-started

	_, err := f.orch.Complete(ctx, Request{Prompt: "while in flight", UserID: "u1"})
	require.ErrorIs(t, err, cost.ErrBudgetExceeded)

	close(unblock)
	require.NoError(t, <-done)

	_, err = f.orch.Complete(ctx, Request{Prompt: "after settle", UserID: "u1"})
	assert.NoError(t, err, "the reservation is released once the call settles")
}
