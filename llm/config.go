package llm

import (
	"time"

	"github.com/tradetaper/agentcore/cost"
)

// Tier groups models by speed and capability for selection.
type Tier string

const (
	// TierFast models are cheap and quick.
	TierFast Tier = "fast"
	// TierPremium models trade cost for quality.
	TierPremium Tier = "premium"
)

// Optimization is the goal of model selection.
type Optimization string

const (
	OptimizeCost    Optimization = "cost"
	OptimizeQuality Optimization = "quality"
	OptimizeSpeed   Optimization = "speed"
)

// ModelConfig describes a routable model.
type ModelConfig struct {
	Name     string `json:"name" toml:"name" yaml:"name"`
	Provider string `json:"provider" toml:"provider" yaml:"provider"`
	// Priority orders fallbacks; lower is tried first.
	Priority   int  `json:"priority" toml:"priority" yaml:"priority"`
	Tier       Tier `json:"tier" toml:"tier" yaml:"tier"`
	Enabled    bool `json:"enabled" toml:"enabled" yaml:"enabled"`
	MaxRetries int  `json:"maxRetries" toml:"max_retries" yaml:"max_retries"`
}

// DefaultModels is the built-in routing table.
var DefaultModels = []ModelConfig{
	{Name: "gpt-4o-mini", Provider: "openai", Priority: 0, Tier: TierFast, Enabled: true, MaxRetries: 3},
	{Name: "claude-3-5-haiku-latest", Provider: "anthropic", Priority: 1, Tier: TierFast, Enabled: true, MaxRetries: 2},
	{Name: "gpt-4o", Provider: "openai", Priority: 2, Tier: TierPremium, Enabled: true, MaxRetries: 2},
	{Name: "claude-sonnet-4-0", Provider: "anthropic", Priority: 3, Tier: TierPremium, Enabled: true, MaxRetries: 2},
}

// Request is a completion request routed across models.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	// TaskComplexity defaults to medium.
	TaskComplexity cost.Complexity
	// OptimizeFor defaults to cost.
	OptimizeFor Optimization
	// UserID enables budget enforcement and per-user accounting.
	UserID      string
	RequireJSON bool
	// QualityThreshold rejects responses scoring below it when > 0.
	QualityThreshold float64
	// ModelPreference pins the primary model when it names a configured model.
	ModelPreference string
}

// Metadata describes how a response was produced.
type Metadata struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	Cost             float64 `json:"cost"`
	// ExecutionTime is measured from the start of Complete.
	ExecutionTime time.Duration `json:"executionTime"`
	CacheHit      bool          `json:"cacheHit"`
	FallbackUsed  bool          `json:"fallbackUsed"`
}

// Response is the result of Complete.
type Response struct {
	Content  string   `json:"content"`
	Model    string   `json:"model"`
	Provider string   `json:"provider"`
	Cached   bool     `json:"cached"`
	Metadata Metadata `json:"metadata"`
}
