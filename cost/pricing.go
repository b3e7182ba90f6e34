package cost

import (
	"math"
	"unicode/utf8"
)

// DefaultModel is the conservative fallback used for unknown models and
// when model selection filters out every candidate.
const DefaultModel = "gemini-1.5-flash"

// ModelPricing holds per-1K-token USD rates for a model.
type ModelPricing struct {
	Model               string  `json:"model"`
	Provider            string  `json:"provider"`
	PromptCostPer1K     float64 `json:"promptCostPer1K"`
	CompletionCostPer1K float64 `json:"completionCostPer1K"`
	ContextWindow       int     `json:"contextWindow"`
	Recommended         bool    `json:"recommended"`
}

// fallbackPricing prices models missing from the table.
var fallbackPricing = ModelPricing{Model: DefaultModel, Provider: "google", PromptCostPer1K: 0.0001875, CompletionCostPer1K: 0.000375}

// DefaultPricing is the built-in rate table.
var DefaultPricing = []ModelPricing{
	{Model: "gemini-1.5-flash", Provider: "google", PromptCostPer1K: 0.0001875, CompletionCostPer1K: 0.000375, ContextWindow: 1_000_000, Recommended: true},
	{Model: "gemini-1.5-pro", Provider: "google", PromptCostPer1K: 0.00125, CompletionCostPer1K: 0.005, ContextWindow: 2_000_000},
	{Model: "gemini-2.0-flash", Provider: "google", PromptCostPer1K: 0.0001, CompletionCostPer1K: 0.0004, ContextWindow: 1_000_000, Recommended: true},
	{Model: "gpt-4-turbo", Provider: "openai", PromptCostPer1K: 0.01, CompletionCostPer1K: 0.03, ContextWindow: 128_000},
	{Model: "gpt-3.5-turbo", Provider: "openai", PromptCostPer1K: 0.0015, CompletionCostPer1K: 0.002, ContextWindow: 16_385, Recommended: true},
	{Model: "gpt-4o", Provider: "openai", PromptCostPer1K: 0.0025, CompletionCostPer1K: 0.01, ContextWindow: 128_000},
	{Model: "gpt-4o-mini", Provider: "openai", PromptCostPer1K: 0.00015, CompletionCostPer1K: 0.0006, ContextWindow: 128_000, Recommended: true},
	{Model: "claude-3-sonnet", Provider: "anthropic", PromptCostPer1K: 0.003, CompletionCostPer1K: 0.015, ContextWindow: 200_000, Recommended: true},
	{Model: "claude-3-5-haiku-latest", Provider: "anthropic", PromptCostPer1K: 0.0008, CompletionCostPer1K: 0.004, ContextWindow: 200_000, Recommended: true},
	{Model: "claude-sonnet-4-0", Provider: "anthropic", PromptCostPer1K: 0.003, CompletionCostPer1K: 0.015, ContextWindow: 200_000},
}

// Complexity grades how demanding a task is for model selection.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// complexityModels lists the candidate models per complexity.
var complexityModels = map[Complexity][]string{
	ComplexitySimple:  {"gemini-1.5-flash", "gpt-3.5-turbo", "gemini-2.0-flash", "gpt-4o-mini"},
	ComplexityMedium:  {"claude-3-sonnet", "gemini-1.5-flash", "gpt-3.5-turbo", "claude-3-5-haiku-latest", "gpt-4o-mini"},
	ComplexityComplex: {"gpt-4-turbo", "gemini-1.5-pro", "claude-3-sonnet", "gpt-4o", "claude-sonnet-4-0"},
}

// EstimateTokens approximates the token count of text as one token per
// four characters, rounded up.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

func (p ModelPricing) cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptCostPer1K + float64(completionTokens)/1000*p.CompletionCostPer1K
}

func (p ModelPricing) blended() float64 {
	return p.PromptCostPer1K + p.CompletionCostPer1K
}
