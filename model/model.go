package model

import (
	"context"
	"fmt"
	"sync"
)

// Request is the provider-neutral input for a single completion.
type Request struct {
	// Model is the provider model id, e.g. "gpt-4o-mini".
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	// Temperature of 0 leaves the provider default in place.
	Temperature float64 `json:"temperature,omitempty"`
	// MaxTokens of 0 leaves the adapter default in place.
	MaxTokens int `json:"maxTokens,omitempty"`
	// RequireJSON asks the provider for a JSON object response where supported.
	RequireJSON bool `json:"requireJson,omitempty"`
}

// Completion is the normalized provider result.
type Completion struct {
	Text             string `json:"text"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
	FinishReason     string `json:"finishReason,omitempty"`
}

// TotalTokens returns prompt plus completion tokens.
func (c Completion) TotalTokens() int { return c.PromptTokens + c.CompletionTokens }

// Generator is the minimal interface the orchestrator needs from a provider.
// Implementations must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (Completion, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Completion, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// MockGenerator is a lightweight in-memory Generator useful for tests & examples.
type MockGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	failures  []error
	calls     []Request
}

// NewMockGenerator constructs an empty MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockGenerator) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailNext queues errors returned by the next calls, in order.
func (m *MockGenerator) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Calls returns a copy of every request received so far.
func (m *MockGenerator) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Generator. Token counts are approximated as a quarter
// of the character counts.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		return Completion{}, err
	}
	text, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	return Completion{
		Text:             text,
		PromptTokens:     (len(req.Prompt) + 3) / 4,
		CompletionTokens: (len(text) + 3) / 4,
		FinishReason:     "stop",
	}, nil
}
