package testutil

import (
	"time"

	"github.com/tradetaper/agentcore/core"
)

// ConfigBuilder helps construct agent configurations with fluent chaining.
// Example:
//
//	cfg := NewConfigBuilder("analyst").Type("market").Capability("trade-prediction", 0.9).Build()
type ConfigBuilder struct {
	cfg core.AgentConfig
}

// NewConfigBuilder creates a builder for an agent with the given name, type
// "test", one concurrent task and a 5s timeout.
func NewConfigBuilder(name string) *ConfigBuilder {
	return &ConfigBuilder{cfg: core.AgentConfig{
		Name:               name,
		Type:               "test",
		MaxConcurrentTasks: 1,
		Timeout:            5 * time.Second,
	}}
}

// Type sets the agent type (chainable).
func (b *ConfigBuilder) Type(t string) *ConfigBuilder {
	b.cfg.Type = t
	return b
}

// Capability appends a capability with the given proficiency (chainable).
func (b *ConfigBuilder) Capability(name string, proficiency float64) *ConfigBuilder {
	b.cfg.Capabilities = append(b.cfg.Capabilities, core.Capability{Name: name, Proficiency: proficiency})
	return b
}

// MaxConcurrent sets the concurrency limit (chainable).
func (b *ConfigBuilder) MaxConcurrent(n int) *ConfigBuilder {
	b.cfg.MaxConcurrentTasks = n
	return b
}

// Timeout sets the task timeout (chainable).
func (b *ConfigBuilder) Timeout(d time.Duration) *ConfigBuilder {
	b.cfg.Timeout = d
	return b
}

// Build returns the configuration.
func (b *ConfigBuilder) Build() core.AgentConfig { return b.cfg }
