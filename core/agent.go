package core

import (
	"context"
	"time"
)

// Capability is a named skill an agent advertises.
type Capability struct {
	Name string `json:"name"`
	// Proficiency in [0,1].
	Proficiency float64 `json:"proficiency"`
	// Cost is an abstract cost unit per execution.
	Cost float64 `json:"cost"`
	// AvgExecutionTime is the expected execution time.
	AvgExecutionTime time.Duration `json:"avgExecutionTime"`
}

// AgentStatus describes what an agent is currently doing.
type AgentStatus string

const (
	// AgentStatusIdle means the agent has no in-flight tasks.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy means the agent has at least one in-flight task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusFailed means an operator or probe marked the agent unusable.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusOffline means the agent is shutting down or stopped.
	AgentStatusOffline AgentStatus = "offline"
)

// AgentConfig is the static description of an agent.
type AgentConfig struct {
	Name               string        `json:"name"`
	Type               string        `json:"type"`
	Description        string        `json:"description,omitempty"`
	Capabilities       []Capability  `json:"capabilities"`
	MaxConcurrentTasks int           `json:"maxConcurrentTasks"`
	Priority           int           `json:"priority"`
	Timeout            time.Duration `json:"timeout"`
	// Model optionally pins the LLM model the agent prefers.
	Model string `json:"model,omitempty"`
}

// HasCapability reports whether the config advertises the named capability.
func (c AgentConfig) HasCapability(name string) bool {
	_, ok := c.Capability(name)
	return ok
}

// Capability returns the named capability.
func (c AgentConfig) Capability(name string) (Capability, bool) {
	for _, cp := range c.Capabilities {
		if cp.Name == name {
			return cp, true
		}
	}
	return Capability{}, false
}

// ResponseMetadata carries execution details of a single task run.
type ResponseMetadata struct {
	ExecutionTime time.Duration `json:"executionTime"`
	// Confidence is nil when the executor did not report one.
	Confidence *float64 `json:"confidence,omitempty"`
	TokensUsed int      `json:"tokensUsed,omitempty"`
	Cost       float64  `json:"cost,omitempty"`
}

// Response is the outcome of an agent executing a task.
type Response struct {
	Success  bool             `json:"success"`
	Data     any              `json:"data,omitempty"`
	Error    string           `json:"error,omitempty"`
	Metadata ResponseMetadata `json:"metadata"`
}

// Executor is the task-processing behavior a concrete agent supplies. The
// context is cancelled when the task times out or the caller gives up.
type Executor interface {
	ExecuteTask(ctx context.Context, task *Task) (*Response, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (*Response, error)

// ExecuteTask implements Executor.
func (f ExecutorFunc) ExecuteTask(ctx context.Context, task *Task) (*Response, error) {
	return f(ctx, task)
}

// HealthChecker may be implemented by an Executor to override the default
// liveness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
