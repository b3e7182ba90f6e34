// Package core provides the foundational domain types shared by every
// agentcore component:
//
//   - Capabilities, configuration, status and metrics of agents
//   - Tasks with their forward-only lifecycle and priorities
//   - Messages exchanged over the bus
//   - The Executor contract implemented by concrete agents
//   - Sentinel errors checked with errors.Is
//
// The package holds no orchestration logic and imports nothing beyond the
// standard library and uuid, so every other package can depend on it.
package core
