// Package agent provides the lifecycle shared by every agent and an
// LLM-backed executor.
//
// An Agent wraps any core.Executor with capacity checks, status tracking,
// timeout enforcement, panic recovery and metrics. Concrete behavior is
// supplied by the executor, so agents compose instead of inheriting:
//
//	a := agent.New(core.AgentConfig{Name: "analyst", MaxConcurrentTasks: 2}, exec)
//	if err := a.AssignTask(task); err == nil {
//		resp := a.Execute(ctx, task)
//	}
//
// ModelAgent is an executor that renders an Instruction template with the
// task data, asks the llm orchestrator for a JSON answer and turns it into a
// vote-shaped response.
package agent
