package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/logging"
)

// Options configures the lifecycle wrapper.
type Options struct {
	Logger logging.Logger
	// ShutdownGrace bounds how long Shutdown waits for in-flight tasks.
	ShutdownGrace time.Duration
	// PollInterval is how often Shutdown re-checks in-flight tasks.
	PollInterval time.Duration
}

// Agent wraps a core.Executor with the shared lifecycle: capacity checks,
// status tracking, timeout enforcement and metrics. All exported methods are
// goroutine-safe.
type Agent struct {
	cfg    core.AgentConfig
	exec   core.Executor
	logger logging.Logger
	opts   Options

	mu       sync.Mutex // protects status, metrics and inFlight
	status   core.AgentStatus
	metrics  core.Metrics
	inFlight map[string]*core.Task
}

// New wraps exec with the lifecycle described by cfg. MaxConcurrentTasks
// defaults to 1 and Timeout to 60s.
func New(cfg core.AgentConfig, exec core.Executor, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		ShutdownGrace: 30 * time.Second,
		PollInterval:  time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Type == "" {
		cfg.Type = "generic"
	}

	return &Agent{
		cfg:      cfg,
		exec:     exec,
		logger:   logging.With(opts.Logger, "agent", cfg.Name),
		opts:     opts,
		status:   core.AgentStatusIdle,
		metrics:  core.NewMetrics(time.Now()),
		inFlight: make(map[string]*core.Task),
	}
}

// Name returns the unique agent name.
func (a *Agent) Name() string { return a.cfg.Name }

// Type returns the agent type.
func (a *Agent) Type() string { return a.cfg.Type }

// Config returns a copy of the agent configuration.
func (a *Agent) Config() core.AgentConfig {
	cfg := a.cfg
	cfg.Capabilities = append([]core.Capability(nil), a.cfg.Capabilities...)
	return cfg
}

// Capabilities returns the advertised capabilities.
func (a *Agent) Capabilities() []core.Capability {
	return append([]core.Capability(nil), a.cfg.Capabilities...)
}

// HasCapability reports whether the agent advertises name.
func (a *Agent) HasCapability(name string) bool { return a.cfg.HasCapability(name) }

// Proficiency returns the proficiency for name, 0 when not advertised.
func (a *Agent) Proficiency(name string) float64 {
	c, _ := a.cfg.Capability(name)
	return c.Proficiency
}

// Status returns the current status.
func (a *Agent) Status() core.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Metrics returns a snapshot of the metrics.
func (a *Agent) Metrics() core.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// InFlight returns the number of assigned or running tasks.
func (a *Agent) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}

// CanAcceptTask reports whether the agent is usable and below capacity.
func (a *Agent) CanAcceptTask() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canAcceptLocked()
}

func (a *Agent) canAcceptLocked() bool {
	return a.status != core.AgentStatusOffline &&
		a.status != core.AgentStatusFailed &&
		len(a.inFlight) < a.cfg.MaxConcurrentTasks
}

// AssignTask reserves capacity for task and marks it assigned to this agent.
func (a *Agent) AssignTask(task *core.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.canAcceptLocked() {
		return fmt.Errorf("%w: agent %s status=%s load=%d/%d",
			core.ErrAgentAtCapacity, a.cfg.Name, a.status, len(a.inFlight), a.cfg.MaxConcurrentTasks)
	}
	if err := task.Assign(a.cfg.Name); err != nil {
		return err
	}

	a.inFlight[task.ID] = task
	a.updateLoadLocked()
	a.logger.Info("Task assigned", "task_id", task.ID, "task_type", task.Type)
	return nil
}

// Execute runs task on the executor and never returns an error: failures,
// timeouts and panics are reported through the response. The executor
// receives a context that is cancelled on timeout or when ctx ends.
func (a *Agent) Execute(ctx context.Context, task *core.Task) *core.Response {
	start := time.Now()

	a.mu.Lock()
	if err := task.Transition(core.TaskStatusInProgress); err != nil {
		if task.Status != core.TaskStatusInProgress {
			delete(a.inFlight, task.ID)
		}
		a.settleLocked()
		a.mu.Unlock()
		return &core.Response{Success: false, Error: err.Error()}
	}
	task.StartedAt = start
	a.inFlight[task.ID] = task
	if a.status == core.AgentStatusIdle {
		a.status = core.AgentStatusBusy
	}
	a.updateLoadLocked()
	snapshot := *task
	a.mu.Unlock()

	a.logger.Debug("Executing task", "task_id", task.ID, "task_type", task.Type)
	resp, err := a.run(ctx, &snapshot)
	elapsed := time.Since(start)

	a.mu.Lock()
	defer a.mu.Unlock()
	defer a.settleLocked()
	delete(a.inFlight, task.ID)
	task.CompletedAt = time.Now()

	if err != nil {
		_ = task.Transition(core.TaskStatusFailed)
		task.Error = err.Error()
		a.metrics.Record(false, elapsed, core.ResponseMetadata{})
		logging.LogTaskExecution(a.logger, a.cfg.Name, task.ID, elapsed, false, task.Error)
		return &core.Response{
			Success:  false,
			Error:    task.Error,
			Metadata: core.ResponseMetadata{ExecutionTime: elapsed},
		}
	}

	_ = task.Transition(core.TaskStatusCompleted)
	task.Result = resp.Data
	if resp.Metadata.ExecutionTime == 0 {
		resp.Metadata.ExecutionTime = elapsed
	}
	a.metrics.Record(true, elapsed, resp.Metadata)
	logging.LogTaskExecution(a.logger, a.cfg.Name, task.ID, elapsed, true, "")
	return resp
}

// run races the executor against the task timeout. Only expiry of the
// agent's own timer is reported as core.ErrTaskTimeout.
func (a *Agent) run(ctx context.Context, task *core.Task) (*core.Response, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, a.cfg.Timeout, core.ErrTaskTimeout)
	defer cancel()

	type result struct {
		resp *core.Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		resp, err := a.exec.ExecuteTask(ctx, task)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err != nil:
			return nil, r.err
		case r.resp == nil:
			return nil, errors.New("executor returned no response")
		case !r.resp.Success:
			msg := r.resp.Error
			if msg == "" {
				msg = "task failed"
			}
			return nil, errors.New(msg)
		}
		return r.resp, nil
	case <-ctx.Done():
		cause := context.Cause(ctx)
		if errors.Is(cause, core.ErrTaskTimeout) {
			return nil, fmt.Errorf("%w after %s", core.ErrTaskTimeout, a.cfg.Timeout)
		}
		return nil, fmt.Errorf("task cancelled: %w", cause)
	}
}

// settleLocked recomputes status and load after a task left the agent.
// Offline and failed are sticky.
func (a *Agent) settleLocked() {
	if a.status == core.AgentStatusIdle || a.status == core.AgentStatusBusy {
		if len(a.inFlight) > 0 {
			a.status = core.AgentStatusBusy
		} else {
			a.status = core.AgentStatusIdle
		}
	}
	a.updateLoadLocked()
	a.metrics.LastActive = time.Now()
}

func (a *Agent) updateLoadLocked() {
	a.metrics.CurrentLoad = float64(len(a.inFlight)) / float64(a.cfg.MaxConcurrentTasks)
}

// HealthCheck reports liveness. Executors implementing core.HealthChecker
// are consulted once the status check passes.
func (a *Agent) HealthCheck(ctx context.Context) (healthy bool) {
	status := a.Status()
	if status == core.AgentStatusOffline || status == core.AgentStatusFailed {
		return false
	}
	hc, ok := a.exec.(core.HealthChecker)
	if !ok {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Health check failed", "error", fmt.Sprint(r))
			healthy = false
		}
	}()
	return hc.HealthCheck(ctx)
}

// MarkFailed takes the agent out of rotation until Recover is called.
func (a *Agent) MarkFailed(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == core.AgentStatusOffline {
		return
	}
	a.status = core.AgentStatusFailed
	a.logger.Error("Agent marked failed", "reason", reason)
}

// Recover returns a failed agent to service.
func (a *Agent) Recover() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != core.AgentStatusFailed {
		return
	}
	a.status = core.AgentStatusIdle
	a.settleLocked()
	a.logger.Info("Agent recovered")
}

// Shutdown takes the agent offline and waits up to the grace window for
// in-flight tasks to drain. It returns ctx.Err() when ctx ends first.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.status = core.AgentStatusOffline
	a.mu.Unlock()
	a.logger.Warn("Agent shutting down")

	deadline := time.NewTimer(a.opts.ShutdownGrace)
	defer deadline.Stop()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for a.InFlight() > 0 {
		select {
		case <-ctx.Done():
			a.logger.Warn("Agent shutdown interrupted", "in_flight", a.InFlight())
			return ctx.Err()
		case <-deadline.C:
			a.logger.Warn("Agent shutdown with tasks still in progress", "in_flight", a.InFlight())
			return nil
		case <-ticker.C:
		}
	}

	a.logger.Info("Agent shutdown complete")
	return nil
}
