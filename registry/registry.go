// Package registry is the directory of running agents. It supports lookup
// by name, type and capability, picks the best agent for a task and reports
// fleet health and statistics.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tradetaper/agentcore/agent"
	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/logging"
)

// maxResponseTimeMs is the response time at which the speed score hits 0.
const maxResponseTimeMs = 10000.0

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry is safe for concurrent use. Secondary indexes are rebuilt from
// the primary map on every mutation, so readers never see a partial index.
type Registry struct {
	logger logging.Logger

	mu           sync.RWMutex
	agents       map[string]*agent.Agent
	order        []string // registration order
	byType       map[string][]*agent.Agent
	byCapability map[string][]*agent.Agent
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		logger:       opts.Logger,
		agents:       make(map[string]*agent.Agent),
		byType:       make(map[string][]*agent.Agent),
		byCapability: make(map[string][]*agent.Agent),
	}
}

// Register adds a. Names are unique; a duplicate leaves the first
// registration untouched.
func (r *Registry) Register(a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, ok := r.agents[name]; ok {
		return fmt.Errorf("%w: %q", core.ErrAgentExists, name)
	}
	r.agents[name] = a
	r.order = append(r.order, name)
	r.rebuildLocked()

	caps := make([]string, 0, len(a.Capabilities()))
	for _, c := range a.Capabilities() {
		caps = append(caps, c.Name)
	}
	r.logger.Info("Registered agent", "agent", name, "type", a.Type(), "capabilities", strings.Join(caps, ", "))
	return nil
}

// Unregister removes the named agent. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[name]; !ok {
		return
	}
	delete(r.agents, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.rebuildLocked()
	r.logger.Info("Unregistered agent", "agent", name)
}

func (r *Registry) rebuildLocked() {
	byType := make(map[string][]*agent.Agent)
	byCapability := make(map[string][]*agent.Agent)
	for _, name := range r.order {
		a := r.agents[name]
		byType[a.Type()] = append(byType[a.Type()], a)
		for _, c := range a.Capabilities() {
			byCapability[c.Name] = append(byCapability[c.Name], a)
		}
	}
	r.byType = byType
	r.byCapability = byCapability
}

// Get returns the named agent.
func (r *Registry) Get(name string) (*agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// All returns every agent in registration order.
func (r *Registry) All() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLocked()
}

func (r *Registry) allLocked() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// ByType returns agents of type t in registration order.
func (r *Registry) ByType(t string) []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*agent.Agent(nil), r.byType[t]...)
}

// ByCapability returns agents advertising capability in registration order.
func (r *Registry) ByCapability(capability string) []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*agent.Agent(nil), r.byCapability[capability]...)
}

// FindBestAgentForTask returns the highest scoring agent that has every
// required capability and can accept work, or nil. Ties go to the agent
// registered first.
func (r *Registry) FindBestAgentForTask(task *core.Task) *agent.Agent {
	var (
		best      *agent.Agent
		bestScore float64
	)
	for _, a := range r.candidates(task.RequiredCapabilities) {
		score := Score(a, task.RequiredCapabilities)
		if best == nil || score > bestScore {
			best, bestScore = a, score
		}
	}
	return best
}

func (r *Registry) candidates(required []string) []*agent.Agent {
	r.mu.RLock()
	var pool []*agent.Agent
	if len(required) == 0 {
		pool = r.allLocked()
	} else {
		pool = append(pool, r.byCapability[required[0]]...)
	}
	r.mu.RUnlock()

	out := pool[:0]
	for _, a := range pool {
		if hasAll(a, required) && a.CanAcceptTask() {
			out = append(out, a)
		}
	}
	return out
}

func hasAll(a *agent.Agent, required []string) bool {
	for _, c := range required {
		if !a.HasCapability(c) {
			return false
		}
	}
	return true
}

// Score rates how suitable a is for a task requiring the given
// capabilities: 40% proficiency, 30% free capacity, 20% success rate and
// 10% speed.
func Score(a *agent.Agent, required []string) float64 {
	m := a.Metrics()

	var proficiency float64
	for _, c := range required {
		proficiency += a.Proficiency(c)
	}
	proficiency /= float64(max(1, len(required)))

	speed := max(0, 1-m.AvgResponseTime/maxResponseTimeMs)
	return 0.4*proficiency + 0.3*(1-m.CurrentLoad) + 0.2*m.SuccessRate + 0.1*speed
}

// Shutdown shuts every agent down concurrently, logs failures and empties
// the registry.
func (r *Registry) Shutdown(ctx context.Context) {
	r.logger.Info("Shutting down all agents")
	agents := r.All()

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			if err := a.Shutdown(ctx); err != nil {
				r.logger.Error("Error shutting down agent", "agent", a.Name(), "error", err)
			}
		}(a)
	}
	wg.Wait()

	r.mu.Lock()
	r.agents = make(map[string]*agent.Agent)
	r.order = nil
	r.rebuildLocked()
	r.mu.Unlock()
	r.logger.Info("All agents shut down")
}
