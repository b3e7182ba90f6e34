package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/tradetaper/agentcore/core"
)

// HealthState grades an agent.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

const slowProbe = 5 * time.Second

// AgentHealth is the result of probing one agent.
type AgentHealth struct {
	Agent        string        `json:"agent"`
	Status       HealthState   `json:"status"`
	ResponseTime time.Duration `json:"responseTime"`
	LastCheck    time.Time     `json:"lastCheck"`
	Metrics      core.Metrics  `json:"metrics"`
	Issues       []string      `json:"issues,omitempty"`
}

// HealthStatus probes every agent in registration order.
func (r *Registry) HealthStatus(ctx context.Context) []AgentHealth {
	agents := r.All()
	out := make([]AgentHealth, 0, len(agents))

	for _, a := range agents {
		start := time.Now()
		alive := a.HealthCheck(ctx)
		elapsed := time.Since(start)
		m := a.Metrics()
		status := a.Status()

		h := AgentHealth{Agent: a.Name(), ResponseTime: elapsed, LastCheck: time.Now(), Metrics: m}
		switch {
		case !alive || status == core.AgentStatusOffline || status == core.AgentStatusFailed:
			h.Status = Unhealthy
			h.Issues = append(h.Issues, fmt.Sprintf("Status: %s", status))
			if !alive && status != core.AgentStatusOffline && status != core.AgentStatusFailed {
				h.Issues = append(h.Issues, "Health check failed")
			}
		case m.SuccessRate < 0.8:
			h.Status = Degraded
			h.Issues = append(h.Issues, fmt.Sprintf("Low success rate: %.1f%%", m.SuccessRate*100))
		case m.CurrentLoad > 0.9:
			h.Status = Degraded
			h.Issues = append(h.Issues, fmt.Sprintf("High load: %.1f%%", m.CurrentLoad*100))
		case elapsed > slowProbe:
			h.Status = Degraded
			h.Issues = append(h.Issues, fmt.Sprintf("Slow response: %dms", elapsed.Milliseconds()))
		default:
			h.Status = Healthy
		}
		out = append(out, h)
	}
	return out
}

// Stats are fleet-wide totals.
type Stats struct {
	TotalAgents         int     `json:"totalAgents"`
	ActiveAgents        int     `json:"activeAgents"`
	IdleAgents          int     `json:"idleAgents"`
	BusyAgents          int     `json:"busyAgents"`
	FailedAgents        int     `json:"failedAgents"`
	TotalCapabilities   int     `json:"totalCapabilities"`
	AgentTypes          int     `json:"agentTypes"`
	AverageLoad         float64 `json:"averageLoad"`
	TotalTasksCompleted int     `json:"totalTasksCompleted"`
	TotalTasksFailed    int     `json:"totalTasksFailed"`
	// OverallSuccessRate is 0 before any task ran.
	OverallSuccessRate float64 `json:"overallSuccessRate"`
	TotalTokensUsed    int     `json:"totalTokensUsed"`
	TotalCost          float64 `json:"totalCost"`
}

// SystemStats aggregates metrics across all agents.
func (r *Registry) SystemStats() Stats {
	r.mu.RLock()
	agents := r.allLocked()
	stats := Stats{
		TotalAgents:       len(agents),
		TotalCapabilities: len(r.byCapability),
		AgentTypes:        len(r.byType),
	}
	r.mu.RUnlock()

	var totalLoad float64
	var totalTasks int
	for _, a := range agents {
		switch a.Status() {
		case core.AgentStatusIdle:
			stats.IdleAgents++
		case core.AgentStatusBusy:
			stats.BusyAgents++
		case core.AgentStatusFailed:
			stats.FailedAgents++
		}
		if a.Status() != core.AgentStatusOffline {
			stats.ActiveAgents++
		}

		m := a.Metrics()
		totalLoad += m.CurrentLoad
		totalTasks += m.TotalTasks
		stats.TotalTasksCompleted += m.CompletedTasks
		stats.TotalTasksFailed += m.FailedTasks
		stats.TotalTokensUsed += m.TotalTokensUsed
		stats.TotalCost += m.TotalCost
	}
	if len(agents) > 0 {
		stats.AverageLoad = totalLoad / float64(len(agents))
	}
	if totalTasks > 0 {
		stats.OverallSuccessRate = float64(stats.TotalTasksCompleted) / float64(totalTasks)
	}
	return stats
}
