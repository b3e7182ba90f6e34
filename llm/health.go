package llm

import (
	"context"

	"github.com/tradetaper/agentcore/cache"
	"github.com/tradetaper/agentcore/cost"
)

// HealthStatus summarizes routing capacity.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the orchestrator health report.
type Health struct {
	Status HealthStatus           `json:"status"`
	Models []ModelConfig          `json:"models"`
	Cache  cache.EfficiencyReport `json:"cache"`
	Costs  cost.SystemStats       `json:"costs"`
}

// Health reports unhealthy without enabled models, degraded with a single
// one and healthy otherwise.
func (o *Orchestrator) Health(ctx context.Context) Health {
	enabled := 0
	for _, mc := range o.models {
		if mc.Enabled {
			enabled++
		}
	}
	status := HealthHealthy
	switch {
	case enabled == 0:
		status = HealthUnhealthy
	case enabled < 2:
		status = HealthDegraded
	}

	stats, err := o.costs.SystemStats(ctx)
	if err != nil {
		o.logger.Warn("Failed to load cost stats", "error", err)
	}
	return Health{
		Status: status,
		Models: o.Models(),
		Cache:  o.cache.EfficiencyReport(),
		Costs:  stats,
	}
}
