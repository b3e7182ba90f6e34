package core

import "time"

// ResponseTimeAlpha is the smoothing factor of the response-time EMA.
const ResponseTimeAlpha = 0.2

// Metrics tracks the running performance of an agent.
type Metrics struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	FailedTasks    int `json:"failedTasks"`
	// AvgResponseTime is an exponential moving average in milliseconds.
	AvgResponseTime float64 `json:"avgResponseTime"`
	// SuccessRate is CompletedTasks/TotalTasks, 1.0 before any task ran.
	SuccessRate float64 `json:"successRate"`
	// CurrentLoad is in-flight tasks divided by the concurrency limit.
	CurrentLoad     float64   `json:"currentLoad"`
	TotalTokensUsed int       `json:"totalTokensUsed"`
	TotalCost       float64   `json:"totalCost"`
	LastActive      time.Time `json:"lastActive"`
}

// NewMetrics returns metrics for an agent that has not run anything yet.
func NewMetrics(now time.Time) Metrics {
	return Metrics{SuccessRate: 1.0, LastActive: now}
}

// Record folds a finished task into the metrics. Token usage and cost are
// only accumulated for successful executions.
func (m *Metrics) Record(success bool, elapsed time.Duration, meta ResponseMetadata) {
	m.TotalTasks++
	if success {
		m.CompletedTasks++
		m.TotalTokensUsed += meta.TokensUsed
		m.TotalCost += meta.Cost
	} else {
		m.FailedTasks++
	}

	latest := float64(elapsed) / float64(time.Millisecond)
	m.AvgResponseTime = ResponseTimeAlpha*latest + (1-ResponseTimeAlpha)*m.AvgResponseTime
	m.SuccessRate = float64(m.CompletedTasks) / float64(m.TotalTasks)
}
