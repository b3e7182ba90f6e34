package cost

import (
	"context"
	"sync"
	"time"
)

// TokenUsage is one recorded LLM call. Records are append-only.
type TokenUsage struct {
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	Cost             float64   `json:"cost"`
	Model            string    `json:"model"`
	Timestamp        time.Time `json:"timestamp"`
	UserID           string    `json:"userId,omitempty"`
	Operation        string    `json:"operation"`
}

// Filter selects ledger records. Zero fields match everything.
type Filter struct {
	UserID string
	Since  time.Time
	Limit  int
}

func (f Filter) match(u TokenUsage) bool {
	if f.UserID != "" && u.UserID != f.UserID {
		return false
	}
	return f.Since.IsZero() || !u.Timestamp.Before(f.Since)
}

// Ledger is the append-only store of usage records.
type Ledger interface {
	Append(ctx context.Context, usage TokenUsage) error
	List(ctx context.Context, filter Filter) ([]TokenUsage, error)
}

// MemoryLedger is a process-local Ledger. It keeps at most MaxRecords,
// dropping the oldest first.
type MemoryLedger struct {
	mu         sync.RWMutex
	records    []TokenUsage
	maxRecords int
}

// NewMemoryLedger creates a MemoryLedger. maxRecords <= 0 means 10000.
func NewMemoryLedger(maxRecords int) *MemoryLedger {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	return &MemoryLedger{maxRecords: maxRecords}
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, usage TokenUsage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, usage)
	if over := len(l.records) - l.maxRecords; over > 0 {
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	return nil
}

// List implements Ledger. Records come back in insertion order.
func (l *MemoryLedger) List(_ context.Context, filter Filter) ([]TokenUsage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []TokenUsage
	for _, u := range l.records {
		if !filter.match(u) {
			continue
		}
		out = append(out, u)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
