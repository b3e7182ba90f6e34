// Package pgledger stores LLM usage records in PostgreSQL through gorm.
package pgledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tradetaper/agentcore/cost"
)

// Record is the persisted row of a cost.TokenUsage.
type Record struct {
	ID               uint64    `gorm:"primaryKey"`
	UserID           string    `gorm:"size:128;index:idx_llm_token_usage_user_time,priority:1"`
	Model            string    `gorm:"size:128;not null"`
	Operation        string    `gorm:"size:128"`
	PromptTokens     int       `gorm:"not null"`
	CompletionTokens int       `gorm:"not null"`
	TotalTokens      int       `gorm:"not null"`
	Cost             float64   `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index:idx_llm_token_usage_user_time,priority:2"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return "llm_token_usage" }

func toRecord(u cost.TokenUsage) Record {
	return Record{
		UserID:           u.UserID,
		Model:            u.Model,
		Operation:        u.Operation,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Cost:             u.Cost,
		CreatedAt:        u.Timestamp,
	}
}

func (r Record) usage() cost.TokenUsage {
	return cost.TokenUsage{
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		Cost:             r.Cost,
		Model:            r.Model,
		Timestamp:        r.CreatedAt,
		UserID:           r.UserID,
		Operation:        r.Operation,
	}
}

// Ledger is a cost.Ledger backed by a gorm database.
type Ledger struct {
	db *gorm.DB
}

// Open connects to PostgreSQL using dsn. A nil config uses a silent logger.
func Open(dsn string, config *gorm.Config) (*Ledger, error) {
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates or updates the usage table.
func (l *Ledger) Migrate(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrate llm_token_usage: %w", err)
	}
	return nil
}

// Append implements cost.Ledger.
func (l *Ledger) Append(ctx context.Context, usage cost.TokenUsage) error {
	rec := toRecord(usage)
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// List implements cost.Ledger. Records are ordered by time.
func (l *Ledger) List(ctx context.Context, filter cost.Filter) ([]cost.TokenUsage, error) {
	q := l.db.WithContext(ctx).Model(&Record{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []Record
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	out := make([]cost.TokenUsage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.usage())
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
