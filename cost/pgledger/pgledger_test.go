package pgledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tradetaper/agentcore/cost"
)

var _ cost.Ledger = (*Ledger)(nil)

// newDryRunDB builds a gorm handle that renders SQL without connecting.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=agentcore dbname=agentcore sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestLedger_AppendRendersInsert(t *testing.T) {
	db := newDryRunDB(t)

	var sql string
	var vars []any
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:capture", func(tx *gorm.DB) {
		sql = tx.Statement.SQL.String()
		vars = tx.Statement.Vars
	}))

	l := New(db)
	err := l.Append(context.Background(), cost.TokenUsage{
		UserID:      "u1",
		Model:       "gpt-4o-mini",
		TotalTokens: 42,
		Cost:        0.001,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		Operation:   "completion",
	})
	require.NoError(t, err)

	assert.Contains(t, sql, `INSERT INTO "llm_token_usage"`)
	assert.Contains(t, vars, "u1")
	assert.Contains(t, vars, "gpt-4o-mini")
}

func TestLedger_ListRendersFilters(t *testing.T) {
	db := newDryRunDB(t)

	var sql string
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		sql = tx.Statement.SQL.String()
	}))

	l := New(db)
	out, err := l.List(context.Background(), cost.Filter{UserID: "u1", Since: time.Unix(0, 0), Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.Contains(t, sql, `FROM "llm_token_usage"`)
	assert.Contains(t, sql, "user_id = $1")
	assert.Contains(t, sql, "created_at >= $2")
	assert.Contains(t, sql, "ORDER BY created_at ASC")
	assert.Contains(t, sql, "LIMIT")
}
