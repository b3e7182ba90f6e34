package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetaper/agentcore/kv"
)

var _ kv.Store = (*Store)(nil)
var _ kv.PrefixDeleter = (*Store)(nil)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "message:1", []byte(`{"a":1}`), time.Hour))
	require.NoError(t, s.Set(ctx, "message:1", []byte(`{"a":2}`), time.Hour))

	v, ok, err := s.Get(ctx, "message:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":2}`, string(v))

	require.NoError(t, s.Delete(ctx, "message:1"))
	_, ok, err = s.Get(ctx, "message:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("y"), 0))

	now = now.Add(2 * time.Minute)

	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DeletePrefixIsExact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, k := range []string{"llm-cache:a", "llm-cache:b", "llm_cache:c", "LLM-CACHE:d", "user-tier:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
	}

	n, err := s.DeletePrefix(ctx, "llm-cache:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeletePrefix(ctx, "llm_")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.Get(ctx, "LLM-CACHE:d")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Get(ctx, "user-tier:1")
	require.NoError(t, err)
	assert.True(t, ok)
}
