package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetaper/agentcore/kv"
)

var _ kv.Store = (*Store)(nil)
var _ kv.PrefixDeleter = (*Store)(nil)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Unix(1000, 0)}
	s, err := New(func(o *Options) { o.Now = c.now })
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

	c.t = c.t.Add(59 * time.Second)
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	c.t = c.t.Add(time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, err := New(func(o *Options) { o.MaxEntries = 2 })
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := s.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	for _, k := range []string{"llm-cache:1", "llm-cache:2", "message:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
	}

	n, err := s.DeletePrefix(ctx, "llm-cache:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, ok, _ := s.Get(ctx, "message:1")
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	type usage struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, kv.SetJSON(ctx, s, "u", usage{Total: 1.5}, 0))

	var got usage
	found, err := kv.GetJSON(ctx, s, "u", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1.5, got.Total)

	found, err = kv.GetJSON(ctx, s, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ZeroMaxEntriesNeverEvicts(t *testing.T) {
	ctx := context.Background()
	s, err := New(func(o *Options) { o.MaxEntries = 0 })
	require.NoError(t, err)

	for i := 0; i < DefaultMaxEntries+10; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}
	assert.Equal(t, DefaultMaxEntries+10, s.Len())
	_, ok, err := s.Get(ctx, "k0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_NegativeMaxEntries(t *testing.T) {
	_, err := New(func(o *Options) { o.MaxEntries = -1 })
	assert.Error(t, err)
}
