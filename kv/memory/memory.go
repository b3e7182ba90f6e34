// Package memory provides a process-local kv.Store bounded by an LRU
// eviction policy with per-key expiry. Suitable for tests, demos and single
// instance deployments; swap for kv/sqlite when data must survive restarts.
package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the store when no size is configured.
const DefaultMaxEntries = 10000

// Options configures a Store.
type Options struct {
	// MaxEntries caps the number of live keys. The least recently used key
	// is evicted once the cap is reached. Zero disables eviction.
	MaxEntries int
	// Now is the clock used for expiry.
	Now func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is an in-memory kv.Store. It is safe for concurrent use.
type Store struct {
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

// New creates a Store.
func New(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{
		MaxEntries: DefaultMaxEntries,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	size := opts.MaxEntries
	if size == 0 {
		size = math.MaxInt
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Store{cache: c, now: opts.Now}, nil
}

// Get implements kv.Store. Expired keys are removed lazily.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		s.cache.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements kv.Store.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.cache.Add(key, e)
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// DeletePrefix implements kv.PrefixDeleter.
func (s *Store) DeletePrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) && s.cache.Remove(k) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of keys held, expired ones included until touched.
func (s *Store) Len() int { return s.cache.Len() }
