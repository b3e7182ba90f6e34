// Package kv defines the key/value persistence contract shared by the bus,
// the cost manager and the semantic cache. Values are opaque bytes with an
// optional time-to-live; JSON helpers cover the common case.
//
// Keys used by agentcore:
//
//	message:<id>                      persisted high priority bus messages
//	monthly-usage:<userId>:<yyyy-mm>  per-user monthly spend
//	system-stats:tokens               rolling system token totals
//	user-tier:<userId>                subscription tier of a user
//	llm-cache:<hash>                  cached completions
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store is a key/value store with per-key expiry. A zero ttl means the key
// never expires. Get reports found=false for missing or expired keys.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is implemented by stores that can drop every key sharing a prefix.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}
