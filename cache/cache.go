// Package cache memoizes LLM completions keyed by a normalized prompt and
// model, tracking hit statistics and the tokens and cost saved.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tradetaper/agentcore/kv"
	"github.com/tradetaper/agentcore/logging"
)

// KeyPrefix prefixes every cache key in the store.
const KeyPrefix = "llm-cache:"

// DefaultTTL is the lifetime of a fresh entry.
const DefaultTTL = time.Hour

// Entry is a cached completion.
type Entry struct {
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
	Hits       int       `json:"hits"`
	TokensUsed int       `json:"tokensUsed"`
	Cost       float64   `json:"cost"`
}

// Meta describes the original call of a cached completion.
type Meta struct {
	TokensUsed int
	Cost       float64
	// TTL overrides DefaultTTL. Values below the default are raised to it.
	TTL time.Duration
}

// Stats are hit/miss counters since construction or the last ClearStats.
type Stats struct {
	TotalRequests int     `json:"totalRequests"`
	CacheHits     int     `json:"cacheHits"`
	CacheMisses   int     `json:"cacheMisses"`
	HitRate       float64 `json:"hitRate"`
	TokensSaved   int     `json:"tokensSaved"`
	CostSaved     float64 `json:"costSaved"`
}

// EfficiencyReport is a human readable summary of Stats.
type EfficiencyReport struct {
	HitRate          string `json:"hitRate"`
	TokensSaved      int    `json:"tokensSaved"`
	CostSaved        string `json:"costSaved"`
	EstimatedSavings string `json:"estimatedSavings"`
}

// Options configures a SemanticCache.
type Options struct {
	Logger     logging.Logger
	DefaultTTL time.Duration
	Now        func() time.Time
}

// SemanticCache is safe for concurrent use.
type SemanticCache struct {
	store      kv.Store
	logger     logging.Logger
	defaultTTL time.Duration
	now        func() time.Time

	// mu guards stats and serializes hit-count updates of entries.
	mu    sync.Mutex
	stats Stats
}

// New creates a SemanticCache on top of store.
func New(store kv.Store, optFns ...func(o *Options)) *SemanticCache {
	opts := Options{
		Logger:     logging.NoOpLogger{},
		DefaultTTL: DefaultTTL,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SemanticCache{
		store:      store,
		logger:     opts.Logger,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
	}
}

// Normalize trims, lower-cases and collapses whitespace runs of a prompt.
func Normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// Key returns the store key of a prompt and model.
func Key(prompt, model string) string {
	sum := sha256.Sum256([]byte(Normalize(prompt) + ":" + model))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached response. A hit bumps the entry's hit count and
// extends its TTL according to its popularity.
func (c *SemanticCache) Get(ctx context.Context, prompt, model string) (string, bool) {
	key := Key(prompt, model)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TotalRequests++

	var e Entry
	found, err := kv.GetJSON(ctx, c.store, key, &e)
	if err != nil {
		c.logger.Warn("Cache read failed", "key", key, "error", err)
	}
	if !found || err != nil {
		c.stats.CacheMisses++
		c.updateHitRate()
		c.logger.Debug("Cache MISS", "key", shortKey(key))
		return "", false
	}

	e.Hits++
	if err := kv.SetJSON(ctx, c.store, key, e, c.hitTTL(e.Hits)); err != nil {
		c.logger.Warn("Cache hit-count update failed", "key", key, "error", err)
	}

	c.stats.CacheHits++
	c.stats.TokensSaved += e.TokensUsed
	c.stats.CostSaved += e.Cost
	c.updateHitRate()
	c.logger.Debug("Cache HIT", "key", shortKey(key), "hits", e.Hits)
	return e.Response, true
}

// Set stores a response with zero hits.
func (c *SemanticCache) Set(ctx context.Context, prompt, response, model string, meta Meta) error {
	key := Key(prompt, model)
	ttl := max(meta.TTL, c.defaultTTL)
	e := Entry{
		Prompt:     prompt,
		Response:   response,
		Model:      model,
		Timestamp:  c.now(),
		TokensUsed: meta.TokensUsed,
		Cost:       meta.Cost,
	}
	if err := kv.SetJSON(ctx, c.store, key, e, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	c.logger.Debug("Cached response", "key", shortKey(key), "ttl", ttl)
	return nil
}

// Invalidate drops the entry of a prompt and model.
func (c *SemanticCache) Invalidate(ctx context.Context, prompt, model string) error {
	return c.store.Delete(ctx, Key(prompt, model))
}

// InvalidateAll drops every cached entry when the store supports prefix
// deletion and returns the number removed.
func (c *SemanticCache) InvalidateAll(ctx context.Context) (int, error) {
	pd, ok := c.store.(kv.PrefixDeleter)
	if !ok {
		c.logger.Warn("Cache invalidation requested but store cannot delete by prefix")
		return 0, nil
	}
	n, err := pd.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate: %w", err)
	}
	c.logger.Info("Cache invalidated", "entries", n)
	return n, nil
}

// Stats returns a snapshot of the counters.
func (c *SemanticCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ClearStats resets the counters.
func (c *SemanticCache) ClearStats() {
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
	c.logger.Info("Cache statistics cleared")
}

// EfficiencyReport summarizes Stats. The monthly estimate assumes the saved
// cost so far repeats daily.
func (c *SemanticCache) EfficiencyReport() EfficiencyReport {
	s := c.Stats()
	return EfficiencyReport{
		HitRate:          fmt.Sprintf("%.1f%%", s.HitRate*100),
		TokensSaved:      s.TokensSaved,
		CostSaved:        fmt.Sprintf("$%.2f", s.CostSaved),
		EstimatedSavings: fmt.Sprintf("$%.2f/month", s.CostSaved*30),
	}
}

func (c *SemanticCache) hitTTL(hits int) time.Duration {
	switch {
	case hits > 10:
		return 2 * time.Hour
	case hits > 5:
		return 90 * time.Minute
	default:
		return c.defaultTTL
	}
}

func (c *SemanticCache) updateHitRate() {
	if c.stats.TotalRequests > 0 {
		c.stats.HitRate = float64(c.stats.CacheHits) / float64(c.stats.TotalRequests)
	}
}

func shortKey(key string) string {
	h := strings.TrimPrefix(key, KeyPrefix)
	if len(h) > 8 {
		h = h[:8]
	}
	return h
}
