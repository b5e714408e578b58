// Package cache stores search responses in Redis. Concurrent misses for the
// same key are collapsed with singleflight, and a circuit breaker stops
// calling Redis while it is failing so searches are served uncached.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies a cached response. Generation is the LSA model generation
// for lsa mode and zero otherwise, so a model swap never serves stale
// rankings.
type Key struct {
	Mode       string
	Query      string
	Limit      int
	Generation uint64
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|%d|%d", canonicalQuery(k.Query), k.Limit, k.Generation)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Mode, sum[:16])
}

// canonicalQuery folds case, Unicode composition and whitespace, which the
// normalizer ignores anyway.
func canonicalQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(q))), " ")
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
}

func New(store Store, ttl time.Duration, breaker *resilience.CircuitBreaker) *QueryCache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached response. Store failures count as misses.
func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.Response, bool) {
	k := key.String()
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, k)
		if errors.Is(err, pkgredis.ErrMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		c.logger.Debug("cache get failed", "key", k, "error", err)
		return nil, false
	}
	if data == nil {
		c.misses.Add(1)
		return nil, false
	}
	var resp executor.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.errs.Add(1)
		c.misses.Add(1)
		c.logger.Warn("dropping undecodable cache entry", "key", k, "error", err)
		return nil, false
	}
	c.hits.Add(1)
	return &resp, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, resp *executor.Response) {
	k := key.String()
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error { return c.store.Set(ctx, k, data, c.ttl) }); err != nil {
		c.errs.Add(1)
		c.logger.Debug("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute serves key from the cache or runs compute once for all
// concurrent callers of the same key. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*executor.Response, error),
) (*executor.Response, bool, error) {
	if resp, ok := c.Get(ctx, key); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Response), false, nil
}

// Invalidate deletes cached responses for mode, or for every mode when mode
// is empty.
func (c *QueryCache) Invalidate(ctx context.Context, mode string) (int64, error) {
	prefix := keyPrefix
	if mode != "" {
		prefix += mode + ":"
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.DeletePrefix(ctx, prefix)
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "prefix", prefix, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}
