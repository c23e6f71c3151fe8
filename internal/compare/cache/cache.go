// Package cache keeps finished comparison reports in Redis, keyed by the
// run fingerprint, so identical runs are served without recomputing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
)

const keyPrefix = "cmp:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ReportCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	m       *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ReportCache. While the breaker is open every lookup is a
// miss and writes are dropped. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ReportCache {
	c := &ReportCache{
		backend: backend,
		ttl:     ttl,
		m:       m,
		logger:  slog.Default().With("component", "report-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("report-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

func Key(fingerprint string) string { return keyPrefix + fingerprint }

func (c *ReportCache) miss() {
	c.misses.Add(1)
	if c.m != nil {
		c.m.ReportCacheMissTotal.Inc()
	}
}

func (c *ReportCache) Get(ctx context.Context, fingerprint string) (*compare.Report, bool) {
	key := Key(fingerprint)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			// absent keys are not backend failures
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == "" {
		c.miss()
		return nil, false
	}
	var r compare.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.m != nil {
		c.m.ReportCacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &r, true
}

// Set stores r under its own fingerprint.
func (c *ReportCache) Set(ctx context.Context, r *compare.Report) {
	c.put(ctx, Key(r.Fingerprint), r)
}

func (c *ReportCache) put(ctx context.Context, key string, r *compare.Report) {
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached report for fingerprint or runs compute,
// collapsing concurrent calls for the same fingerprint into one. cached
// reports whether the result came from Redis.
func (c *ReportCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	compute func() (*compare.Report, error),
) (report *compare.Report, cached bool, err error) {
	if r, ok := c.Get(ctx, fingerprint); ok {
		return r, true, nil
	}
	key := Key(fingerprint)
	val, err, _ := c.group.Do(key, func() (any, error) {
		if r, ok := c.Get(ctx, fingerprint); ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return nil, err
		}
		c.put(ctx, key, r)
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*compare.Report), false, nil
}

// Invalidate drops every cached report.
func (c *ReportCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating report cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ReportCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ReportCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}
