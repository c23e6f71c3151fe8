package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/resilience"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (b *memBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	v, ok := b.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.data[key] = string(value.([]byte))
	b.ttls[key] = ttl
	return nil
}

func (b *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func TestGetOrComputeCaches(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Hour, nil)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func() (*compare.Report, error) {
		calls.Add(1)
		return &compare.Report{Fingerprint: "fp1", Seed: 42}, nil
	}

	r, cached, err := c.GetOrCompute(ctx, "fp1", compute)
	require.NoError(t, err)
	require.False(t, cached)
	require.EqualValues(t, 42, r.Seed)

	r, cached, err = c.GetOrCompute(ctx, "fp1", compute)
	require.NoError(t, err)
	require.True(t, cached)
	require.EqualValues(t, 42, r.Seed)
	require.EqualValues(t, 1, calls.Load())

	require.Contains(t, backend.data, "cmp:fp1")
	require.Equal(t, time.Hour, backend.ttls["cmp:fp1"])

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)
}

func TestGetOrComputeCollapsesConcurrentCalls(t *testing.T) {
	c := New(newMemBackend(), time.Hour, nil)
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	compute := func() (*compare.Report, error) {
		calls.Add(1)
		<-release
		return &compare.Report{Fingerprint: "fp"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(ctx, "fp", compute)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, calls.Load(), int32(2))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Hour, nil)

	_, _, err := c.GetOrCompute(context.Background(), "fp", func() (*compare.Report, error) {
		return nil, errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Empty(t, backend.data)
}

func TestBackendFailureOpensBreaker(t *testing.T) {
	backend := newMemBackend()
	backend.err = errors.New("connection refused")
	c := New(backend, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "fp")
		require.False(t, ok)
	}
	require.Equal(t, resilience.StateOpen, c.BreakerState())

	r, cached, err := c.GetOrCompute(ctx, "fp", func() (*compare.Report, error) {
		return &compare.Report{Fingerprint: "fp", Seed: 7}, nil
	})
	require.NoError(t, err)
	require.False(t, cached)
	require.EqualValues(t, 7, r.Seed)
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	backend.data["other:key"] = "x"
	c := New(backend, time.Hour, nil)
	ctx := context.Background()

	c.Set(ctx, &compare.Report{Fingerprint: "a"})
	c.Set(ctx, &compare.Report{Fingerprint: "b"})

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Contains(t, backend.data, "other:key")

	_, ok := c.Get(ctx, "a")
	require.False(t, ok)
}
