package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
}

func newMemoryStore() *memoryStore { return &memoryStore{data: make(map[string][]byte)} }

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func response(method executor.Method, ids ...string) *executor.Response {
	resp := &executor.Response{Method: method, MethodLabel: method.Label(), Results: []executor.Hit{}}
	for i, id := range ids {
		resp.Results = append(resp.Results, executor.Hit{DocumentID: id, Score: 1 / float64(i+1), Method: method})
	}
	return resp
}

func TestGetOrComputeCachesResponses(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	key := Key{Mode: "vsm", Query: "Rose", Limit: 10}
	calls := 0
	compute := func() (*executor.Response, error) {
		calls++
		return response(executor.MethodDirect, "d1", "d2"), nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), Key{Mode: "vsm", Query: "  rose ", Limit: 10}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestKeysSeparateModeLimitAndGeneration(t *testing.T) {
	base := Key{Mode: "lsa", Query: "rose", Limit: 10, Generation: 1}
	assert.NotEqual(t, base.String(), Key{Mode: "vsm", Query: "rose", Limit: 10, Generation: 1}.String())
	assert.NotEqual(t, base.String(), Key{Mode: "lsa", Query: "rose", Limit: 5, Generation: 1}.String())
	assert.NotEqual(t, base.String(), Key{Mode: "lsa", Query: "rose", Limit: 10, Generation: 2}.String())
	assert.Equal(t, base.String(), Key{Mode: "lsa", Query: "ROSE", Limit: 10, Generation: 1}.String())
	assert.True(t, strings.HasPrefix(base.String(), "search:lsa:"))
}

func TestComputeErrorsAreNotCached(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Key{Mode: "vsm", Query: "x"}, func() (*executor.Response, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), Key{Mode: "vsm", Query: "x"})
	assert.False(t, ok)
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.Response, error) {
		calls.Add(1)
		<-release
		return response(executor.MethodFallback, "d3"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := c.GetOrCompute(context.Background(), Key{Mode: "vsm", Query: "églantine"}, compute)
			assert.NoError(t, err)
			assert.Equal(t, executor.MethodFallback, resp.Method)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestStoreFailuresTripBreakerAndServeUncached(t *testing.T) {
	store := newMemoryStore()
	store.fail = errors.New("connection refused")
	cb := resilience.NewCircuitBreaker("test-cache", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	c := New(store, time.Minute, cb)

	for i := 0; i < 3; i++ {
		resp, hit, err := c.GetOrCompute(context.Background(), Key{Mode: "vsm", Query: "rose"}, func() (*executor.Response, error) {
			return response(executor.MethodDirect, "d1"), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "d1", resp.Results[0].DocumentID)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())
	assert.Positive(t, c.Stats().Errors)
}

func TestInvalidateByMode(t *testing.T) {
	c := New(newMemoryStore(), time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Mode: "vsm", Query: "rose"}, response(executor.MethodDirect, "d1"))
	c.Set(ctx, Key{Mode: "lsa", Query: "rose", Generation: 1}, response(executor.MethodLSA, "d1"))

	n, err := c.Invalidate(ctx, "lsa")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok := c.Get(ctx, Key{Mode: "vsm", Query: "rose"})
	assert.True(t, ok)

	n, err = c.Invalidate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
