package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
)

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string]string)}
}

func (m *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return []byte(v), ok, nil
}

func (m *memoryBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = string(value)
	return nil
}

func (m *memoryBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestKeyCanonicalisesQueries(t *testing.T) {
	a, ok := Key(1, "red shoe", 10)
	require.True(t, ok)
	for _, q := range []string{"red OR shoe", "red || shoe", "  red   shoe ", "(red shoe)"} {
		b, ok := Key(1, q, 10)
		require.True(t, ok)
		assert.Equal(t, a, b, q)
	}

	other, _ := Key(1, "red AND shoe", 10)
	assert.NotEqual(t, a, other)
	other, _ = Key(1, "red shoe", 20)
	assert.NotEqual(t, a, other)
	other, _ = Key(2, "red shoe", 10)
	assert.NotEqual(t, a, other)

	_, ok = Key(1, "red AND", 10)
	assert.False(t, ok)
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(newMemoryBackend(), time.Minute, m)
	ctx := context.Background()

	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return &executor.SearchResult{Query: "shoe", GenerationID: 3, TotalHits: 1,
			Hits: []executor.Hit{{DocID: 0, Score: 1.5, Title: "Shoe"}}}, nil
	}

	res, hit, err := c.GetOrCompute(ctx, 3, "shoe", 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "Shoe", res.Hits[0].Title)

	res, hit, err = c.GetOrCompute(ctx, 3, "shoe", 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1.5, res.Hits[0].Score)
	assert.Equal(t, int32(1), calls.Load())

	// A new generation never sees results of the old one.
	_, hit, _ = c.GetOrCompute(ctx, 4, "shoe", 10, compute)
	assert.False(t, hit)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestGetOrComputeStoresUnderResultGeneration(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()

	// The generation advanced between the lookup and the execution.
	_, _, err := c.GetOrCompute(ctx, 1, "shoe", 10, func() (*executor.SearchResult, error) {
		return &executor.SearchResult{GenerationID: 2}, nil
	})
	require.NoError(t, err)

	_, ok := c.Get(ctx, 1, "shoe", 10)
	assert.False(t, ok)
	_, ok = c.Get(ctx, 2, "shoe", 10)
	assert.True(t, ok)
}

func TestGetOrComputeErrorsAreNotCached(t *testing.T) {
	c := New(newMemoryBackend(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), 1, "shoe", 10, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), 1, "shoe", 10)
	assert.False(t, ok)
}

func TestGetOrComputeUnparsableQueryBypassesCache(t *testing.T) {
	c := New(newMemoryBackend(), time.Minute, nil)
	called := false
	_, hit, err := c.GetOrCompute(context.Background(), 1, `"open`, 10, func() (*executor.SearchResult, error) {
		called = true
		return nil, errors.New("parse error")
	})
	assert.Error(t, err)
	assert.False(t, hit)
	assert.True(t, called)
}

func TestBackendFailureIsAMiss(t *testing.T) {
	backend := newMemoryBackend()
	backend.err = errors.New("connection refused")
	c := New(backend, time.Minute, nil)
	res, hit, err := c.GetOrCompute(context.Background(), 1, "shoe", 10, func() (*executor.SearchResult, error) {
		return &executor.SearchResult{GenerationID: 1}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, res)
}

func TestInvalidate(t *testing.T) {
	backend := newMemoryBackend()
	c := New(backend, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "shoe", 10, &executor.SearchResult{GenerationID: 1})
	c.Set(ctx, "boot", 10, &executor.SearchResult{GenerationID: 1})
	backend.data["unrelated"] = "x"

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, map[string]string{"unrelated": "x"}, backend.data)
}
