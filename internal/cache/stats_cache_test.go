package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/stats"
)

type fakeClient struct {
	values  map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestStatsCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	c := NewStatsCache(client, time.Minute, nil, nil)

	_, ok := c.Get(ctx)
	assert.False(t, ok)

	avg := 4.5
	snapshot := stats.Aggregate(nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	snapshot.Total = 7
	snapshot.SatisfactionAverage = &avg
	require.NoError(t, c.Set(ctx, snapshot))
	assert.Equal(t, time.Minute, client.ttls[statsKey])

	got, ok := c.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, 7, got.Total)
	require.NotNil(t, got.SatisfactionAverage)
	assert.Equal(t, 4.5, *got.SatisfactionAverage)
	assert.Nil(t, got.AverageResponseTime)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx)
	assert.False(t, ok)
}

func TestStatsCacheDegradesToMiss(t *testing.T) {
	ctx := context.Background()

	client := newFakeClient()
	client.failGet = errors.New("connection refused")
	_, ok := NewStatsCache(client, time.Minute, nil, nil).Get(ctx)
	assert.False(t, ok)

	client = newFakeClient()
	client.values[statsKey] = "{not json"
	_, ok = NewStatsCache(client, time.Minute, nil, nil).Get(ctx)
	assert.False(t, ok)
}

func TestStatsCacheDisabled(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*StatsCache{
		"nil client": NewStatsCache(nil, time.Minute, nil, nil),
		"zero ttl":   NewStatsCache(newFakeClient(), 0, nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, c.Enabled())
			require.NoError(t, c.Set(ctx, stats.Stats{Total: 1}))
			_, ok := c.Get(ctx)
			assert.False(t, ok)
			assert.NoError(t, c.Invalidate(ctx))
		})
	}
}
