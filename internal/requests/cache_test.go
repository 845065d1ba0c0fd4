package requests

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheVersionAndKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, keySeries(3, 50)...)
	require.NoError(t, err)
	assert.Equal(t, "requests:series:3:50:1", key)

	ver, err := cache.Bump(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)
	key, err = cache.BuildKey(ctx, keySeries(3, 50)...)
	require.NoError(t, err)
	assert.Equal(t, "requests:series:3:50:2", key)
}

func TestCacheFetchJSONUsesLoaderOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": 7}, nil
	}
	for i := 0; i < 2; i++ {
		var got map[string]int
		require.NoError(t, cache.FetchJSON(context.Background(), "k", &got, loader))
		assert.Equal(t, 7, got["n"])
	}
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists("k"))
}

func TestNilCacheFallsThrough(t *testing.T) {
	var cache *Cache
	var got int
	require.NoError(t, cache.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) { return 5, nil }))
	assert.Equal(t, 5, got)
	ver, err := cache.Bump(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ver)
}

func TestCacheSubscribeReceivesBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewCache(client, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 1)
	require.NoError(t, cache.Subscribe(ctx, func(v int64) { got <- v }))
	_, err := cache.Bump(ctx)
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not delivered")
	}
}
