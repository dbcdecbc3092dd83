package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/seedrank/backend/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func TestNewClient_Disabled(t *testing.T) {
	assert.False(t, disabledClient(t).Enabled())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), ScreenerRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, ScreenerRateLimit.Limit, remaining)
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")

	var result string
	found, err := cache.Get(context.Background(), "key", &result)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Set(context.Background(), "key", "v", TTLShort))
}

type cachedUniverse struct {
	Symbols []string `json:"symbols"`
}

func TestCache_SetThenGet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(rdb), "seedrank")
	ctx := context.Background()

	value := cachedUniverse{Symbols: []string{"AAPL", "MSFT"}}
	data, err := json.Marshal(value)
	require.NoError(t, err)

	mock.ExpectSet("seedrank:cache:universe:abc", data, TTLShort).SetVal("OK")
	mock.ExpectGet("seedrank:cache:universe:abc").SetVal(string(data))

	require.NoError(t, cache.Set(ctx, UniverseKey("abc"), value, TTLShort))

	var got cachedUniverse
	found, err := cache.Get(ctx, UniverseKey("abc"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, value, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_Miss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(rdb), "seedrank")

	mock.ExpectGet("seedrank:cache:quotes:x").RedisNil()

	var got cachedUniverse
	found, err := cache.Get(context.Background(), QuotesKey("x"), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_BackendError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(rdb), "seedrank")

	mock.ExpectGet("seedrank:cache:quotes:x").SetErr(errors.New("connection reset"))

	var got cachedUniverse
	found, err := cache.Get(context.Background(), QuotesKey("x"), &got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestCache_Delete(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(NewFromClient(rdb), "seedrank")

	mock.ExpectDel("seedrank:cache:universe:abc").SetVal(1)
	require.NoError(t, cache.Delete(context.Background(), UniverseKey("abc")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "universe:h1", UniverseKey("h1"))
	assert.Equal(t, "quotes:h2", QuotesKey("h2"))
}
