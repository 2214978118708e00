package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"chat-relay/internal/database"
	"chat-relay/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisService connects to a local Redis or skips the test
func newTestRedisService(t *testing.T) *RedisService {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping test")
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisService(database.NewRedisClientFrom(client, logger.Default()))
}

func TestRedisServicePing(t *testing.T) {
	svc := newTestRedisService(t)
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestPresenceRoundTrip(t *testing.T) {
	svc := newTestRedisService(t)
	ctx := context.Background()
	userID := fmt.Sprintf("test-%d", time.Now().UnixNano())

	require.NoError(t, svc.SetUserOnline(ctx, userID))

	online, err := svc.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	status, err := svc.UserStatus(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "online", status["status"])

	require.NoError(t, svc.SetUserOffline(ctx, userID))

	online, err = svc.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestCheckRateLimit(t *testing.T) {
	svc := newTestRedisService(t)
	ctx := context.Background()
	key := fmt.Sprintf("relay:test:rate:%d", time.Now().UnixNano())

	for i := 0; i < 3; i++ {
		allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d should be allowed", i+1)
	}

	allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
