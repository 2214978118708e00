package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/internal/database"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey = "relay:online_users"

	onlineStatusTTL  = 5 * time.Minute
	offlineStatusTTL = 24 * time.Hour
)

type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

// Ping checks that Redis answers
func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

func userStatusKey(userID string) string {
	return fmt.Sprintf("relay:user:%s:status", userID)
}

// =============================================================================
// User Presence
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	pipe := r.client.GetClient().Pipeline()

	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, userStatusKey(userID), onlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	pipe := r.client.GetClient().Pipeline()

	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, userStatusKey(userID), offlineStatusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

// UserStatus returns the stored status hash, empty when the user was never seen
func (r *RedisService) UserStatus(ctx context.Context, userID string) (map[string]string, error) {
	return r.client.GetClient().HGetAll(ctx, userStatusKey(userID)).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit under key and reports whether the sliding
// window still has room for it
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() < int64(limit), nil
}
