package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dllu1/go-chatroom/internal/domain"
)

const keyPrefix = "chatroom:history"

// RedisHistoryCache implements HistoryCache backed by Redis.
type RedisHistoryCache struct {
	client *redis.Client
}

func NewRedisHistoryCache(client *redis.Client) *RedisHistoryCache {
	return &RedisHistoryCache{client: client}
}

func historyKey(limit int) string {
	return fmt.Sprintf("%s:%d", keyPrefix, limit)
}

func (c *RedisHistoryCache) GetRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	data, err := c.client.Get(ctx, historyKey(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return messages, nil
}

func (c *RedisHistoryCache) SetRecent(ctx context.Context, limit int, messages []domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(limit), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	return nil
}
