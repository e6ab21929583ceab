// Package redis keeps the posting index in a Redis list.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKey = "harvest:posting_index"

// Config describes the Redis connection and list key.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewClient opens a client for cfg and verifies it with PING.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("index.redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// IndexStore maps row n of the index to list element n-1.
type IndexStore struct {
	client redis.Cmdable
	key    string
	logger *zap.Logger
}

// NewIndexStore wraps client.
func NewIndexStore(client redis.Cmdable, key string, logger *zap.Logger) (*IndexStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = defaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexStore{client: client, key: key, logger: logger}, nil
}

// LoadIdentifiers returns the whole list.
func (s *IndexStore) LoadIdentifiers(ctx context.Context) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", s.key, err)
	}
	return ids, nil
}

// AppendIdentifiers writes ids at positions offset onward. Positions that
// already exist are overwritten and the remainder is pushed.
func (s *IndexStore) AppendIdentifiers(ctx context.Context, offset int, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return fmt.Errorf("llen %s: %w", s.key, err)
	}
	if n != int64(offset) {
		s.logger.Warn("index length differs from snapshot",
			zap.String("key", s.key), zap.Int64("length", n), zap.Int("offset", offset))
	}

	var push []any
	for i, id := range ids {
		pos := int64(offset + i)
		if pos < n {
			if err := s.client.LSet(ctx, s.key, pos, id).Err(); err != nil {
				return fmt.Errorf("lset %s[%d]: %w", s.key, pos, err)
			}
			continue
		}
		push = append(push, id)
	}
	if len(push) == 0 {
		return nil
	}
	if err := s.client.RPush(ctx, s.key, push...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", s.key, err)
	}
	return nil
}
