package transcript

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "azchat:transcript:"
	// Per-client cap; older turns are trimmed on write.
	redisMaxPerClient = 1000
)

// RedisStore archives turns as one capped JSON list per client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) SaveTurn(ctx context.Context, record Record) error {
	fill(&record)
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	key := redisKeyPrefix + record.ClientID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -redisMaxPerClient, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, clientID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	raw, err := s.client.LRange(ctx, redisKeyPrefix+clientID, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	items := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		items = append(items, rec)
	}
	return items, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
