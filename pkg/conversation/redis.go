package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	conversationKeyPrefix = "conversation:"
	defaultTTL            = 24 * time.Hour
)

// RedisStore keeps each conversation as a Redis list of JSON-encoded turns
// with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	key := s.key(sessionID)
	raw, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var turn Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	// Sliding expiry: reading a conversation keeps it alive.
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := s.key(sessionID)
	values := make([]any, 0, len(turns))
	for _, turn := range turns {
		val, err := json.Marshal(turn)
		if err != nil {
			return err
		}
		values = append(values, val)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return conversationKeyPrefix + sessionID
}
