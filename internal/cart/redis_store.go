package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each cart in a hash keyed by session, one field per product.
// Every write refreshes the cart's TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return "cart:" + sessionID
}

func (s *RedisStore) Lines(ctx context.Context, sessionID string) ([]Line, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall cart: %w", err)
	}

	lines := make([]Line, 0, len(fields))
	for productID, raw := range fields {
		var ln Line
		if err := json.Unmarshal([]byte(raw), &ln); err != nil {
			return nil, fmt.Errorf("decode cart line %s: %w", productID, err)
		}
		ln.ProductID = productID
		lines = append(lines, ln)
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AddedAt.Equal(lines[j].AddedAt) {
			return lines[i].AddedAt.Before(lines[j].AddedAt)
		}
		return lines[i].ProductID < lines[j].ProductID
	})
	return lines, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, ln Line) error {
	raw, err := json.Marshal(ln)
	if err != nil {
		return fmt.Errorf("encode cart line: %w", err)
	}

	key := s.key(sessionID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, ln.ProductID, raw)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put cart line: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID, productID string) (bool, error) {
	key := s.key(sessionID)

	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, key, productID)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cart line: %w", err)
	}
	return removed.Val() > 0, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
