package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists request records in one sorted set per (class, ip),
// scored by unix nanoseconds. Members are random so two records in the same
// nanosecond both count. Keys expire a window after the last write, so idle
// clients cost nothing.
type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore returns a RedisStore over client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func redisKey(class Class, ip string) string {
	return "ratelimit:" + string(class) + ":" + ip
}

// Add appends one record and refreshes the key TTL.
func (s *RedisStore) Add(ctx context.Context, class Class, ip string, now time.Time) error {
	k := redisKey(class, ip)
	pipe := s.Client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, k, Window)
	_, err := pipe.Exec(ctx)
	return err
}

// CountSince prunes records older than since and counts the remainder.
func (s *RedisStore) CountSince(ctx context.Context, class Class, ip string, since time.Time) (int, error) {
	k := redisKey(class, ip)
	min := strconv.FormatInt(since.UnixNano(), 10)

	pipe := s.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+min)
	card := pipe.ZCount(ctx, k, min, "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}
