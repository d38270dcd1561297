package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/ids"
)

// Redis keeps attempt timestamps in a sorted set per key, scored by
// UnixNano, so several API processes share one window.
type Redis struct {
	client *redis.Client
	max    int
	window time.Duration
	clock  clock.Clock
}

func NewRedis(client *redis.Client, max int, window time.Duration, clk clock.Clock) *Redis {
	if clk == nil {
		clk = clock.Real()
	}
	return &Redis{client: client, max: max, window: window, clock: clk}
}

func (l *Redis) getKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

// Allow trims, counts and adds in one MULTI, so concurrent callers each see
// the count that precedes their own member.
func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock.Now()
	redisKey := l.getKey(key)
	windowStart := now.Add(-l.window).UnixNano()
	member := ids.New()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	zcard := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, redisKey, l.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcard.Val())
	if count < l.max {
		return Decision{Allowed: true, Remaining: l.max - count - 1, Reservation: member}, nil
	}

	// Rejected attempts do not hold a slot.
	if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		return Decision{}, fmt.Errorf("drop rejected attempt: %w", err)
	}
	oldest, err := l.client.ZRangeWithScores(ctx, redisKey, int64(count-l.max), int64(count-l.max)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("read oldest attempt: %w", err)
	}
	retry := l.window
	if len(oldest) == 1 {
		at := time.Unix(0, int64(oldest[0].Score))
		retry = at.Add(l.window).Sub(now)
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

func (l *Redis) Release(ctx context.Context, key, reservation string) error {
	if reservation == "" {
		return nil
	}
	if err := l.client.ZRem(ctx, l.getKey(key), reservation).Err(); err != nil {
		return fmt.Errorf("release attempt: %w", err)
	}
	return nil
}
