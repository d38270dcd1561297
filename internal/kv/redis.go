package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// Redis stores JSON encoded values under prefix:key. A non-zero ttl is set
// on every write as a backstop for entries the sweeper never reaches.
type Redis[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis[V any](client *redis.Client, prefix string, ttl time.Duration) *Redis[V] {
	return &Redis[V]{client: client, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}
}

func (r *Redis[V]) key(k string) string {
	return r.prefix + ":" + k
}

func (r *Redis[V]) decode(raw string) (V, error) {
	var v V
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	v, err := r.decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (r *Redis[V]) Insert(ctx context.Context, key string, value V) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(key), payload, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (r *Redis[V]) Update(ctx context.Context, key string, fn func(V) (V, error)) (V, error) {
	var result V
	fullKey := r.key(key)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, fullKey).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := r.decode(raw)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			result = current
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, payload, r.ttl)
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, fullKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return result, err
	}
	return result, fmt.Errorf("update %s: too much contention", key)
}

func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *Redis[V]) DeleteFunc(ctx context.Context, pred func(string, V) bool) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		key := strings.TrimPrefix(fullKey, r.prefix+":")

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, fullKey).Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			v, err := r.decode(raw)
			if err != nil {
				return err
			}
			if !pred(key, v) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, fullKey)
				return nil
			})
			if err == nil {
				removed++
			}
			return err
		}, fullKey)
		// A concurrent writer touched the key; the next sweep will see it.
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return removed, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan keys: %w", err)
	}
	return removed, nil
}

func (r *Redis[V]) Range(ctx context.Context, fn func(string, V) bool) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), r.prefix+":")
		v, ok, err := r.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !fn(key, v) {
			return nil
		}
	}
	return iter.Err()
}
