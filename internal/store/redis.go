package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "examgrader:"

// RedisBackend keeps snapshots in Redis hashes with "value" and "version" fields.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedis connects to the server at url (redis://...).
func NewRedis(ctx context.Context, url string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

func (b *RedisBackend) Load(ctx context.Context, namespace string) ([]byte, int64, error) {
	return load(ctx, b.rdb, redisKeyPrefix+namespace)
}

func (b *RedisBackend) CompareAndSwap(ctx context.Context, namespace string, data []byte, expect int64) error {
	key := redisKeyPrefix + namespace
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		_, current, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expect {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "value", data, "version", expect+1)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func load(ctx context.Context, c hashReader, key string) ([]byte, int64, error) {
	vals, err := c.HMGet(ctx, key, "value", "version").Result()
	if err != nil {
		return nil, 0, err
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, nil
	}
	value, _ := vals[0].(string)
	rawVersion, _ := vals[1].(string)
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("parse snapshot version %q: %w", rawVersion, err)
	}
	return []byte(value), version, nil
}
