package pagecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix        = "sundae:page:"
	redisGenerationPrefix = "sundae:page-gen:"
)

// RedisCache keeps each profile's variants in one hash so invalidation is a single DEL.
// A counter per profile carries the generation.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the URL and verifies the server answers.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, profileID, variant string) ([]byte, bool, error) {
	page, err := c.client.HGet(ctx, redisKeyPrefix+profileID, variant).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return page, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, profileID string) (uint64, error) {
	return readGeneration(ctx, c.client, profileID)
}

// Set writes under WATCH on the generation counter. A concurrent invalidation aborts
// the write, which leaves the next request to render again.
func (c *RedisCache) Set(ctx context.Context, profileID, variant string, generation uint64, page []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	key := redisKeyPrefix + profileID
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, profileID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, variant, page)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, redisGenerationPrefix+profileID)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, profileID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+profileID)
		pipe.Incr(ctx, redisGenerationPrefix+profileID)
		return nil
	})
	return err
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, client stringGetter, profileID string) (uint64, error) {
	generation, err := client.Get(ctx, redisGenerationPrefix+profileID).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}
