package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares search responses between API instances. Entries expire with the
// Redis key TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "search:people:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(query string) string {
	return c.prefix + query
}

// Get returns the cached results for a normalised query. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, query string) ([]Person, bool, error) {
	data, err := c.client.Get(ctx, c.key(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached search: %w", err)
	}

	var people []Person
	if err := json.Unmarshal(data, &people); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached search: %w", err)
	}
	return people, true, nil
}

func (c *RedisCache) Set(ctx context.Context, query string, people []Person) error {
	if people == nil {
		people = []Person{}
	}
	data, err := json.Marshal(people)
	if err != nil {
		return fmt.Errorf("marshal search results: %w", err)
	}
	if err := c.client.Set(ctx, c.key(query), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache search results: %w", err)
	}
	return nil
}

// Clear drops every cached search.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached searches: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear cached searches: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
