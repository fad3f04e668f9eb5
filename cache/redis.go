package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Logical database layout on the shared broker instance. The port is fixed
// at 6379 across the fleet.
const (
	BrokerDB = 0 // task queue lists and celery-task-meta result keys
	RangesDB = 1 // opening ranges keyed by YYYY-MM-DD
	SeriesDB = 2 // compressed intraday series keyed by YYYY-MM-DD
)

// RedisClient wraps redis.Client for one logical database.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to one logical database on the broker host.
func NewRedisClient(host, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:6379", host),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis db %d at %s: %w", db, host, err)
	}

	return &RedisClient{client: client}, nil
}

// Client returns the underlying redis client for pipelined operations.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// SetJSON marshals a value and stores it under key.
func (r *RedisClient) SetJSON(ctx context.Context, key string, value interface{}) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, jsonBytes, 0).Err()
}

// GetJSON retrieves a key and unmarshals it into dest.
func (r *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// ScanKeys iterates the keyspace non-blockingly and returns every key
// matching the pattern.
func (r *RedisClient) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// MGet bulk-reads keys. Missing keys come back as empty strings.
func (r *RedisClient) MGet(ctx context.Context, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	values := make([]string, len(results))
	for i, result := range results {
		if str, ok := result.(string); ok {
			values[i] = str
		}
	}
	return values, nil
}

// Delete removes keys in one multi-delete round trip.
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// LPush pushes a raw payload onto a queue list.
func (r *RedisClient) LPush(ctx context.Context, queue string, payload string) error {
	return r.client.LPush(ctx, queue, payload).Err()
}

// BRPop blocks until a payload is available on the queue or the timeout
// elapses. A redis.Nil error means the timeout fired with nothing queued.
func (r *RedisClient) BRPop(ctx context.Context, timeout time.Duration, queue string) (string, error) {
	vals, err := r.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		return "", err
	}
	// BRPOP returns [key, value].
	if len(vals) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply length %d", len(vals))
	}
	return vals[1], nil
}

// QueueLen returns the current depth of a queue list.
func (r *RedisClient) QueueLen(ctx context.Context, queue string) (int64, error) {
	return r.client.LLen(ctx, queue).Result()
}

// IsNil reports whether an error is the redis missing-key sentinel.
func IsNil(err error) bool {
	return err == redis.Nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
