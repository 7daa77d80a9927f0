package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/mascot/config"
)

const keyPrefix = "mascot:"

// RedisStore shares cache entries between server instances.
type RedisStore struct {
	client *redis.Client
}

// Conn dials Redis and verifies the connection with PING.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Password:     pass,
		DB:           db,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s:%s: %w", host, port, err)
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

// Set stores value under key. A ttl <= 0 keeps the entry until overwritten.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Open returns the cache backend described by cfg: Redis when a host is
// configured, process memory otherwise. The returned close func is never nil.
func Open(ctx context.Context, cfg config.RedisConfig) (Store, func() error, error) {
	if !cfg.Enabled() {
		return NewMemoryStore(SystemClock{}), func() error { return nil }, nil
	}
	client, err := Conn(ctx, cfg.Host, cfg.Port, cfg.Password, cfg.DB, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	store := NewRedisStore(client)
	return store, store.Close, nil
}
