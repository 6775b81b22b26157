package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig holds connection settings for the Redis store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // Zero keeps entries forever
}

// Redis keeps vectors in a shared Redis instance
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, ttl: config.TTL}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool, error) {
	buf, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	vector, err := decodeVector(buf)
	if err != nil {
		return nil, false, err
	}
	return vector, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, vector []float32) error {
	return r.client.Set(ctx, key, encodeVector(vector), r.ttl).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
