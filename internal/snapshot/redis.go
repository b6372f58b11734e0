package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sujalbistaa/moments/internal/models"
)

// Redis keeps the snapshot in a single string key.
type Redis struct {
	cli *redis.Client
	key string
}

// NewRedis connects to the Redis server at url and pings it to ensure the
// connection is working.
func NewRedis(ctx context.Context, url, key string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{cli: cli, key: key}, nil
}

func (r *Redis) Load(ctx context.Context) ([]models.Post, error) {
	data, err := r.cli.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}
	return decode(data)
}

func (r *Redis) Save(ctx context.Context, posts []models.Post) error {
	data, err := encode(posts)
	if err != nil {
		return err
	}
	if err := r.cli.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.cli.Close()
}
