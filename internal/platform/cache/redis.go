package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects the Redis instance backing the session cache, the user
// pub/sub channels and the job queue.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// RedisOptions converts o into go-redis client options.
func (o Options) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
}

// New creates a Redis client and verifies it with a ping.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(opts.RedisOptions())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", opts.Addr, err)
	}

	return client, nil
}
