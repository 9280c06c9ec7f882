// db/redis/redis.go
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is an alias for the go-redis client, re-exported for convenience.
type Client = redis.Client

// Connect opens a Redis connection and pings it before returning. addr may
// be "host:port" or a redis:// / rediss:// URL.
//
// The caller is responsible for calling client.Close() when done.
func Connect(addr string, timeout time.Duration) (*Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, err
		}
	}
	return ConnectWithOptions(opts, timeout)
}

// ConnectWithOptions opens a Redis connection with full configuration control.
// It performs a Ping to ensure the connection is usable before returning.
func ConnectWithOptions(opts *redis.Options, timeout time.Duration) (*Client, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// HealthCheck returns a health check function compatible with the health package.
func HealthCheck(client *Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
