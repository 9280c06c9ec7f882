// session/redis.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to session IDs to form Redis keys.
const DefaultKeyPrefix = "docverify:session:"

// RedisStore implements Redis-backed session storage. Each session is a
// JSON value under <prefix><id> whose TTL matches the session expiry.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisStoreConfig configures the Redis store.
type RedisStoreConfig struct {
	// Client is an existing Redis client.
	// If provided, other connection options are ignored.
	Client redis.UniversalClient

	// Address is the Redis server address.
	Address string

	// Password for Redis authentication.
	Password string

	// DB is the database number.
	DB int

	// KeyPrefix is prepended to session keys.
	// Default: "docverify:session:".
	KeyPrefix string

	// PoolSize is the connection pool size.
	// Default: 10.
	PoolSize int
}

// NewRedisStore creates a Redis store with an existing client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
	}
}

// NewRedisStoreWithConfig creates a Redis store with custom configuration.
// It pings the server before returning.
func NewRedisStoreWithConfig(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	var client redis.UniversalClient

	if cfg.Client != nil {
		client = cfg.Client
	} else {
		if cfg.Address == "" {
			return nil, errors.New("session: redis address required")
		}

		poolSize := cfg.PoolSize
		if poolSize == 0 {
			poolSize = 10
		}

		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: poolSize,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// Key returns the full Redis key for a session ID.
func (s *RedisStore) Key(id string) string {
	return s.keyPrefix + id
}

// Load retrieves a session by ID.
func (s *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}

	if sess.IsExpired() {
		return nil, ErrExpired
	}

	return &sess, nil
}

// Save stores a session. Sessions that are already expired are not written.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidSession
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	return s.client.Set(ctx, s.Key(sess.ID), sess, ttl).Err()
}

// Delete removes a session by ID.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.Key(id)).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
