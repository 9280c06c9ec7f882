// auth/oauth2/store.go
package oauth2

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryState struct {
	payload   string
	expiresAt time.Time
}

// MemoryStateStore is an in-memory implementation of StateStore.
// Suitable for development and single-instance deployments.
// For production with multiple instances, use RedisStateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]memoryState
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]memoryState),
	}
}

// Save stores a state value with an expiration time.
func (s *MemoryStateStore) Save(_ context.Context, state, payload string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = memoryState{payload: payload, expiresAt: expiresAt}
	return nil
}

// Consume checks if a state exists and removes it.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return "", false, nil
	}
	// Always delete the state (one-time use)
	delete(s.states, state)
	if time.Now().After(st.expiresAt) {
		return "", false, nil
	}
	return st.payload, true, nil
}

// Cleanup removes all expired states. Call this periodically.
func (s *MemoryStateStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	count := 0
	for state, st := range s.states {
		if now.After(st.expiresAt) {
			delete(s.states, state)
			count++
		}
	}
	return count
}

// StartCleanupTask starts a background goroutine that periodically cleans up
// expired states. Returns a cancel function to stop the cleanup task.
func (s *MemoryStateStore) StartCleanupTask(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// DefaultStateKeyPrefix namespaces state keys in Redis.
const DefaultStateKeyPrefix = "docverify:oauth_state:"

// RedisStateStore keeps states in Redis so any instance can serve the
// callback. Expiry is enforced by key TTL.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStateStore creates a state store on client. An empty prefix uses
// DefaultStateKeyPrefix.
func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultStateKeyPrefix
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

// Save stores the payload under the state key with a TTL.
func (s *RedisStateStore) Save(ctx context.Context, state, payload string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.prefix+state, payload, ttl).Err()
}

// Consume atomically reads and deletes the state.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, bool, error) {
	payload, err := s.client.GetDel(ctx, s.prefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}
