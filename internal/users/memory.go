package users

import (
	"context"
	"sync"
)

// MemoryStore keeps users in process memory. Used in development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]User
	byEmail    map[string]string
	byProvider map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]User),
		byEmail:    make(map[string]string),
		byProvider: make(map[string]string),
	}
}

func providerKey(provider, providerID string) string {
	return provider + "\x00" + providerID
}

// Create stores a copy of u.
func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := NormalizeEmail(u.Email)
	if _, ok := s.byEmail[emailKey]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := s.byID[u.ID]; ok {
		return ErrDuplicateEmail
	}
	if u.Provider != "" {
		if _, ok := s.byProvider[providerKey(u.Provider, u.ProviderID)]; ok {
			return ErrDuplicateEmail
		}
		s.byProvider[providerKey(u.Provider, u.ProviderID)] = u.ID
	}
	s.byID[u.ID] = *u
	s.byEmail[emailKey] = u.ID
	return nil
}

// ByID returns the user with the given ID.
func (s *MemoryStore) ByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

// ByEmail returns the user registered under email.
func (s *MemoryStore) ByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(id)
}

// ByProvider returns the user linked to a provider identity.
func (s *MemoryStore) ByProvider(_ context.Context, provider, providerID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerKey(provider, providerID)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(id)
}

// get must be called with the lock held.
func (s *MemoryStore) get(id string) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
