package authsdk

import (
	"context"
	"sync"
)

// SessionStore persists the logged-in user between restarts of the client.
// Tokens are not part of it; they live in the cookie jar.
type SessionStore interface {
	Load(ctx context.Context) (*User, error)
	Save(ctx context.Context, u User) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the user in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	user *User
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

// Load returns nil when nothing is stored.
func (m *MemoryStore) Load(context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, nil
	}
	u := *m.user
	return &u, nil
}

func (m *MemoryStore) Save(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &u
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}
