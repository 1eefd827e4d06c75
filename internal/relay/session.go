package relay

import (
	"context"
	"sync"
)

// SessionStore tracks the relay session whose output is currently forwarded.
// Only one session is current; beginning a new one supersedes the previous.
type SessionStore interface {
	// Begin makes id the current session.
	Begin(ctx context.Context, id string) error

	// IsCurrent reports whether id is still the current, unstopped session.
	IsCurrent(ctx context.Context, id string) (bool, error)

	// Active reports whether any session is current.
	Active(ctx context.Context) (bool, error)

	// Stop marks the current session as stopped.
	Stop(ctx context.Context) error

	// End clears the current session if it is still id.
	End(ctx context.Context, id string) error

	// Close releases the store.
	Close() error
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu      sync.Mutex
	current string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Begin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = id
	return nil
}

func (m *MemoryStore) IsCurrent(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != "" && m.current == id, nil
}

func (m *MemoryStore) Active(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != "", nil
}

func (m *MemoryStore) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = ""
	return nil
}

func (m *MemoryStore) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == id {
		m.current = ""
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
