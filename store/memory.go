package store

import "sync"

// MemoryStore implements CredentialStore using an in-memory map.
// Contents are lost when the process exits, so it is mostly useful for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore creates a new empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]string),
	}
}

// Load returns the stored credentials.
func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Credentials{
		User:  s.entries[KeyUser],
		Token: s.entries[KeyToken],
	}, nil
}

// Save replaces both entries.
func (s *MemoryStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[KeyUser] = creds.User
	s.entries[KeyToken] = creds.Token
	return nil
}

// Clear removes both entries.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, KeyUser)
	delete(s.entries, KeyToken)
	return nil
}

// Set writes a single raw entry, bypassing the paired write.
// It exists to simulate corrupted or half-written storage.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
