// pkg/prefs/fake.go - in-memory Store for tests.

package prefs

import (
	"context"
	"fmt"
	"sync"
)

// FakeStore keeps preference values in a map keyed by user|domain|key. Keys
// listed in FailKeys error on write to exercise best-effort paths.
type FakeStore struct {
	mu       sync.Mutex
	Values   map[string]string
	FailKeys map[string]bool
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Values:   make(map[string]string),
		FailKeys: make(map[string]bool),
	}
}

// Key builds the map key used by FakeStore.
func Key(username, domain, key string) string {
	return username + "|" + domain + "|" + key
}

// Set seeds a value.
func (s *FakeStore) Set(username, domain, key, value string) {
	s.Values[Key(username, domain, key)] = value
}

// FailOn makes writes and deletes of the given key fail.
func (s *FakeStore) FailOn(username, domain, key string) {
	s.FailKeys[Key(username, domain, key)] = true
}

// Read implements Store.
func (s *FakeStore) Read(_ context.Context, username, domain, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Values[Key(username, domain, key)]
	if !ok {
		return "", ErrKeyMissing
	}
	return v, nil
}

func (s *FakeStore) write(username, domain, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := Key(username, domain, key)
	if s.FailKeys[k] {
		return fmt.Errorf("write rejected for %s", k)
	}
	s.Values[k] = value
	return nil
}

// WriteBool implements Store.
func (s *FakeStore) WriteBool(_ context.Context, username, domain, key string, value bool) error {
	if value {
		return s.write(username, domain, key, "1")
	}
	return s.write(username, domain, key, "0")
}

// WriteDate implements Store.
func (s *FakeStore) WriteDate(_ context.Context, username, domain, key, value string) error {
	return s.write(username, domain, key, value)
}

// Delete implements Store.
func (s *FakeStore) Delete(_ context.Context, username, domain, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := Key(username, domain, key)
	if s.FailKeys[k] {
		return fmt.Errorf("delete rejected for %s", k)
	}
	if _, ok := s.Values[k]; !ok {
		return ErrKeyMissing
	}
	delete(s.Values, k)
	return nil
}
