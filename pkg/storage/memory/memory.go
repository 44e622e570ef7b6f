// Package memory provides an in-memory credential store for tests and
// single-instance deployments seeded from configuration. Credentials are
// lost when the process restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rhuss/hawkgate/pkg/auth"
	"github.com/rhuss/hawkgate/pkg/storage"
)

// Store is an in-memory CredentialStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]auth.Credentials
}

// Ensure Store implements storage.CredentialStore at compile time.
var _ storage.CredentialStore = (*Store)(nil)

// New creates a store holding the given credentials.
func New(seed ...*auth.Credentials) (*Store, error) {
	s := &Store{entries: make(map[string]auth.Credentials)}
	for _, c := range seed {
		if err := s.Put(context.Background(), c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Resolve returns a copy of the credential with the given id, or nil if
// there is none.
func (s *Store) Resolve(_ context.Context, id string) (*auth.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// Create adds a credential.
func (s *Store) Create(_ context.Context, creds *auth.Credentials) error {
	if err := storage.Check(creds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[creds.ID]; exists {
		return storage.ErrConflict
	}
	s.entries[creds.ID] = *creds
	return nil
}

// Put creates or replaces a credential.
func (s *Store) Put(_ context.Context, creds *auth.Credentials) error {
	if err := storage.Check(creds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[creds.ID] = *creds
	return nil
}

// Delete removes a credential.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// List returns copies of all credentials ordered by id.
func (s *Store) List(_ context.Context) ([]*auth.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*auth.Credentials, 0, len(s.entries))
	for _, c := range s.entries {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
