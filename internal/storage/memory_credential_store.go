package storage

import (
	"context"
	"sync"
)

// InMemoryCredentialStore provides thread-safe in-memory storage for device
// credentials. Used by unit tests and local development; production uses
// PersistentCredentialStore.
type InMemoryCredentialStore struct {
	// keys maps key strings to Credential structs for fast lookup
	keys map[string]*Credential
	// keysByID maps credential IDs to Credential structs for ID-based operations
	keysByID map[string]*Credential
	// keysByUser maps user IDs to slices of Credential structs for user filtering
	keysByUser map[string][]*Credential
	// mutex protects concurrent access to all maps
	mutex sync.RWMutex
}

// NewInMemoryCredentialStore creates a new thread-safe in-memory credential store.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{
		keys:       make(map[string]*Credential),
		keysByID:   make(map[string]*Credential),
		keysByUser: make(map[string][]*Credential),
	}
}

// FindByKey retrieves a credential by its key value.
func (s *InMemoryCredentialStore) FindByKey(_ context.Context, key string) (*Credential, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cred, exists := s.keys[key]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	credCopy := *cred

	return &credCopy, true
}

// Add stores a new credential.
func (s *InMemoryCredentialStore) Add(_ context.Context, cred *Credential) error {
	if cred == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.keysByID[cred.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := s.keys[cred.Key]; exists {
		return ErrKeyAlreadyExists
	}

	credCopy := *cred

	s.keys[credCopy.Key] = &credCopy
	s.keysByID[credCopy.ID] = &credCopy
	s.keysByUser[credCopy.UserID] = append(s.keysByUser[credCopy.UserID], &credCopy)

	return nil
}

// Update modifies an existing credential.
func (s *InMemoryCredentialStore) Update(_ context.Context, cred *Credential) error {
	if cred == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[cred.ID]
	if !exists {
		return ErrKeyNotFound
	}

	s.removeFromUserMap(existing.UserID, existing.ID)

	if existing.Key != cred.Key {
		delete(s.keys, existing.Key)
	}

	credCopy := *cred

	s.keys[credCopy.Key] = &credCopy
	s.keysByID[credCopy.ID] = &credCopy
	s.keysByUser[credCopy.UserID] = append(s.keysByUser[credCopy.UserID], &credCopy)

	return nil
}

// Delete removes a credential.
func (s *InMemoryCredentialStore) Delete(_ context.Context, credID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.keysByID[credID]
	if !exists {
		return ErrKeyNotFound
	}

	delete(s.keys, existing.Key)
	delete(s.keysByID, credID)

	s.removeFromUserMap(existing.UserID, credID)

	return nil
}

// ListByUser returns all credentials for a specific user.
func (s *InMemoryCredentialStore) ListByUser(_ context.Context, userID string) ([]*Credential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	creds, exists := s.keysByUser[userID]
	if !exists {
		return []*Credential{}, nil // Empty slice for unknown users
	}

	// Return copies to prevent external modification
	result := make([]*Credential, len(creds))
	for i, cred := range creds {
		credCopy := *cred
		result[i] = &credCopy
	}

	return result, nil
}

// removeFromUserMap removes a credential from the user map by credential ID.
// Caller must hold write lock.
func (s *InMemoryCredentialStore) removeFromUserMap(userID, credID string) {
	creds := s.keysByUser[userID]
	for i, cred := range creds {
		if cred.ID == credID {
			s.keysByUser[userID] = append(creds[:i], creds[i+1:]...)

			break
		}
	}

	if len(s.keysByUser[userID]) == 0 {
		delete(s.keysByUser, userID)
	}
}
