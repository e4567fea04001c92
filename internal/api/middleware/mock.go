// Package middleware provides HTTP middleware components for the Snapmap API.
package middleware

import (
	"context"

	"github.com/snapmap-io/snapmap/internal/storage"
)

// MockCredentialStore is a mock implementation of storage.CredentialStore for testing.
type MockCredentialStore struct {
	FindByKeyFunc  func(ctx context.Context, key string) (*storage.Credential, bool)
	AddFunc        func(ctx context.Context, cred *storage.Credential) error
	UpdateFunc     func(ctx context.Context, cred *storage.Credential) error
	DeleteFunc     func(ctx context.Context, credID string) error
	ListByUserFunc func(ctx context.Context, userID string) ([]*storage.Credential, error)
}

// FindByKey implements storage.CredentialStore.FindByKey.
func (m *MockCredentialStore) FindByKey(ctx context.Context, key string) (*storage.Credential, bool) {
	if m.FindByKeyFunc != nil {
		return m.FindByKeyFunc(ctx, key)
	}

	return nil, false
}

// Add implements storage.CredentialStore.Add.
func (m *MockCredentialStore) Add(ctx context.Context, cred *storage.Credential) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, cred)
	}

	return nil
}

// Update implements storage.CredentialStore.Update.
func (m *MockCredentialStore) Update(ctx context.Context, cred *storage.Credential) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, cred)
	}

	return nil
}

// Delete implements storage.CredentialStore.Delete.
func (m *MockCredentialStore) Delete(ctx context.Context, credID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, credID)
	}

	return nil
}

// ListByUser implements storage.CredentialStore.ListByUser.
func (m *MockCredentialStore) ListByUser(ctx context.Context, userID string) ([]*storage.Credential, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}

	return []*storage.Credential{}, nil
}
