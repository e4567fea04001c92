package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/snapmap-io/snapmap/internal/config"
)

// PersistentCredentialStore implements CredentialStore with a PostgreSQL backend.
// Only bcrypt hashes are persisted; the plaintext key exists exactly once, in
// the provisioning response.
type PersistentCredentialStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentCredentialStore creates a PostgreSQL-backed credential store.
func NewPersistentCredentialStore(conn *Connection) (*PersistentCredentialStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &PersistentCredentialStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// FindByKey retrieves a credential by its key value using bcrypt hash comparison.
// Queries all active credentials and compares hashes in-memory (acceptable
// for a device fleet of a few thousand keys).
// Returns (nil, false) if the key is not found or invalid.
func (s *PersistentCredentialStore) FindByKey(ctx context.Context, key string) (*Credential, bool) {
	if key == "" {
		return nil, false
	}

	query := `
		SELECT id, key_hash, user_id, name, created_at, expires_at, active
		FROM device_credentials
		WHERE active = TRUE
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, false
	}

	defer func() {
		_ = rows.Close()
	}()

	var found *Credential

	// Bcrypt hashes are salted, so equality needs a comparison per row.
	for rows.Next() {
		var cred Credential

		err := rows.Scan(
			&cred.ID,
			&cred.Key, // The stored hash; compared below, masked before returning
			&cred.UserID,
			&cred.Name,
			&cred.CreatedAt,
			&cred.ExpiresAt,
			&cred.Active,
		)
		if err != nil {
			continue
		}

		if CompareDeviceKeyHash(cred.Key, key) {
			cred.Key = MaskKey(cred.Key)
			found = &cred

			break
		}
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("failed to find device key",
			slog.String("key", MaskKey(key)), slog.String("error", err.Error()))

		return nil, false
	}

	return found, found != nil
}

// Add stores a new credential with bcrypt hashing.
// The plaintext key is hashed with bcrypt (cost=10) before storage.
func (s *PersistentCredentialStore) Add(ctx context.Context, cred *Credential) error {
	if cred == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if cred.UserID == "" {
		return ErrUserIDEmpty
	}

	// Bcrypt generates different hashes for the same input, so duplicate
	// detection needs a comparison pass over existing keys.
	if existing, found := s.FindByKey(ctx, cred.Key); found && existing != nil {
		return ErrKeyAlreadyExists
	}

	keyHash, err := HashDeviceKey(cred.Key)
	if err != nil {
		return fmt.Errorf("failed to hash device key: %w", err)
	}

	query := `
		INSERT INTO device_credentials (id, key_hash, user_id, name, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.conn.ExecContext(
		ctx,
		query,
		cred.ID,
		keyHash,
		cred.UserID,
		cred.Name,
		cred.CreatedAt,
		cred.ExpiresAt,
		cred.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to insert device credential: %w", err)
	}

	s.logger.Info("device credential created",
		slog.String("credential_id", cred.ID),
		slog.String("user_id", cred.UserID),
	)

	return nil
}

// Update modifies an existing credential's name, active status, and expiration.
// The key hash itself cannot be updated for security reasons.
func (s *PersistentCredentialStore) Update(ctx context.Context, cred *Credential) error {
	if cred == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	if cred.ID == "" {
		return ErrKeyNotFound
	}

	query := `
		UPDATE device_credentials
		SET name = $1, active = $2, expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`

	result, err := s.conn.ExecContext(ctx, query, cred.Name, cred.Active, cred.ExpiresAt, cred.ID)
	if err != nil {
		return fmt.Errorf("failed to update device credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// Delete performs a soft delete by setting active=FALSE.
// The row is kept for audit trail purposes.
func (s *PersistentCredentialStore) Delete(ctx context.Context, credID string) error {
	if credID == "" {
		return ErrKeyNotFound
	}

	query := `
		UPDATE device_credentials
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.conn.ExecContext(ctx, query, credID)
	if err != nil {
		return fmt.Errorf("failed to delete device credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	s.logger.Info("device credential deactivated", slog.String("credential_id", credID))

	return nil
}

// ListByUser returns all active credentials for a specific user,
// newest first. Key hashes are masked.
func (s *PersistentCredentialStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	if userID == "" {
		return nil, ErrUserIDEmpty
	}

	query := `
		SELECT id, key_hash, user_id, name, created_at, expires_at, active
		FROM device_credentials
		WHERE user_id = $1 AND active = TRUE
		ORDER BY created_at DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device credentials: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	creds := make([]*Credential, 0)

	for rows.Next() {
		var cred Credential

		err := rows.Scan(
			&cred.ID,
			&cred.Key,
			&cred.UserID,
			&cred.Name,
			&cred.CreatedAt,
			&cred.ExpiresAt,
			&cred.Active,
		)
		if err != nil {
			continue
		}

		cred.Key = MaskKey(cred.Key)

		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return creds, nil
}
