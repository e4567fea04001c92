package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserStoreFailed is returned when a user storage operation fails.
var ErrUserStoreFailed = errors.New("user storage operation failed")

const userColumns = `
	id, email, display_name, avatar_url, total_points, total_uploads, fcm_token, created_at, updated_at
`

// CreateUser inserts a new user. Email must be unique; inserting an existing
// email returns the existing row unchanged (upsert by email). Accounts are
// provisioned operationally through cmd/provision, not through an endpoint.
func (l *Ledger) CreateUser(ctx context.Context, email, displayName, avatarURL string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is empty", ErrUserStoreFailed)
	}

	query := fmt.Sprintf(`
		INSERT INTO users (email, display_name, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET updated_at = users.updated_at
		RETURNING %s
	`, userColumns)

	user, err := scanUser(l.conn.QueryRowContext(ctx, query, email, displayName, avatarURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	return user, nil
}

// GetUser retrieves a user by ID.
func (l *Ledger) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := scanUser(l.conn.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email.
func (l *Ledger) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)

	user, err := scanUser(l.conn.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	return user, nil
}

// SetFCMToken registers or replaces a user's push token.
// Passing nil unregisters the token.
func (l *Ledger) SetFCMToken(ctx context.Context, userID string, token *string) error {
	if userID == "" {
		return ErrUserNotFound
	}

	query := `
		UPDATE users
		SET fcm_token = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := l.conn.ExecContext(ctx, query, token, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// FCMToken returns the user's registered push token, or nil when none is set.
func (l *Ledger) FCMToken(ctx context.Context, userID string) (*string, error) {
	var token sql.NullString

	err := l.conn.QueryRowContext(ctx,
		`SELECT fcm_token FROM users WHERE id = $1`, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserStoreFailed, err)
	}

	if !token.Valid {
		return nil, nil
	}

	return &token.String, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user     User
		fcmToken sql.NullString
	)

	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.AvatarURL,
		&user.TotalPoints, &user.TotalUploads,
		&fcmToken, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if fcmToken.Valid {
		user.FCMToken = &fcmToken.String
	}

	return &user, nil
}
