package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenStore records issued refresh tokens by their JWT ID. A refresh token
// is honoured only while its record exists and is not revoked.
type TokenStore interface {
	Add(ctx context.Context, token *RefreshToken) error
	Get(ctx context.Context, id string) (*RefreshToken, error)
	Exists(ctx context.Context, id string) (bool, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenStore implements TokenStore using SQLite.
type SQLiteTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewTokenStore creates a new SQLite-backed refresh token store.
func NewTokenStore(db *sql.DB) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db, now: time.Now}
}

// Add records a newly issued refresh token.
func (s *SQLiteTokenStore) Add(ctx context.Context, token *RefreshToken) error {
	if token.ID == "" {
		return fmt.Errorf("%w: refresh token id is required", ErrInvalidInput)
	}

	now := s.now().UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, user_agent, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID, token.UserID, string(token.UserAgent),
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked), now,
	)
	if err != nil {
		return fmt.Errorf("adding refresh token: %w", err)
	}
	return nil
}

// Get returns the stored record for id, or ErrTokenInvalid if none exists.
func (s *SQLiteTokenStore) Get(ctx context.Context, id string) (*RefreshToken, error) {
	var t RefreshToken
	var agent, expiresAt, createdAt string
	var revoked int

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, user_agent, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &agent, &expiresAt, &revoked, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}

	t.UserAgent = UserAgent(agent)
	t.Revoked = revoked != 0
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &t, nil
}

// Exists reports whether id is recorded, unrevoked and unexpired.
func (s *SQLiteTokenStore) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE id = ? AND revoked = 0 AND expires_at > ?`,
		id, s.now().UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking refresh token: %w", err)
	}
	return n > 0, nil
}

// Revoke marks a single refresh token as revoked. Revoking an unknown ID
// is not an error.
func (s *SQLiteTokenStore) Revoke(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks every refresh token of a user as revoked.
func (s *SQLiteTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return nil
}

// DeleteExpired removes expired records and returns how many were deleted.
func (s *SQLiteTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
