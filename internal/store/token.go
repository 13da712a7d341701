package store

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepository persists the per-user set of active bearer tokens.
// A token row existing is what keeps an issued JWT valid; deleting the
// row revokes that session without touching the others.
type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Add(ctx context.Context, userID int, token string) error {
	const query = `
		INSERT INTO auth_tokens (user_id, token, created_at)
		VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, userID, token, time.Now())
	return err
}

// Exists reports whether the token is still part of the user's token set.
func (r *TokenRepository) Exists(ctx context.Context, userID int, token string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM auth_tokens WHERE user_id = $1 AND token = $2
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, token).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Remove revokes a single token. Removing a token that is already gone
// is not an error; the session is equally dead either way.
func (r *TokenRepository) Remove(ctx context.Context, userID int, token string) error {
	const query = `DELETE FROM auth_tokens WHERE user_id = $1 AND token = $2`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}

// RemoveAll clears the user's token set, revoking every session.
func (r *TokenRepository) RemoveAll(ctx context.Context, userID int) error {
	const query = `DELETE FROM auth_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
