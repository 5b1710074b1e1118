package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/linklift/linklift/internal/model"
)

// CreateRefreshToken inserts a new refresh token record. TokenHash must
// already be set; the opaque token string never reaches the store.
func (s *Store) CreateRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	token.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO refresh_tokens
		(user_id, token_hash, expires_at, revoked, created_at)
		VALUES
		(:user_id, :token_hash, :expires_at, :revoked, :created_at)`

	id, err := s.namedInsert(ctx, q, token)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	token.ID = id
	return nil
}

// ConsumeRefreshToken atomically marks the refresh token with the given
// hash as revoked and returns its record. The UPDATE's WHERE clause only
// matches live tokens, so of two concurrent consumers of the same token
// exactly one observes a row change; the other gets ErrNotFound.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	q := s.db.Rebind(`UPDATE refresh_tokens SET revoked = ?
		WHERE token_hash = ? AND revoked = ? AND expires_at > ?`)
	result, err := s.db.ExecContext(ctx, q, true, tokenHash, false, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("consume refresh token rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	var token model.RefreshToken
	sel := s.db.Rebind("SELECT * FROM refresh_tokens WHERE token_hash = ?")
	if err := s.db.GetContext(ctx, &token, sel, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get consumed refresh token: %w", err)
	}
	return &token, nil
}

// RevokeUserRefreshTokens marks all of a user's outstanding refresh tokens
// as revoked. Used on logout. Revoking a user with no live tokens is not
// an error.
func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	q := s.db.Rebind("UPDATE refresh_tokens SET revoked = ? WHERE user_id = ? AND revoked = ?")
	if _, err := s.db.ExecContext(ctx, q, true, userID, false); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// CountLiveRefreshTokens returns the number of unexpired, unrevoked
// refresh tokens for a user.
func (s *Store) CountLiveRefreshTokens(ctx context.Context, userID int64) (int, error) {
	var count int
	q := s.db.Rebind(`SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = ? AND revoked = ? AND expires_at > ?`)
	if err := s.db.GetContext(ctx, &count, q, userID, false, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("count refresh tokens: %w", err)
	}
	return count, nil
}
