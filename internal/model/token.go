package model

import "time"

// RefreshToken is the persisted record of an issued refresh token. The
// opaque token string itself is never stored; only its SHA-256 hash is.
// Tokens are single-use: refreshing marks the record revoked and issues a
// replacement, and logout revokes all of a user's outstanding tokens.
type RefreshToken struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"` // SHA-256 hash, never expose
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	Revoked   bool      `json:"revoked" db:"revoked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
