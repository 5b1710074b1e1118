package model

import "time"

// APIKey represents a long-lived API key bound to a user. The raw key is
// shown exactly once at issuance; only a bcrypt hash of it is persisted,
// together with a public key ID that is embedded in the raw key so that
// verification can find the record without scanning the whole table.
type APIKey struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	KeyID      string     `json:"key_id" db:"key_id"`
	KeyHash    string     `json:"-" db:"key_hash"` // bcrypt hash, never expose
	Label      string     `json:"label" db:"label"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Expired reports whether the key's expiry has passed at the given instant.
// Keys without an expiry never expire.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
