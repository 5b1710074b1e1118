package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/linklift/linklift/internal/model"
)

// CreateAPIKey inserts a new API key record. KeyID and KeyHash must already
// be set by the caller; the plaintext key never reaches the store. The ID
// and CreatedAt fields are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(user_id, key_id, key_hash, label, expires_at, created_at)
		VALUES
		(:user_id, :key_id, :key_hash, :label, :expires_at, :created_at)`

	id, err := s.namedInsert(ctx, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByKeyID looks up an API key by its public key identifier.
func (s *Store) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE key_id = ?")
	if err := s.db.GetContext(ctx, &key, q, keyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by key id: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all issued API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListAPIKeysByUser returns all API keys issued to a user, newest first.
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &keys, q, userID); err != nil {
		return nil, fmt.Errorf("list api keys by user: %w", err)
	}
	return keys, nil
}

// DeleteAPIKeyByKeyID revokes an API key by removing its record.
func (s *Store) DeleteAPIKeyByKeyID(ctx context.Context, keyID string) error {
	q := s.db.Rebind("DELETE FROM api_keys WHERE key_id = ?")
	result, err := s.db.ExecContext(ctx, q, keyID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return checkAffected(result, "delete api key")
}

// UpdateAPIKeyLastUsed sets the last_used_at timestamp for an API key.
// Concurrent updates race harmlessly; last write wins.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return checkAffected(result, "update api key last used")
}
