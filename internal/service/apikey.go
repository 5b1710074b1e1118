package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/store"
)

const (
	// keyPrefix marks keys issued by this service. The full raw key is
	// "llk_<keyID>_<secret>"; the key ID is public and lets verification
	// find the stored hash with a single indexed lookup instead of
	// scanning the whole table.
	keyPrefix = "llk_"

	keyIDBytes     = 6
	keySecretBytes = 24
)

// APIKeyService issues and verifies long-lived API keys. Secrets are
// stored only as bcrypt hashes; the plaintext exists at issuance and at
// verification, never in the store or the logs.
type APIKeyService struct {
	store  *store.Store
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// NewAPIKeyService creates an APIKeyService. A nil logger discards output.
func NewAPIKeyService(st *store.Store, logger *slog.Logger) *APIKeyService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &APIKeyService{
		store:  st,
		logger: logger,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Issue generates a new API key for the user and returns the plaintext
// exactly once. expiresAt may be nil for a non-expiring key.
func (s *APIKeyService) Issue(ctx context.Context, userID int64, label string, expiresAt *time.Time) (string, *model.APIKey, error) {
	keyID, err := randomHex(keyIDBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate key id: %w", err)
	}
	secret, err := randomHex(keySecretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate key secret: %w", err)
	}
	rawKey := keyPrefix + keyID + "_" + secret

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), s.cost)
	if err != nil {
		return "", nil, fmt.Errorf("hash api key: %w", err)
	}

	key := &model.APIKey{
		UserID:    userID,
		KeyID:     keyID,
		KeyHash:   string(hash),
		Label:     label,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("store api key: %w", err)
	}
	return rawKey, key, nil
}

// Verify checks a presented key and returns its owner and the credential
// record. Unknown, expired, and disabled-owner keys all come back as
// ErrInvalidCredentials with no further distinction.
//
// Keys in the structured "llk_<keyID>_<secret>" form are verified with one
// indexed lookup and one bcrypt comparison. Anything else falls back to
// comparing against every stored hash in turn, O(number of issued keys)
// with a slow hash per candidate, which is the inherited behavior for
// keys that predate the key-ID scheme and does not scale past a small key
// population.
func (s *APIKeyService) Verify(ctx context.Context, rawKey string) (*model.User, *model.APIKey, error) {
	if rawKey == "" {
		return nil, nil, ErrInvalidCredentials
	}

	key, err := s.lookup(ctx, rawKey)
	if err != nil {
		return nil, nil, err
	}

	if key.Expired(s.now()) {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("load key owner: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}

	// Update last used timestamp (fire and forget). A failed update must
	// never fail the request.
	go func(id int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			s.logger.Debug("api key last-used update failed", "key_id", key.KeyID, "error", err)
		}
	}(key.ID)

	return user, key, nil
}

// Revoke deletes an API key by its public key ID.
func (s *APIKeyService) Revoke(ctx context.Context, keyID string) error {
	if err := s.store.DeleteAPIKeyByKeyID(ctx, keyID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

// lookup finds the stored key matching rawKey, via the key-ID fast path
// when possible and the legacy scan otherwise.
func (s *APIKeyService) lookup(ctx context.Context, rawKey string) (*model.APIKey, error) {
	if keyID, ok := parseKeyID(rawKey); ok {
		key, err := s.store.GetAPIKeyByKeyID(ctx, keyID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, fmt.Errorf("lookup api key: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
			return nil, ErrInvalidCredentials
		}
		return key, nil
	}

	// Legacy scan. Read-only over the key set; concurrent verifications
	// proceed independently.
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	for i := range keys {
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(rawKey)) == nil {
			return &keys[i], nil
		}
	}
	return nil, ErrInvalidCredentials
}

// parseKeyID extracts the public key ID from a structured raw key.
func parseKeyID(rawKey string) (string, bool) {
	rest, ok := strings.CutPrefix(rawKey, keyPrefix)
	if !ok {
		return "", false
	}
	keyID, _, ok := strings.Cut(rest, "_")
	if !ok || len(keyID) != keyIDBytes*2 {
		return "", false
	}
	return keyID, true
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
