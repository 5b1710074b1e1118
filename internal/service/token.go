package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/store"
)

var (
	// ErrInvalidToken covers expired, malformed, tampered, and revoked
	// tokens alike. The sub-cause is deliberately not exposed so callers
	// cannot probe which check failed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidCredentials is returned for any credential that matches
	// nothing: unknown, expired, or belonging to a disabled account.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	defaultAccessTTL  = 1 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// AccessClaims are the claims embedded in an access token. The token is
// self-describing: validating the signature and expiry is sufficient, no
// store lookup happens on the request path.
type AccessClaims struct {
	UserID int64      `json:"uid"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
}

// TokenService issues, validates, refreshes, and revokes session tokens.
// Access tokens are stateless HS256 JWTs; refresh tokens are opaque random
// strings persisted as SHA-256 hashes with single-use rotation.
type TokenService struct {
	store      *store.Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService. Zero TTLs fall back to the
// defaults (1h access, 30d refresh).
func NewTokenService(st *store.Store, secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return &TokenService{
		store:      st,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue creates a new signed access token and a persisted refresh token
// for the given user.
func (s *TokenService) Issue(ctx context.Context, user *model.User) (*TokenPair, error) {
	now := s.now()
	claims := AccessClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "linklift",
		},
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	record := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(s.refreshTTL).UTC(),
	}
	if err := s.store.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

// Validate verifies an access token's signature and expiry and returns its
// claims. Any failure maps to ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Refresh consumes the presented refresh token and issues a fresh pair.
// Consumption is atomic: of two concurrent refreshes with the same token,
// exactly one succeeds and the other fails with ErrInvalidToken, so a
// replayed token after rotation is always rejected.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *model.User, error) {
	record, err := s.store.ConsumeRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("consume refresh token: %w", err)
	}

	user, err := s.store.GetUser(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("load user for refresh: %w", err)
	}
	if !user.IsActive {
		return nil, nil, ErrInvalidToken
	}

	pair, err := s.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Revoke invalidates all of a user's outstanding refresh tokens. Already
// issued access tokens stay valid until their natural expiry; callers
// needing instant revocation must keep the access TTL short.
func (s *TokenService) Revoke(ctx context.Context, userID int64) error {
	return s.store.RevokeUserRefreshTokens(ctx, userID)
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
