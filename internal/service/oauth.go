package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/store"
)

// ExternalClaims are the identity attributes obtained from a successful
// federated login.
type ExternalClaims struct {
	ID                string // stable external account identifier
	Email             string
	UserPrincipalName string // fallback when the email claim is absent
	DisplayName       string
}

// PrimaryEmail returns the email claim, falling back to the user principal
// name when the provider did not supply a mail attribute.
func (c ExternalClaims) PrimaryEmail() string {
	if c.Email != "" {
		return c.Email
	}
	return c.UserPrincipalName
}

// LoginResult bundles the outcome of a login or refresh flow: a token pair
// and the resolved local user.
type LoginResult struct {
	Pair *TokenPair
	User *model.User
}

// IdentityBridge converts external-login claims into a local user record
// and a session. Resolution is idempotent: the same external identity
// always maps to the same local user.
type IdentityBridge struct {
	store  *store.Store
	tokens *TokenService
	logger *slog.Logger
}

// NewIdentityBridge creates an IdentityBridge. A nil logger discards output.
func NewIdentityBridge(st *store.Store, tokens *TokenService, logger *slog.Logger) *IdentityBridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &IdentityBridge{store: st, tokens: tokens, logger: logger}
}

// Resolve finds or creates the local user for the given external claims
// and issues a session for them. Lookup order: external ID, then email
// (which links the external ID to an existing account), then create with
// the default USER role.
func (b *IdentityBridge) Resolve(ctx context.Context, claims ExternalClaims) (*LoginResult, error) {
	if claims.ID == "" {
		return nil, fmt.Errorf("external claims missing stable identifier")
	}
	email := claims.PrimaryEmail()
	if email == "" {
		return nil, fmt.Errorf("external claims missing email")
	}

	user, err := b.resolveUser(ctx, claims, email)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := b.store.UpdateUserLastLogin(ctx, user.ID); err != nil {
		b.logger.Warn("last-login update failed", "user_id", user.ID, "error", err)
	}

	pair, err := b.tokens.Issue(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &LoginResult{Pair: pair, User: user}, nil
}

func (b *IdentityBridge) resolveUser(ctx context.Context, claims ExternalClaims, email string) (*model.User, error) {
	user, err := b.store.GetUserByMicrosoftID(ctx, claims.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup by external id: %w", err)
	}

	user, err = b.store.GetUserByEmail(ctx, email)
	if err == nil {
		// Existing account without a linked external identity: link it.
		if user.MicrosoftID == nil {
			if err := b.store.SetUserMicrosoftID(ctx, user.ID, claims.ID); err != nil {
				return nil, fmt.Errorf("link external id: %w", err)
			}
			id := claims.ID
			user.MicrosoftID = &id
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup by email: %w", err)
	}

	id := claims.ID
	user = &model.User{
		Email:       email,
		Name:        claims.DisplayName,
		Role:        model.RoleUser,
		MicrosoftID: &id,
		IsActive:    true,
	}
	if err := b.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	b.logger.Info("created user from federated login", "user_id", user.ID, "email", email)
	return user, nil
}
