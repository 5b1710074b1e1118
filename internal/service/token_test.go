package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenDefault("") // in-memory
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *store.Store, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:    email,
		Name:     "Test User",
		Role:     model.RoleUser,
		IsActive: true,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestIssueAndValidate(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "alice@example.com")

	pair, err := svc.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if pair.ExpiresIn != 3600 {
		t.Errorf("got expires_in %d, want 3600", pair.ExpiresIn)
	}

	claims, err := svc.Validate(pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("got uid %d, want %d", claims.UserID, user.ID)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("got email %q, want %q", claims.Email, "alice@example.com")
	}
	if claims.Role != model.RoleUser {
		t.Errorf("got role %q, want %q", claims.Role, model.RoleUser)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "bob@example.com")

	pair, err := svc.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Same claims, different signing secret.
	other := NewTokenService(st, "other-secret", time.Hour, 24*time.Hour)
	foreign, err := other.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue with other secret: %v", err)
	}

	cases := map[string]string{
		"garbage":      "not-a-jwt",
		"empty":        "",
		"tampered":     pair.AccessToken + "x",
		"wrong secret": foreign.AccessToken,
	}
	for name, token := range cases {
		if _, err := svc.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: got %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestValidateExpiredToken(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Minute, 24*time.Hour)
	user := createTestUser(t, st, "carol@example.com")

	pair, err := svc.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Move the clock past the access TTL.
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := svc.Validate(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken for expired token", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "dave@example.com")
	ctx := context.Background()

	pair, err := svc.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, gotUser, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if gotUser.ID != user.ID {
		t.Errorf("got user %d, want %d", gotUser.ID, user.ID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// The consumed token is single-use.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken for replayed token", err)
	}

	// The rotated token still works.
	if _, _, err := svc.Refresh(ctx, next.RefreshToken); err != nil {
		t.Errorf("rotated token rejected: %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "erin@example.com")
	ctx := context.Background()

	pair, err := svc.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidToken):
		default:
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Errorf("got %d successful refreshes, want exactly 1", wins)
	}
}

func TestRefreshInactiveUser(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "frank@example.com")
	ctx := context.Background()

	pair, err := svc.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := st.SetUserActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken for disabled account", err)
	}
}

func TestRevokeInvalidatesRefresh(t *testing.T) {
	st := newTestStore(t)
	svc := NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	user := createTestUser(t, st, "grace@example.com")
	ctx := context.Background()

	pair, err := svc.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := svc.Revoke(ctx, user.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken after revoke", err)
	}

	// Access tokens stay valid until expiry.
	if _, err := svc.Validate(pair.AccessToken); err != nil {
		t.Errorf("access token rejected after revoke: %v", err)
	}
}
