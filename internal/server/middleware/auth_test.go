package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/service"
	"github.com/linklift/linklift/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubStrategy is a canned Strategy for exercising pipeline mechanics.
type stubStrategy struct {
	name      string
	principal *Principal
	err       error
	called    *bool
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Authenticate(r *http.Request) (*Principal, error) {
	if s.called != nil {
		*s.called = true
	}
	return s.principal, s.err
}

// capturePrincipal returns a handler that records the request principal.
func capturePrincipal(got **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := CurrentPrincipal(r.Context()); err == nil {
			*got = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestPipelineFirstPrincipalWins(t *testing.T) {
	first := &Principal{UserID: 1, Method: "first"}
	second := &Principal{UserID: 2, Method: "second"}
	var secondCalled bool

	p := NewPipeline(discardLogger(), nil,
		&stubStrategy{name: "first", principal: first},
		&stubStrategy{name: "second", principal: second, called: &secondCalled},
	)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))

	if got == nil || got.UserID != 1 {
		t.Fatalf("got principal %+v, want user 1 from first strategy", got)
	}
	if secondCalled {
		t.Error("second strategy ran after the first produced a principal")
	}
}

func TestPipelineFallThrough(t *testing.T) {
	second := &Principal{UserID: 2, Method: "second"}

	p := NewPipeline(discardLogger(), nil,
		&stubStrategy{name: "first"}, // nothing to say
		&stubStrategy{name: "second", principal: second},
	)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))

	if got == nil || got.UserID != 2 {
		t.Fatalf("got principal %+v, want user 2 from second strategy", got)
	}
}

func TestPipelineStrategyErrorDoesNotReject(t *testing.T) {
	second := &Principal{UserID: 2, Method: "second"}

	p := NewPipeline(discardLogger(), nil,
		&stubStrategy{name: "broken", err: errors.New("backend down")},
		&stubStrategy{name: "second", principal: second},
	)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
	if got == nil || got.UserID != 2 {
		t.Fatalf("got principal %+v, want user 2 despite first strategy fault", got)
	}
}

func TestPipelinePublicPathBypass(t *testing.T) {
	var called bool
	p := NewPipeline(discardLogger(), []string{"/s/", "/healthz"},
		&stubStrategy{name: "any", principal: &Principal{UserID: 1}, called: &called},
	)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, httptest.NewRequest("GET", "/s/abc123", nil))

	if called {
		t.Error("strategy ran on a public path")
	}
	if got != nil {
		t.Errorf("public request carried principal %+v, want none", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestPipelineAnonymousReachesHandler(t *testing.T) {
	p := NewPipeline(discardLogger(), nil, &stubStrategy{name: "none"})

	rec := httptest.NewRecorder()
	p.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := CurrentPrincipal(r.Context()); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("got %v, want ErrNotAuthenticated", err)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200 (pipeline must not reject)", rec.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	gate := RequireAuth()(next)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest("GET", "/api/thing", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got status %d, want 401", rec.Code)
	}

	req := httptest.NewRequest("GET", "/api/thing", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{UserID: 1}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated: got status %d, want 200", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	gate := RequireRole(model.RoleAdmin)(next)

	// Anonymous: 401.
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest("GET", "/admin", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: got status %d, want 401", rec.Code)
	}

	// Authenticated but wrong role: 403.
	req := httptest.NewRequest("GET", "/admin", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{UserID: 1, Role: model.RoleUser}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: got status %d, want 403", rec.Code)
	}

	// Admin: through.
	req = httptest.NewRequest("GET", "/admin", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{UserID: 1, Role: model.RoleAdmin}))
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: got status %d, want 200", rec.Code)
	}
}

// --- Real-strategy tests against an in-memory store ---

func newAuthFixture(t *testing.T) (*store.Store, *service.TokenService, *service.APIKeyService, *model.User) {
	t.Helper()
	st, err := store.OpenDefault("")
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	user := &model.User{Email: "pipe@example.com", Name: "Pipe", Role: model.RoleUser, IsActive: true}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tokens := service.NewTokenService(st, "test-secret", time.Hour, 24*time.Hour)
	keys := service.NewAPIKeyService(st, nil)
	return st, tokens, keys, user
}

func TestAPIKeyStrategyPrecedesBearer(t *testing.T) {
	st, tokens, keys, keyOwner := newAuthFixture(t)
	ctx := context.Background()

	bearerOwner := &model.User{Email: "bearer@example.com", Role: model.RoleUser, IsActive: true}
	if err := st.CreateUser(ctx, bearerOwner); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rawKey, _, err := keys.Issue(ctx, keyOwner.ID, "", nil)
	if err != nil {
		t.Fatalf("Issue key: %v", err)
	}
	pair, err := tokens.Issue(ctx, bearerOwner)
	if err != nil {
		t.Fatalf("Issue tokens: %v", err)
	}

	p := NewPipeline(discardLogger(), nil,
		NewAPIKeyStrategy(keys),
		NewBearerStrategy(tokens),
	)

	// Both credentials present: the API key decides the identity.
	req := httptest.NewRequest("GET", "/api/thing", nil)
	req.Header.Set("X-API-Key", rawKey)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, req)

	if got == nil {
		t.Fatal("expected a principal")
	}
	if got.UserID != keyOwner.ID {
		t.Errorf("got user %d, want key owner %d", got.UserID, keyOwner.ID)
	}
	if got.Method != MethodAPIKey {
		t.Errorf("got method %q, want %q", got.Method, MethodAPIKey)
	}
}

func TestInvalidAPIKeyFallsThroughToBearer(t *testing.T) {
	_, tokens, keys, user := newAuthFixture(t)

	pair, err := tokens.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue tokens: %v", err)
	}

	p := NewPipeline(discardLogger(), nil,
		NewAPIKeyStrategy(keys),
		NewBearerStrategy(tokens),
	)

	req := httptest.NewRequest("GET", "/api/thing", nil)
	req.Header.Set("X-API-Key", "llk_badbadbadbad_nope")
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	var got *Principal
	rec := httptest.NewRecorder()
	p.Handler(capturePrincipal(&got)).ServeHTTP(rec, req)

	if got == nil {
		t.Fatal("expected the bearer token to resolve a principal")
	}
	if got.Method != MethodBearer {
		t.Errorf("got method %q, want %q", got.Method, MethodBearer)
	}
	if got.UserID != user.ID {
		t.Errorf("got user %d, want %d", got.UserID, user.ID)
	}
}

func TestBearerStrategyRejectsInvalidQuietly(t *testing.T) {
	_, tokens, _, user := newAuthFixture(t)

	pair, err := tokens.Issue(context.Background(), user)
	if err != nil {
		t.Fatalf("Issue tokens: %v", err)
	}

	// A new service with a different secret treats the token as invalid.
	other := service.NewTokenService(nil, "different-secret", time.Hour, 24*time.Hour)
	strategy := NewBearerStrategy(other)

	req := httptest.NewRequest("GET", "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	principal, err := strategy.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal != nil {
		t.Errorf("got principal %+v, want nil for invalid token", principal)
	}
}

func TestLegacyHashOnlyKeyStillAuthenticates(t *testing.T) {
	st, _, keys, user := newAuthFixture(t)
	ctx := context.Background()

	legacy := "pre-scheme-opaque-key"
	hash, err := bcrypt.GenerateFromPassword([]byte(legacy), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	record := &model.APIKey{UserID: user.ID, KeyID: "legacy000001", KeyHash: string(hash)}
	if err := st.CreateAPIKey(ctx, record); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	strategy := NewAPIKeyStrategy(keys)
	req := httptest.NewRequest("GET", "/api/thing", nil)
	req.Header.Set("X-API-Key", legacy)

	principal, err := strategy.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal == nil || principal.UserID != user.ID {
		t.Fatalf("got principal %+v, want user %d", principal, user.ID)
	}
}
