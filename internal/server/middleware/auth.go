package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/service"
)

// ErrNotAuthenticated is returned by CurrentPrincipal when the request
// carries no resolved principal.
var ErrNotAuthenticated = errors.New("not authenticated")

type contextKeyAuth string

const authPrincipalKey contextKeyAuth = "auth_principal"

// Authentication method names recorded on the Principal.
const (
	MethodAPIKey = "api_key"
	MethodBearer = "bearer"
)

// Principal is the resolved caller identity for a single request. It is
// attached to the request context by the pipeline and discarded with it;
// it is never persisted or shared across requests.
type Principal struct {
	UserID int64
	Email  string
	Role   model.Role
	Method string
	Claims any // raw credential claims for downstream code
}

// Strategy is one authentication mechanism evaluated by the pipeline.
// Returning (nil, nil) means "this mechanism has nothing to say"; the
// pipeline moves on to the next strategy. A non-nil error signals an
// internal fault, which the pipeline logs and treats the same way.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request) (*Principal, error)
}

// APIKeyStrategy resolves identity from the X-API-Key header.
//
// A key that is present but matches nothing falls through rather than
// rejecting the request. That preserves the inherited mixed-auth behavior
// (a caller may send a stale key alongside a valid bearer token); whether
// a mistyped key should instead fail outright is a policy question, not
// one this layer decides.
type APIKeyStrategy struct {
	keys *service.APIKeyService
}

// NewAPIKeyStrategy creates the API key strategy.
func NewAPIKeyStrategy(keys *service.APIKeyService) *APIKeyStrategy {
	return &APIKeyStrategy{keys: keys}
}

func (s *APIKeyStrategy) Name() string { return MethodAPIKey }

func (s *APIKeyStrategy) Authenticate(r *http.Request) (*Principal, error) {
	rawKey := r.Header.Get("X-API-Key")
	if rawKey == "" {
		return nil, nil
	}

	user, key, err := s.keys.Verify(r.Context(), rawKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return nil, nil
		}
		return nil, err
	}

	return &Principal{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Method: MethodAPIKey,
		Claims: key,
	}, nil
}

// BearerStrategy resolves identity from an Authorization: Bearer token.
type BearerStrategy struct {
	tokens *service.TokenService
}

// NewBearerStrategy creates the bearer token strategy.
func NewBearerStrategy(tokens *service.TokenService) *BearerStrategy {
	return &BearerStrategy{tokens: tokens}
}

func (s *BearerStrategy) Name() string { return MethodBearer }

func (s *BearerStrategy) Authenticate(r *http.Request) (*Principal, error) {
	authHeader := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return nil, nil
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		// Expired, malformed, and tampered tokens are indistinguishable
		// here; all fall through to "no principal from this mechanism".
		return nil, nil
	}

	return &Principal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		Method: MethodBearer,
		Claims: claims,
	}, nil
}

// Pipeline runs an ordered list of authentication strategies once per
// request. Requests to public path prefixes bypass every strategy. The
// first strategy to produce a principal wins; at most one principal is
// ever attached. The pipeline itself never rejects a request; that is
// the job of the RequireAuth and RequireRole gates.
type Pipeline struct {
	strategies     []Strategy
	publicPrefixes []string
	logger         *slog.Logger
}

// NewPipeline creates a Pipeline. Strategies are evaluated in the order
// given, which fixes credential precedence (API key before bearer).
func NewPipeline(logger *slog.Logger, publicPrefixes []string, strategies ...Strategy) *Pipeline {
	return &Pipeline{
		strategies:     strategies,
		publicPrefixes: publicPrefixes,
		logger:         logger,
	}
}

// Handler returns the pipeline as an HTTP middleware.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		for _, s := range p.strategies {
			principal, err := s.Authenticate(r)
			if err != nil {
				// An internal fault in one mechanism must not take the
				// request down; log it and keep going.
				p.logger.Error("auth strategy failed", "strategy", s.Name(), "error", err)
				continue
			}
			if principal != nil {
				r = r.WithContext(WithPrincipal(r.Context(), principal))
				break
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) isPublic(path string) bool {
	for _, prefix := range p.publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, authPrincipalKey, principal)
}

// CurrentPrincipal extracts the resolved principal from the context, or
// ErrNotAuthenticated if the request is anonymous.
func CurrentPrincipal(ctx context.Context) (*Principal, error) {
	if p, ok := ctx.Value(authPrincipalKey).(*Principal); ok {
		return p, nil
	}
	return nil, ErrNotAuthenticated
}

// RequireAuth returns an HTTP middleware that rejects anonymous requests
// with a uniform 401. Any invalid, missing, or expired credential looks
// identical from the outside.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := CurrentPrincipal(r.Context()); err != nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns an HTTP middleware that enforces a minimum role.
// It must be used after the pipeline in the middleware chain.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := CurrentPrincipal(r.Context())
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized,
					"Authentication required. Provide X-API-Key header or Bearer token.")
				return
			}
			if principal.Role != role {
				writeAuthError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid import cycle with handler package
	w.Write([]byte(`{"error":{"code":` + httpStatusString(status) + `,"message":"` + message + `"}}`))
}

func httpStatusString(code int) string {
	switch code {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "500"
	}
}
