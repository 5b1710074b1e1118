package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/linklift/linklift/internal/model"
	"github.com/linklift/linklift/internal/server/middleware"
	"github.com/linklift/linklift/internal/service"
	"github.com/linklift/linklift/internal/store"
)

// stateCookie carries the OAuth state parameter between the login redirect
// and the provider callback.
const stateCookie = "ll_oauth_state"

// AuthHandler serves the login, refresh, logout, and current-user
// endpoints.
type AuthHandler struct {
	store  *store.Store
	tokens *service.TokenService
	bridge *service.IdentityBridge
	oauth  *service.MicrosoftOAuth
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(st *store.Store, tokens *service.TokenService, bridge *service.IdentityBridge, oauth *service.MicrosoftOAuth, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		store:  st,
		tokens: tokens,
		bridge: bridge,
		oauth:  oauth,
		logger: logger,
	}
}

// loginResponse is the payload returned by the login and refresh flows.
type loginResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	User         model.UserInfo `json:"user"`
}

func newLoginResponse(result *service.LoginResult) loginResponse {
	return loginResponse{
		AccessToken:  result.Pair.AccessToken,
		RefreshToken: result.Pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    result.Pair.ExpiresIn,
		User:         result.User.Info(),
	}
}

// LoginRedirect starts the Microsoft login flow.
// GET /api/auth/oauth2/login
func (h *AuthHandler) LoginRedirect(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to start login")
		return
	}
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.AuthURL(state), http.StatusFound)
}

// Callback completes the Microsoft login flow: it checks the state
// parameter, redeems the authorization code, and resolves the external
// identity into a local session.
// GET /login/oauth2/code/microsoft
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		writeError(w, http.StatusUnauthorized, "Invalid login state")
		return
	}
	// The state is single-use; drop the cookie regardless of outcome.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	claims, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth code exchange failed", "error", err)
		writeError(w, http.StatusUnauthorized, "Login failed")
		return
	}

	result, err := h.bridge.Resolve(r.Context(), claims)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Login failed")
			return
		}
		h.logger.Error("federated identity resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	writeJSON(w, http.StatusOK, newLoginResponse(result))
}

// refreshRequest is the expected payload for the Refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token into a new token pair.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	pair, user, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, newLoginResponse(&service.LoginResult{Pair: pair, User: user}))
}

// Logout revokes all of the caller's refresh tokens. Already-issued access
// tokens remain valid until expiry.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.CurrentPrincipal(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := h.tokens.Revoke(r.Context(), principal.UserID); err != nil {
		h.logger.Error("logout failed", "user_id", principal.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Me returns the authenticated caller's profile.
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, err := middleware.CurrentPrincipal(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.store.GetUser(r.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, user.Info())
}
