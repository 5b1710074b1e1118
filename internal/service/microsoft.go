package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const defaultGraphBaseURL = "https://graph.microsoft.com"

// MicrosoftOAuth performs the authorization-code exchange against the
// Microsoft identity platform and fetches the signed-in user's profile
// from the Graph API.
type MicrosoftOAuth struct {
	cfg      *oauth2.Config
	graphURL string
}

// NewMicrosoftOAuth configures the Microsoft login flow. tenant is the
// Azure AD tenant ID, or "common" for multi-tenant apps.
func NewMicrosoftOAuth(clientID, clientSecret, redirectURL, tenant string) *MicrosoftOAuth {
	if tenant == "" {
		tenant = "common"
	}
	return &MicrosoftOAuth{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
			Scopes:       []string{"openid", "profile", "email", "User.Read"},
		},
		graphURL: defaultGraphBaseURL,
	}
}

// SetEndpoints overrides the authorize/token/graph URLs. Used by tests to
// point the flow at a local stub.
func (m *MicrosoftOAuth) SetEndpoints(authURL, tokenURL, graphURL string) {
	m.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	m.graphURL = graphURL
}

// AuthURL returns the Microsoft authorization URL for the given state.
func (m *MicrosoftOAuth) AuthURL(state string) string {
	return m.cfg.AuthCodeURL(state)
}

// graphProfile mirrors the fields of the Graph /v1.0/me response that the
// identity bridge consumes.
type graphProfile struct {
	ID                string `json:"id"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

// Exchange redeems the authorization code and returns the external claims
// for the signed-in Microsoft account.
func (m *MicrosoftOAuth) Exchange(ctx context.Context, code string) (ExternalClaims, error) {
	token, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return ExternalClaims{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	client := m.cfg.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.graphURL+"/v1.0/me", nil)
	if err != nil {
		return ExternalClaims{}, fmt.Errorf("build profile request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return ExternalClaims{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ExternalClaims{}, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	var profile graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return ExternalClaims{}, fmt.Errorf("decode profile: %w", err)
	}

	return ExternalClaims{
		ID:                profile.ID,
		Email:             profile.Mail,
		UserPrincipalName: profile.UserPrincipalName,
		DisplayName:       profile.DisplayName,
	}, nil
}
