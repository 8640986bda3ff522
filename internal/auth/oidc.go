package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// groupClaimNames are the claim names providers use for group membership,
// tried in order.
var groupClaimNames = []string{"groups", "group", "cognito:groups", "roles", "memberOf"}

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// DefaultOIDCConfig returns an OIDCConfig with standard scopes.
func DefaultOIDCConfig(issuer, clientID, clientSecret, redirectURL string) OIDCConfig {
	return OIDCConfig{
		Issuer:       issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
}

// OIDC wraps the OIDC provider and OAuth2 configuration.
type OIDC struct {
	issuer       string
	provider     *oidc.Provider
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	logger       zerolog.Logger
}

// NewOIDC creates a new OIDC provider instance.
func NewOIDC(ctx context.Context, cfg OIDCConfig, logger zerolog.Logger) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}

	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	o := &OIDC{
		issuer:       strings.TrimSuffix(cfg.Issuer, "/"),
		provider:     provider,
		oauth2Config: oauth2Config,
		verifier:     verifier,
		logger:       logger.With().Str("component", "oidc").Logger(),
	}

	o.logger.Info().Str("issuer", cfg.Issuer).Msg("OIDC provider initialized")
	return o, nil
}

// GenerateState generates a cryptographically secure random state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// AuthorizationURL returns the URL to redirect users for authentication.
func (o *OIDC) AuthorizationURL(state string) string {
	return o.oauth2Config.AuthCodeURL(state)
}

// Exchange exchanges an authorization code for tokens.
func (o *OIDC) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := o.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

// IDTokenClaims holds the claims of an ID token the service uses.
type IDTokenClaims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Groups  []string `json:"-"`
}

// VerifyIDToken verifies the ID token and extracts claims, including the
// user's groups under any of the common claim names.
func (o *OIDC) VerifyIDToken(ctx context.Context, token *oauth2.Token) (*IDTokenClaims, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify ID token: %w", err)
	}

	var claims IDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	claims.Groups = groupsFromClaims(raw)

	o.logger.Debug().
		Str("subject", claims.Subject).
		Str("email", claims.Email).
		Strs("groups", claims.Groups).
		Msg("ID token verified")

	return &claims, nil
}

func groupsFromClaims(claims map[string]interface{}) []string {
	for _, name := range groupClaimNames {
		if groups := extractStringSlice(claims[name]); len(groups) > 0 {
			return groups
		}
	}
	return nil
}

// extractStringSlice converts the possible claim formats to a string slice.
func extractStringSlice(claim interface{}) []string {
	switch v := claim.(type) {
	case []string:
		return v
	case []interface{}:
		var result []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case string:
		return []string{v}
	default:
		return nil
	}
}

// UserInfo fetches user information from the OIDC provider.
func (o *OIDC) UserInfo(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error) {
	userInfo, err := o.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	return userInfo, nil
}

// HealthCheck verifies the provider's discovery document is reachable.
func (o *OIDC) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch discovery document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discovery document returned status %d", resp.StatusCode)
	}
	return nil
}
