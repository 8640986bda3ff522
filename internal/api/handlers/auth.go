package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"golang.org/x/oauth2"
)

// OIDCProvider is the identity provider used for staff login.
type OIDCProvider interface {
	AuthorizationURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	VerifyIDToken(ctx context.Context, token *oauth2.Token) (*auth.IDTokenClaims, error)
}

// AuthHandler handles authentication-related HTTP endpoints.
type AuthHandler struct {
	oidc     OIDCProvider
	sessions *auth.SessionStore
	roles    auth.RoleMap
	logger   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler. Staff permissions are derived
// from their OIDC groups through roles.
func NewAuthHandler(oidc OIDCProvider, sessions *auth.SessionStore, roles auth.RoleMap, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		oidc:     oidc,
		sessions: sessions,
		roles:    roles,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterRoutes registers auth routes on the given router group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/login", h.Login)
	r.GET("/callback", h.Callback)
	r.POST("/logout", h.Logout)
	r.GET("/me", h.Me)
}

// safeReturnPath keeps only local absolute paths so login cannot redirect off site.
func safeReturnPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "/"
	}
	return p
}

// Login initiates the OIDC authentication flow.
//
//	@Summary		Initiate login
//	@Description	Redirects to the OIDC provider for authentication. After successful authentication, the user is redirected to return_to.
//	@Tags			Auth
//	@Produce		html
//	@Param			return_to	query	string	false	"Local path to return to"
//	@Success		307			"Redirect to OIDC provider"
//	@Failure		500			{object}	map[string]string
//	@Router			/auth/login [get]
func (h *AuthHandler) Login(c *gin.Context) {
	if h.oidc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate login"})
		return
	}

	if err := h.sessions.SetOIDCState(c.Request, c.Writer, state, safeReturnPath(c.Query("return_to"))); err != nil {
		h.logger.Error().Err(err).Msg("failed to save state to session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate login"})
		return
	}

	authURL := h.oidc.AuthorizationURL(state)
	h.logger.Debug().Str("redirect_url", authURL).Msg("redirecting to OIDC provider")
	c.Redirect(http.StatusTemporaryRedirect, authURL)
}

// Callback handles the OIDC callback after authentication.
//
//	@Summary		OIDC callback
//	@Tags			Auth
//	@Param			code	query	string	true	"Authorization code"
//	@Param			state	query	string	true	"State parameter for CSRF protection"
//	@Success		307		"Redirect to the page login started from"
//	@Failure		400		{object}	map[string]string
//	@Failure		403		{object}	map[string]string
//	@Failure		500		{object}	map[string]string
//	@Router			/auth/callback [get]
func (h *AuthHandler) Callback(c *gin.Context) {
	if h.oidc == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login is not configured"})
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		errDesc := c.Query("error_description")
		h.logger.Warn().
			Str("error", errParam).
			Str("description", errDesc).
			Msg("OIDC provider returned error")
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       errParam,
			"description": errDesc,
		})
		return
	}

	state := c.Query("state")
	if state == "" {
		h.logger.Warn().Msg("missing state parameter")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state parameter"})
		return
	}

	savedState, returnTo, err := h.sessions.GetOIDCState(c.Request, c.Writer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to retrieve state from session")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session state"})
		return
	}
	if state != savedState {
		h.logger.Warn().Msg("state parameter mismatch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}

	code := c.Query("code")
	if code == "" {
		h.logger.Warn().Msg("missing authorization code")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	token, err := h.oidc.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to exchange authorization code")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	claims, err := h.oidc.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to verify ID token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	permissions := h.roles.PermissionsFor(claims.Groups)
	if len(permissions) == 0 {
		h.logger.Warn().
			Str("subject", claims.Subject).
			Strs("groups", claims.Groups).
			Msg("login refused: no permissions for groups")
		c.JSON(http.StatusForbidden, gin.H{"error": "no delivery permissions for this account"})
		return
	}

	user := &auth.SessionUser{
		Subject:         claims.Subject,
		Email:           claims.Email,
		Name:            claims.Name,
		Permissions:     permissions,
		AuthenticatedAt: time.Now(),
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, user); err != nil {
		h.logger.Error().Err(err).Msg("failed to save user to session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	h.logger.Info().
		Str("subject", user.Subject).
		Str("email", user.Email).
		Strs("permissions", permissions).
		Msg("staff member authenticated")

	c.Redirect(http.StatusTemporaryRedirect, safeReturnPath(returnTo))
}

// Logout terminates the staff session.
//
//	@Summary		Logout
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		500	{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if user, err := h.sessions.GetUser(c.Request); err == nil {
		h.logger.Info().Str("subject", user.Subject).Msg("staff member logging out")
	}

	if err := h.sessions.ClearUser(c.Request, c.Writer); err != nil {
		h.logger.Error().Err(err).Msg("failed to clear session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// MeResponse is the response for the /auth/me endpoint.
type MeResponse struct {
	Subject         string    `json:"subject" example:"3f1c2a9e"`
	Email           string    `json:"email" example:"desk@socialhistory.org"`
	Name            string    `json:"name" example:"Reading Room"`
	Permissions     []string  `json:"permissions"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Me returns the current staff member.
//
//	@Summary		Get current user
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Failure		401	{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.sessions.GetUser(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		Subject:         user.Subject,
		Email:           user.Email,
		Name:            user.Name,
		Permissions:     user.Permissions,
		AuthenticatedAt: user.AuthenticatedAt,
	})
}
