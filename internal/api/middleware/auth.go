// Package middleware provides HTTP middleware for the delivery API.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

// PrincipalContextKey is the context key for the authenticated caller.
const PrincipalContextKey ContextKey = "principal"

// KeyValidator resolves a bearer API key to its stored record.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error)
}

// Principal is an authenticated caller: a staff member with a session or a
// scanner station with an API key.
type Principal struct {
	Subject     string     `json:"subject"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Permissions []string   `json:"permissions"`
	APIKeyID    *uuid.UUID `json:"api_key_id,omitempty"`
}

// Can reports whether the principal holds perm.
func (p *Principal) Can(perm auth.Permission) bool {
	return p != nil && auth.HasPermission(p.Permissions, perm)
}

// AuthMiddleware returns a Gin middleware that requires authentication.
// Requests carrying an Authorization header are checked against API keys;
// all others need a staff session. keys may be nil to disable API keys.
func AuthMiddleware(sessions *auth.SessionStore, keys KeyValidator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if keys == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api keys are not accepted"})
				return
			}
			token := auth.ExtractBearerToken(header)
			if token == "" {
				log.Debug().Str("path", c.Request.URL.Path).Msg("invalid authorization header format")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
				return
			}
			key, err := keys.ValidateAPIKey(c.Request.Context(), token)
			if err != nil || key == nil {
				log.Debug().Str("path", c.Request.URL.Path).Msg("invalid API key")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			id := key.ID
			c.Set(string(PrincipalContextKey), &Principal{
				Subject:     "apikey:" + key.Prefix,
				Name:        key.Name,
				Permissions: key.Permissions,
				APIKeyID:    &id,
			})
			log.Debug().
				Str("key_id", key.ID.String()).
				Str("path", c.Request.URL.Path).
				Msg("authenticated api key request")
			c.Next()
			return
		}

		user, err := sessions.GetUser(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(string(PrincipalContextKey), &Principal{
			Subject:     user.Subject,
			Name:        user.Name,
			Email:       user.Email,
			Permissions: user.Permissions,
		})

		log.Debug().
			Str("subject", user.Subject).
			Str("path", c.Request.URL.Path).
			Msg("authenticated request")

		c.Next()
	}
}

// RequirePermission aborts with 403 unless the caller holds perm. It must
// run after AuthMiddleware.
func RequirePermission(perm auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !p.Can(perm) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing permission " + string(perm)})
			return
		}
		c.Next()
	}
}

// GetPrincipal retrieves the authenticated caller from the Gin context.
// Returns nil if no caller is authenticated.
func GetPrincipal(c *gin.Context) *Principal {
	v, exists := c.Get(string(PrincipalContextKey))
	if !exists {
		return nil
	}
	p, ok := v.(*Principal)
	if !ok {
		return nil
	}
	return p
}
