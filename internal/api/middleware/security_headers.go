package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// cspAPI is a strict Content-Security-Policy for API routes that return JSON.
// No scripts, styles, or other resources should be loaded from API responses.
const cspAPI = "default-src 'none'; frame-ancestors 'none'"

// cspFrontend is the Content-Security-Policy for routes that serve HTML,
// which is only the Swagger UI. Swagger UI needs inline scripts and styles.
const cspFrontend = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; frame-ancestors 'none'"

// SecurityHeaders returns a middleware that sets security-related HTTP response headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// HSTS - only in production with TLS
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// Apply strict CSP for API routes (JSON-only), relaxed CSP for HTML-serving routes.
		if isAPIRoute(c.Request.URL.Path) {
			c.Header("Content-Security-Policy", cspAPI)
		} else {
			c.Header("Content-Security-Policy", cspFrontend)
		}

		c.Next()
	}
}

// isAPIRoute returns true for paths that never serve HTML.
func isAPIRoute(path string) bool {
	switch path {
	case "/health", "/metrics", "/version":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/") ||
		strings.HasPrefix(path, "/auth/") ||
		strings.HasPrefix(path, "/health/")
}
