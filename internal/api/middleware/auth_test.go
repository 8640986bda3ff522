package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestSessionStore(t *testing.T) *auth.SessionStore {
	t.Helper()
	cfg := auth.DefaultSessionConfig([]byte("test-secret-that-is-at-least-32-bytes-long!"), false)
	store, err := auth.NewSessionStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	return store
}

// sessionCookies logs user in and returns the resulting cookies.
func sessionCookies(t *testing.T, sessions *auth.SessionStore, user *auth.SessionUser) []*http.Cookie {
	t.Helper()
	req, _ := http.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	if err := sessions.SetUser(req, w, user); err != nil {
		t.Fatalf("failed to set user: %v", err)
	}
	return w.Result().Cookies()
}

type fakeValidator struct {
	keys map[string]*models.APIKey
}

func (f *fakeValidator) ValidateAPIKey(_ context.Context, key string) (*models.APIKey, error) {
	return f.keys[key], nil
}

func principalRouter(mw gin.HandlerFunc, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	handlers := append(extra, func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no principal"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": p.Subject})
	})
	r.GET("/test", handlers...)
	return r
}

func TestAuthMiddleware_ValidSession(t *testing.T) {
	sessions := newTestSessionStore(t)
	r := principalRouter(AuthMiddleware(sessions, nil, zerolog.Nop()))

	cookies := sessionCookies(t, sessions, &auth.SessionUser{
		Subject:         "subject-123",
		Email:           "desk@example.org",
		Name:            "Desk Staff",
		Permissions:     []string{"reservation_view"},
		AuthenticatedAt: time.Now(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if want := `{"subject":"subject-123"}`; w.Body.String() != want {
		t.Errorf("expected body %s, got %s", want, w.Body.String())
	}
}

func TestAuthMiddleware_NoSession(t *testing.T) {
	sessions := newTestSessionStore(t)
	r := principalRouter(AuthMiddleware(sessions, nil, zerolog.Nop()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_APIKey(t *testing.T) {
	sessions := newTestSessionStore(t)
	key := models.NewAPIKey("scanner desk 1", "dlv_0123", "hash", []string{"reservation_modify"})
	validator := &fakeValidator{keys: map[string]*models.APIKey{"dlv_valid": key}}
	r := principalRouter(AuthMiddleware(sessions, validator, zerolog.Nop()))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid key", "Bearer dlv_valid", http.StatusOK},
		{"unknown key", "Bearer dlv_other", http.StatusUnauthorized},
		{"wrong scheme", "Basic dlv_valid", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", tt.header)
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_APIKeysDisabled(t *testing.T) {
	sessions := newTestSessionStore(t)
	r := principalRouter(AuthMiddleware(sessions, nil, zerolog.Nop()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer dlv_valid")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	setPrincipal := func(p *Principal) gin.HandlerFunc {
		return func(c *gin.Context) {
			if p != nil {
				c.Set(string(PrincipalContextKey), p)
			}
			c.Next()
		}
	}

	tests := []struct {
		name       string
		principal  *Principal
		wantStatus int
	}{
		{"granted", &Principal{Subject: "a", Permissions: []string{"holding_modify"}}, http.StatusOK},
		{"missing", &Principal{Subject: "b", Permissions: []string{"reservation_view"}}, http.StatusForbidden},
		{"unauthenticated", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := principalRouter(setPrincipal(tt.principal), RequirePermission(auth.PermHoldingModify))

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestGetPrincipal_WrongType(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(string(PrincipalContextKey), "not-a-principal")
		c.Next()
	})
	r.GET("/test", func(c *gin.Context) {
		if p := GetPrincipal(c); p != nil {
			t.Fatal("expected nil principal for wrong type")
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
}

func TestPrincipal_Can(t *testing.T) {
	var nilPrincipal *Principal
	if nilPrincipal.Can(auth.PermReservationView) {
		t.Error("nil principal should hold no permission")
	}
	p := &Principal{Permissions: []string{"reservation_view"}}
	if !p.Can(auth.PermReservationView) {
		t.Error("expected reservation_view")
	}
	if p.Can(auth.PermReservationDelete) {
		t.Error("did not expect reservation_delete")
	}
}
