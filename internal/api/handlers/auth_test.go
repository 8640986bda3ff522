package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"golang.org/x/oauth2"
)

type mockOIDCProvider struct {
	claims      *auth.IDTokenClaims
	exchangeErr error
	verifyErr   error
	lastCode    string
}

func (m *mockOIDCProvider) AuthorizationURL(state string) string {
	return "https://login.example.org/authorize?state=" + url.QueryEscape(state)
}

func (m *mockOIDCProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	m.lastCode = code
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &oauth2.Token{AccessToken: "access"}, nil
}

func (m *mockOIDCProvider) VerifyIDToken(_ context.Context, _ *oauth2.Token) (*auth.IDTokenClaims, error) {
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.claims, nil
}

func newTestSessions(t *testing.T) *auth.SessionStore {
	t.Helper()
	cfg := auth.DefaultSessionConfig([]byte("test-secret-that-is-at-least-32-bytes-long!"), false)
	store, err := auth.NewSessionStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	return store
}

func setupAuthTestRouter(oidc OIDCProvider, sessions *auth.SessionStore) *gin.Engine {
	r := gin.New()
	NewAuthHandler(oidc, sessions, auth.DefaultRoleMap(), zerolog.Nop()).RegisterRoutes(r.Group("/auth"))
	return r
}

// sessionCookie returns the last session cookie set on w.
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionName {
			found = c
		}
	}
	if found == nil {
		t.Fatal("expected a session cookie")
	}
	return found
}

func get(r http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// login runs the login redirect and returns the state and its session cookie.
func login(t *testing.T, r http.Handler, returnTo string) (string, *http.Cookie) {
	t.Helper()
	w := get(r, "/auth/login?return_to="+url.QueryEscape(returnTo), nil)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("bad redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("expected state in the authorization URL")
	}
	return state, sessionCookie(t, w)
}

func TestLogin_NotConfigured(t *testing.T) {
	r := setupAuthTestRouter(nil, newTestSessions(t))

	for _, path := range []string{"/auth/login", "/auth/callback?state=x&code=y"} {
		if w := get(r, path, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestCallback_Success(t *testing.T) {
	sessions := newTestSessions(t)
	oidc := &mockOIDCProvider{claims: &auth.IDTokenClaims{
		Subject: "staff-42",
		Email:   "desk@socialhistory.org",
		Name:    "Reading Room",
		Groups:  []string{"delivery-readonly", "unrelated"},
	}}
	r := setupAuthTestRouter(oidc, sessions)

	state, cookie := login(t, r, "/reservations?status=pending")

	w := get(r, "/auth/callback?state="+url.QueryEscape(state)+"&code=c0de", cookie)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/reservations?status=pending" {
		t.Errorf("expected return path, got %q", loc)
	}
	if oidc.lastCode != "c0de" {
		t.Errorf("expected code exchange, got %q", oidc.lastCode)
	}

	w = get(r, "/auth/me", sessionCookie(t, w))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	me := decode[MeResponse](t, w)
	if me.Subject != "staff-42" || me.Email != "desk@socialhistory.org" {
		t.Errorf("unexpected user %+v", me)
	}
	want := []string{"reservation_view", "reproduction_view"}
	if len(me.Permissions) != len(want) || me.Permissions[0] != want[0] || me.Permissions[1] != want[1] {
		t.Errorf("expected permissions %v, got %v", want, me.Permissions)
	}
}

func TestCallback_Failures(t *testing.T) {
	staffClaims := &auth.IDTokenClaims{Subject: "staff-42", Groups: []string{"delivery-staff"}}

	tests := []struct {
		name       string
		oidc       *mockOIDCProvider
		query      func(state string) string
		wantStatus int
	}{
		{
			name:       "provider error",
			oidc:       &mockOIDCProvider{claims: staffClaims},
			query:      func(string) string { return "error=access_denied&error_description=denied" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing state",
			oidc:       &mockOIDCProvider{claims: staffClaims},
			query:      func(string) string { return "code=c0de" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "state mismatch",
			oidc:       &mockOIDCProvider{claims: staffClaims},
			query:      func(string) string { return "state=forged&code=c0de" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing code",
			oidc:       &mockOIDCProvider{claims: staffClaims},
			query:      func(s string) string { return "state=" + url.QueryEscape(s) },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "exchange fails",
			oidc:       &mockOIDCProvider{exchangeErr: errors.New("invalid_grant")},
			query:      func(s string) string { return "state=" + url.QueryEscape(s) + "&code=c0de" },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "bad id token",
			oidc:       &mockOIDCProvider{verifyErr: errors.New("expired")},
			query:      func(s string) string { return "state=" + url.QueryEscape(s) + "&code=c0de" },
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no delivery groups",
			oidc:       &mockOIDCProvider{claims: &auth.IDTokenClaims{Subject: "visitor", Groups: []string{"library"}}},
			query:      func(s string) string { return "state=" + url.QueryEscape(s) + "&code=c0de" },
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupAuthTestRouter(tt.oidc, newTestSessions(t))
			state, cookie := login(t, r, "/")

			w := get(r, "/auth/callback?"+tt.query(state), cookie)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCallback_WithoutLoginSession(t *testing.T) {
	r := setupAuthTestRouter(&mockOIDCProvider{}, newTestSessions(t))
	w := get(r, "/auth/callback?state=abc&code=c0de", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMeAndLogout(t *testing.T) {
	sessions := newTestSessions(t)
	r := setupAuthTestRouter(nil, sessions)

	if w := get(r, "/auth/me", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}

	req, _ := http.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	if err := sessions.SetUser(req, rec, &auth.SessionUser{
		Subject:         "staff-42",
		Permissions:     []string{"reservation_view"},
		AuthenticatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("failed to set user: %v", err)
	}
	cookie := sessionCookie(t, rec)

	if w := get(r, "/auth/me", cookie); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with session, got %d", w.Code)
	}

	req, _ = http.NewRequest("POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", w.Code)
	}

	if w := get(r, "/auth/me", sessionCookie(t, w)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", w.Code)
	}
}

func TestSafeReturnPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/reservations/123", "/reservations/123"},
		{"/reproductions?status=active", "/reproductions?status=active"},
		{"https://evil.example.com", "/"},
		{"//evil.example.com", "/"},
		{"/\\evil.example.com", "/"},
		{"reservations", "/"},
	}
	for _, tt := range tests {
		if got := safeReturnPath(tt.in); got != tt.want {
			t.Errorf("safeReturnPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
