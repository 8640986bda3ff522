package auth

import (
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

func init() {
	gob.Register(time.Time{})
}

const (
	// SessionName is the name of the session cookie.
	SessionName = "delivery_session"
	// StateKey is the session key for OIDC state.
	StateKey = "oidc_state"
	// ReturnToKey is the session key for the page to return to after login.
	ReturnToKey = "return_to"
	// SubjectKey is the session key for the OIDC subject.
	SubjectKey = "oidc_subject"
	// EmailKey is the session key for the user's email.
	EmailKey = "email"
	// NameKey is the session key for the user's name.
	NameKey = "name"
	// PermissionsKey is the session key for the permissions granted at login.
	PermissionsKey = "permissions"
	// AuthenticatedAtKey is the session key for when the user authenticated.
	AuthenticatedAtKey = "authenticated_at"
)

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Secret     []byte
	MaxAge     int  // seconds
	Secure     bool // require HTTPS
	HTTPOnly   bool
	SameSite   http.SameSite
	CookiePath string
}

// DefaultSessionConfig returns a SessionConfig with secure defaults.
func DefaultSessionConfig(secret []byte, secure bool) SessionConfig {
	return SessionConfig{
		Secret:     secret,
		MaxAge:     86400, // 24 hours
		Secure:     secure,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
		CookiePath: "/",
	}
}

// SessionStore wraps a gorilla/sessions store with helper methods.
type SessionStore struct {
	store  *sessions.CookieStore
	logger zerolog.Logger
}

// NewSessionStore creates a new session store.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	store := sessions.NewCookieStore(cfg.Secret)
	store.Options = &sessions.Options{
		Path:     cfg.CookiePath,
		MaxAge:   cfg.MaxAge,
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}

	s := &SessionStore{
		store:  store,
		logger: logger.With().Str("component", "session").Logger(),
	}

	s.logger.Info().
		Bool("secure", cfg.Secure).
		Int("max_age", cfg.MaxAge).
		Msg("session store initialized")

	return s, nil
}

// Get retrieves a session from the request.
func (s *SessionStore) Get(r *http.Request) (*sessions.Session, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Save saves the session to the response.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SetOIDCState stores the OIDC state and the page to return to.
func (s *SessionStore) SetOIDCState(r *http.Request, w http.ResponseWriter, state, returnTo string) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	session.Values[StateKey] = state
	session.Values[ReturnToKey] = returnTo
	return s.Save(r, w, session)
}

// GetOIDCState retrieves and clears the OIDC state and return path.
func (s *SessionStore) GetOIDCState(r *http.Request, w http.ResponseWriter) (state, returnTo string, err error) {
	session, err := s.Get(r)
	if err != nil {
		return "", "", err
	}
	state, ok := session.Values[StateKey].(string)
	if !ok {
		return "", "", fmt.Errorf("no state in session")
	}
	returnTo, _ = session.Values[ReturnToKey].(string)
	delete(session.Values, StateKey)
	delete(session.Values, ReturnToKey)
	if err := s.Save(r, w, session); err != nil {
		return "", "", err
	}
	return state, returnTo, nil
}

// SessionUser represents the authenticated staff member stored in session.
type SessionUser struct {
	Subject         string    `json:"subject"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Permissions     []string  `json:"permissions"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// SetUser stores user data in the session after successful authentication.
func (s *SessionStore) SetUser(r *http.Request, w http.ResponseWriter, user *SessionUser) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	session.Values[SubjectKey] = user.Subject
	session.Values[EmailKey] = user.Email
	session.Values[NameKey] = user.Name
	session.Values[PermissionsKey] = user.Permissions
	session.Values[AuthenticatedAtKey] = user.AuthenticatedAt
	return s.Save(r, w, session)
}

// GetUser retrieves the authenticated user from the session.
func (s *SessionStore) GetUser(r *http.Request) (*SessionUser, error) {
	session, err := s.Get(r)
	if err != nil {
		return nil, err
	}

	subject, ok := session.Values[SubjectKey].(string)
	if !ok || subject == "" {
		return nil, fmt.Errorf("no user in session")
	}

	email, _ := session.Values[EmailKey].(string)
	name, _ := session.Values[NameKey].(string)
	perms, _ := session.Values[PermissionsKey].([]string)
	authenticatedAt, _ := session.Values[AuthenticatedAtKey].(time.Time)

	return &SessionUser{
		Subject:         subject,
		Email:           email,
		Name:            name,
		Permissions:     perms,
		AuthenticatedAt: authenticatedAt,
	}, nil
}

// ClearUser removes user data from the session (logout).
func (s *SessionStore) ClearUser(r *http.Request, w http.ResponseWriter) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	delete(session.Values, SubjectKey)
	delete(session.Values, EmailKey)
	delete(session.Values, NameKey)
	delete(session.Values, PermissionsKey)
	delete(session.Values, AuthenticatedAtKey)
	// Set MaxAge to -1 to delete the cookie
	session.Options.MaxAge = -1
	return s.Save(r, w, session)
}

// IsAuthenticated checks if the session has a valid authenticated user.
func (s *SessionStore) IsAuthenticated(r *http.Request) bool {
	_, err := s.GetUser(r)
	return err == nil
}
