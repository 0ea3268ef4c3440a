package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

var tracer = otel.Tracer("kimland-sync/session")

// Session is the remote back-office session. Only the Authenticator mutates it.
type Session struct {
	mu            sync.RWMutex
	authenticated bool
	token         string
}

// IsAuthenticated reports whether the last handshake succeeded
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Token returns the current session token, possibly empty
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) set(authenticated bool, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = authenticated
	s.token = token
}

// sentinels answered by the login endpoint
var (
	loginSuccessSentinels = []string{"1", "2", "success"}
	loginFailureSentinels = []string{"", "0", "-1", "error", "false", "fail", "failed"}
)

// only rendered once logged in
var authenticatedMarkers = []string{
	".init(",
	"app.init",
	"deconnexion",
	"déconnexion",
	"logout",
}

// only rendered by the anonymous login page
var loginFormMarkers = []string{
	`name="password"`,
	`name='password'`,
	`id="login-form"`,
	`id="loginform"`,
	`class="login-form"`,
}

// Authenticator owns the remote session lifecycle for one set of credentials
type Authenticator struct {
	config  *types.Config
	logger  types.Logger
	http    *utils.HTTPClient
	session *Session

	mu    sync.Mutex
	group singleflight.Group
}

// NewAuthenticator creates an authenticator with a fresh, unauthenticated session
func NewAuthenticator(config *types.Config, logger types.Logger) *Authenticator {
	return &Authenticator{
		config:  config,
		logger:  logger,
		http:    utils.NewHTTPClient(config, logger),
		session: &Session{},
	}
}

// HTTP exposes the client used for the session so other components reuse it
func (a *Authenticator) HTTP() *utils.HTTPClient {
	return a.http
}

// SessionToken returns the active session token
func (a *Authenticator) SessionToken() string {
	return a.session.Token()
}

// IsLoggedIn reports whether the session is authenticated
func (a *Authenticator) IsLoggedIn() bool {
	return a.session.IsAuthenticated()
}

// SessionCookie returns the cookie to attach to authenticated requests, or nil
func (a *Authenticator) SessionCookie() *http.Cookie {
	token := a.session.Token()
	if token == "" {
		return nil
	}
	return &http.Cookie{Name: a.config.SessionCookieName, Value: token}
}

// Authenticate runs the 3-step login handshake. Concurrent callers share one handshake.
// A failed login is reported as false, never as an error.
func (a *Authenticator) Authenticate(ctx context.Context, creds types.Credentials) bool {
	result, _, _ := a.group.Do(creds.LoginID+"\x00"+creds.Username, func() (interface{}, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.handshake(ctx, creds), nil
	})
	return result.(bool)
}

func (a *Authenticator) handshake(ctx context.Context, creds types.Credentials) bool {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	a.session.set(false, "")

	// step 1: anonymous index fetch to obtain a session cookie
	page, err := a.http.Get(ctx, a.config.LoginPagePath)
	if err != nil {
		a.logger.Warnf("Login page fetch failed: %v", err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return false
	}
	token := page.Cookie(a.config.SessionCookieName)
	if token == "" {
		a.logger.Warnf("Login page did not set a %s cookie", a.config.SessionCookieName)
		span.SetStatus(codes.Error, "no session cookie")
		return false
	}

	// step 2: credential post, token may rotate
	form := url.Values{
		"user":     {creds.LoginID},
		"password": {creds.Secret},
		"username": {creds.Username},
	}
	page, err = a.http.PostForm(ctx, a.config.LoginPostPath, form,
		map[string]string{"X-Requested-With": "XMLHttpRequest"},
		&http.Cookie{Name: a.config.SessionCookieName, Value: token},
	)
	if err != nil {
		a.logger.Warnf("Login post failed: %v", err)
		span.SetStatus(codes.Error, "failed to post credentials")
		return false
	}
	sentinel := strings.TrimSpace(page.Body)
	if rotated := page.Cookie(a.config.SessionCookieName); rotated != "" && rotated != token {
		a.logger.Debugf("Session token rotated by login response")
		token = rotated
	}

	// step 3: authenticated index fetch
	page, err = a.http.Get(ctx, a.config.IndexPath, &http.Cookie{Name: a.config.SessionCookieName, Value: token})
	if err != nil {
		a.logger.Warnf("Authenticated index fetch failed: %v", err)
		span.SetStatus(codes.Error, "failed to fetch index")
		return false
	}

	sentinelOK := a.classifySentinel(sentinel)
	authUI := containsAny(page.Body, authenticatedMarkers)
	loginForm := containsAny(page.Body, loginFormMarkers)

	span.SetAttributes(
		attribute.Bool("login.sentinel_ok", sentinelOK),
		attribute.Bool("login.authenticated_ui", authUI),
		attribute.Bool("login.form_present", loginForm),
	)

	if !sentinelOK || !authUI || loginForm {
		a.logger.Warnf("Login rejected (sentinel ok: %v, authenticated ui: %v, login form present: %v)", sentinelOK, authUI, loginForm)
		span.SetStatus(codes.Error, types.ErrAuthFailure.Error())
		return false
	}

	a.session.set(true, token)
	a.logger.Infof("Authenticated on %s as %s", a.config.BaseURL, creds.Username)
	return true
}

// classifySentinel grants signal (a) for known success values and for values it has never
// seen; the latter are logged so the sentinel list can be recalibrated.
func (a *Authenticator) classifySentinel(sentinel string) bool {
	lower := strings.ToLower(sentinel)
	for _, s := range loginSuccessSentinels {
		if lower == s {
			return true
		}
	}
	for _, s := range loginFailureSentinels {
		if lower == s {
			return false
		}
	}
	if len(sentinel) > 64 {
		sentinel = sentinel[:64] + "..."
	}
	a.logger.Warnf("Unrecognized login sentinel %q, deciding on page markers", sentinel)
	return true
}

// Logout ends the remote session. The local session is cleared even if the request fails.
func (a *Authenticator) Logout(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cookie := a.SessionCookie(); cookie != nil && a.config.LogoutPath != "" {
		if _, err := a.http.Get(ctx, a.config.LogoutPath, cookie); err != nil {
			a.logger.Debugf("Logout request failed: %v", err)
		}
	}
	a.session.set(false, "")
}

// Close cleans up resources
func (a *Authenticator) Close() {
	a.http.Close()
}

func containsAny(body string, markers []string) bool {
	lower := strings.ToLower(body)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

