package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimland-sync/internal/types"
)

const (
	loginPageHTML = `<html><body><form id="login-form"><input name="user"><input name="password" type="password"></form></body></html>`
	dashboardHTML = `<html><body><a href="/app/client/fonction/deconnexion.php">Déconnexion</a><script>App.init({});</script></body></html>`
)

type fakeSite struct {
	sentinel     string
	setCookie    bool
	rotate       bool
	indexLogged  string
	indexAnon    string
	posts        int32
	lastPostForm map[string]string
	lastPostXHR  string
	indexToken   string
	mu           sync.Mutex
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/client/index.php", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("PHPSESSID")
		if err != nil {
			if f.setCookie {
				http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "anon-token"})
			}
			w.Write([]byte(f.indexAnon))
			return
		}
		f.mu.Lock()
		f.indexToken = c.Value
		f.mu.Unlock()
		w.Write([]byte(f.indexLogged))
	})
	mux.HandleFunc("/app/client/fonction/connexion.php", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.posts, 1)
		r.ParseForm()
		f.mu.Lock()
		f.lastPostForm = map[string]string{
			"user":     r.PostForm.Get("user"),
			"password": r.PostForm.Get("password"),
			"username": r.PostForm.Get("username"),
		}
		f.lastPostXHR = r.Header.Get("X-Requested-With")
		f.mu.Unlock()
		if f.rotate {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "rotated-token"})
		}
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte(f.sentinel))
	})
	mux.HandleFunc("/app/client/fonction/deconnexion.php", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bye"))
	})
	return mux
}

func newTestAuthenticator(t *testing.T, site *fakeSite) *Authenticator {
	server := httptest.NewServer(site.handler())
	t.Cleanup(server.Close)

	config := types.DefaultConfig()
	config.BaseURL = server.URL
	config.RequestDelay = time.Millisecond
	config.MaxRetries = 0

	auth := NewAuthenticator(config, logrus.New())
	t.Cleanup(auth.Close)
	return auth
}

var creds = types.Credentials{LoginID: "client-42", Username: "shop", Secret: "s3cret"}

func TestAuthenticate_Success(t *testing.T) {
	site := &fakeSite{sentinel: "1", setCookie: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	ok := auth.Authenticate(context.Background(), creds)

	require.True(t, ok)
	assert.True(t, auth.IsLoggedIn())
	assert.Equal(t, "anon-token", auth.SessionToken())
	assert.Equal(t, "XMLHttpRequest", site.lastPostXHR)
	assert.Equal(t, map[string]string{"user": "client-42", "password": "s3cret", "username": "shop"}, site.lastPostForm)
	require.NotNil(t, auth.SessionCookie())
	assert.Equal(t, "PHPSESSID", auth.SessionCookie().Name)
}

func TestAuthenticate_RotatedToken(t *testing.T) {
	site := &fakeSite{sentinel: "2", setCookie: true, rotate: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	require.True(t, auth.Authenticate(context.Background(), creds))
	assert.Equal(t, "rotated-token", auth.SessionToken())
	assert.Equal(t, "rotated-token", site.indexToken)
}

func TestAuthenticate_SentinelButLoginFormStillShown(t *testing.T) {
	// the site answers "2" but the re-fetched page is still the login form
	site := &fakeSite{sentinel: "2", setCookie: true, indexAnon: loginPageHTML, indexLogged: loginPageHTML + `<script>App.init({});</script>`}
	auth := newTestAuthenticator(t, site)

	assert.False(t, auth.Authenticate(context.Background(), creds))
	assert.False(t, auth.IsLoggedIn())
	assert.Empty(t, auth.SessionToken())
}

func TestAuthenticate_FailureSentinel(t *testing.T) {
	site := &fakeSite{sentinel: "0", setCookie: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	assert.False(t, auth.Authenticate(context.Background(), creds))
	assert.False(t, auth.IsLoggedIn())
}

func TestAuthenticate_UnrecognizedSentinelDecidedByPage(t *testing.T) {
	site := &fakeSite{sentinel: "welcome-back", setCookie: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	assert.True(t, auth.Authenticate(context.Background(), creds))
}

func TestAuthenticate_NoAuthenticatedMarkers(t *testing.T) {
	site := &fakeSite{sentinel: "1", setCookie: true, indexAnon: loginPageHTML, indexLogged: "<html><body>Bienvenue</body></html>"}
	auth := newTestAuthenticator(t, site)

	assert.False(t, auth.Authenticate(context.Background(), creds))
}

func TestAuthenticate_NoSessionCookie(t *testing.T) {
	site := &fakeSite{sentinel: "1", setCookie: false, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	assert.False(t, auth.Authenticate(context.Background(), creds))
	assert.Equal(t, int32(0), atomic.LoadInt32(&site.posts))
}

func TestAuthenticate_NetworkError(t *testing.T) {
	config := types.DefaultConfig()
	config.BaseURL = "http://127.0.0.1:1"
	config.RequestDelay = time.Millisecond
	config.MaxRetries = 0
	config.Timeout = time.Second
	auth := NewAuthenticator(config, logrus.New())
	defer auth.Close()

	assert.False(t, auth.Authenticate(context.Background(), creds))
	assert.False(t, auth.IsLoggedIn())
}

func TestAuthenticate_ConcurrentCallsShareHandshake(t *testing.T) {
	site := &fakeSite{sentinel: "1", setCookie: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = auth.Authenticate(context.Background(), creds)
		}(i)
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&site.posts), int32(5))
	assert.True(t, auth.IsLoggedIn())
}

func TestLogout(t *testing.T) {
	site := &fakeSite{sentinel: "1", setCookie: true, indexAnon: loginPageHTML, indexLogged: dashboardHTML}
	auth := newTestAuthenticator(t, site)
	require.True(t, auth.Authenticate(context.Background(), creds))

	auth.Logout(context.Background())

	assert.False(t, auth.IsLoggedIn())
	assert.Empty(t, auth.SessionToken())
	assert.Nil(t, auth.SessionCookie())
}
