package utils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimland-sync/internal/types"
)

func testConfig(baseURL string) *types.Config {
	config := types.DefaultConfig()
	config.BaseURL = baseURL
	config.RequestDelay = 5 * time.Millisecond
	config.Timeout = 5 * time.Second
	return config
}

func TestNewHTTPClient(t *testing.T) {
	config := types.DefaultConfig()
	logger := logrus.New()

	client := NewHTTPClient(config, logger)

	assert.NotNil(t, client)
	assert.Equal(t, config, client.config)
	assert.Equal(t, logger, client.logger)
	assert.NotNil(t, client.client)
	assert.NotNil(t, client.limiter)

	client.Close()
}

func TestHTTPClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL), logrus.New())
	defer client.Close()

	page, err := client.Get(context.Background(), "/index.php")

	require.NoError(t, err)
	assert.Equal(t, "test response", page.Body)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "abc123", page.Cookie("PHPSESSID"))
	assert.Empty(t, page.Cookie("missing"))
}

func TestHTTPClient_Get_SendsCookies(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("PHPSESSID"); err == nil {
			received = c.Value
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL), logrus.New())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL+"/page", &http.Cookie{Name: "PHPSESSID", Value: "tok"})

	require.NoError(t, err)
	assert.Equal(t, "tok", received)
}

func TestHTTPClient_Get_NotFound(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.MaxRetries = 2
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 404")
	assert.Equal(t, 1, calls)
}

func TestHTTPClient_Get_RetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.MaxRetries = 1
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	page, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "recovered", page.Body)
	assert.Equal(t, 2, calls)
}

func TestHTTPClient_Get_ContextCancelled(t *testing.T) {
	config := types.DefaultConfig()
	config.RequestDelay = 100 * time.Millisecond
	client := NewHTTPClient(config, logrus.New())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "http://example.com")

	assert.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestHTTPClient_PostForm(t *testing.T) {
	var body, xhr, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		xhr = r.Header.Get("X-Requested-With")
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte("1"))
	}))
	defer server.Close()

	client := NewHTTPClient(testConfig(server.URL), logrus.New())
	defer client.Close()

	form := url.Values{"user": {"u"}, "password": {"p w"}}
	page, err := client.PostForm(context.Background(), "/login", form, map[string]string{"X-Requested-With": "XMLHttpRequest"})

	require.NoError(t, err)
	assert.Equal(t, "1", page.Body)
	assert.Equal(t, "password=p+w&user=u", body)
	assert.Equal(t, "XMLHttpRequest", xhr)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://kimland.dz/app/p.php?id=4", ResolveURL("https://kimland.dz", "/app/p.php?id=4"))
	assert.Equal(t, "https://kimland.dz/app/client/p.php", ResolveURL("https://kimland.dz/app/client/index.php", "p.php"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", ResolveURL("https://kimland.dz", "https://cdn.example.com/a.jpg"))
	assert.Equal(t, "", ResolveURL("https://kimland.dz", ""))
}

func TestHTTPClient_Close(t *testing.T) {
	client := NewHTTPClient(types.DefaultConfig(), logrus.New())

	// Should not panic
	client.Close()
}
