package utils

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"kimland-sync/internal/types"
)

// Page is a fetched HTML page together with the cookies the server set on it
type Page struct {
	URL        string
	StatusCode int
	Body       string
	Cookies    []*http.Cookie
}

// Cookie returns the value of the named cookie set by the response, or ""
func (p *Page) Cookie(name string) string {
	if p == nil {
		return ""
	}
	for _, c := range p.Cookies {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// HTTPClient provides HTTP functionality with rate limiting and retries
type HTTPClient struct {
	client  *resty.Client
	config  *types.Config
	logger  types.Logger
	limiter *time.Ticker
}

// NewHTTPClient creates a new HTTP client with the given configuration.
// The client keeps no cookie jar: session cookies are attached explicitly per request.
func NewHTTPClient(config *types.Config, logger types.Logger) *HTTPClient {
	client := resty.New()
	client.SetCookieJar(nil)
	if config.BaseURL != "" {
		client.SetBaseURL(config.BaseURL)
	}
	client.SetTimeout(config.Timeout)
	client.SetHeader("User-Agent", config.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	client.SetHeader("Accept-Language", "fr-FR,fr;q=0.9,en-US;q=0.5")
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	InstrumentResty(client, "kimland-sync/http")

	delay := config.RequestDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	return &HTTPClient{
		client:  client,
		config:  config,
		logger:  logger,
		limiter: time.NewTicker(delay),
	}
}

func (h *HTTPClient) wait(ctx context.Context) error {
	select {
	case <-h.limiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get performs a GET request with rate limiting and retries.
// Server errors and transport failures are retried, client errors are not.
func (h *HTTPClient) Get(ctx context.Context, target string, cookies ...*http.Cookie) (*Page, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if err := h.wait(ctx); err != nil {
			return nil, err
		}

		h.logger.Debugf("Making request to %s (attempt %d/%d)", target, attempt+1, h.config.MaxRetries+1)

		res, err := h.client.R().
			SetContext(ctx).
			SetCookies(cookies).
			Get(target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			h.logger.Warnf("Request failed (attempt %d): %v", attempt+1, err)
			continue
		}

		if res.StatusCode() < 200 || res.StatusCode() > 299 {
			lastErr = fmt.Errorf("unexpected status code: %d", res.StatusCode())
			h.logger.Warnf("Unexpected status code %d (attempt %d)", res.StatusCode(), attempt+1)
			if res.StatusCode() < 500 {
				break
			}
			continue
		}

		h.logger.Debugf("Successfully retrieved %d bytes from %s", len(res.Body()), target)
		return toPage(res), nil
	}

	return nil, fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// PostForm sends a URL-encoded form once. Login posts are not idempotent, so there is no retry.
func (h *HTTPClient) PostForm(ctx context.Context, target string, form url.Values, headers map[string]string, cookies ...*http.Cookie) (*Page, error) {
	if err := h.wait(ctx); err != nil {
		return nil, err
	}

	res, err := h.client.R().
		SetContext(ctx).
		SetCookies(cookies).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(target)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode())
	}
	return toPage(res), nil
}

// ResolveURL makes a site-relative link absolute against the configured base URL
func (h *HTTPClient) ResolveURL(ref string) string {
	return ResolveURL(h.config.BaseURL, ref)
}

// Close cleans up resources
func (h *HTTPClient) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

func toPage(res *resty.Response) *Page {
	page := &Page{
		StatusCode: res.StatusCode(),
		Body:       string(res.Body()),
		Cookies:    res.Cookies(),
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		page.URL = res.RawResponse.Request.URL.String()
	}
	return page
}

// ResolveURL resolves ref against base; unparsable input is returned untouched
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
