package adapters

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"kimland-sync/internal/types"
	"kimland-sync/utils"
)

// SessionSource supplies the cookie of the active back-office session.
// *session.Authenticator satisfies it.
type SessionSource interface {
	SessionCookie() *http.Cookie
}

// BaseAdapter provides the page access shared by the locator and the variant extractor.
// Authenticated pages go through the session's HTTP client with the session cookie attached,
// public pages go through a separate client (or the headless browser) that never carries it.
type BaseAdapter struct {
	config        *types.Config
	logger        types.Logger
	httpClient    *utils.HTTPClient    // shared with the authenticator
	publicClient  *utils.HTTPClient    // anonymous storefront requests
	browserClient *utils.BrowserClient // headless browser for the public fallback
	session       SessionSource
}

// NewBaseAdapter creates a base adapter around the session's HTTP client
func NewBaseAdapter(config *types.Config, logger types.Logger, httpClient *utils.HTTPClient, session SessionSource) *BaseAdapter {
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(config, logger)
	}
	return &BaseAdapter{
		config:        config,
		logger:        logger,
		httpClient:    httpClient,
		publicClient:  utils.NewHTTPClient(config, logger),
		browserClient: utils.NewBrowserClient(config, logger),
		session:       session,
	}
}

// GetPageContent retrieves a page with the back-office session cookie when one is active
func (b *BaseAdapter) GetPageContent(ctx context.Context, url string) (string, error) {
	var cookies []*http.Cookie
	if b.session != nil {
		if cookie := b.session.SessionCookie(); cookie != nil {
			cookies = append(cookies, cookie)
		}
	}

	page, err := b.httpClient.Get(ctx, url, cookies...)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// GetPublicPageContent retrieves a page anonymously.
// The headless browser is used for storefronts that render their listing client-side.
func (b *BaseAdapter) GetPublicPageContent(ctx context.Context, url string) (string, error) {
	if b.config.UseHeadlessBrowser {
		return b.browserClient.GetPageContent(ctx, b.ResolveURL(url))
	}

	page, err := b.publicClient.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return page.Body, nil
}

// ParseHTML parses HTML content into a goquery document
func (b *BaseAdapter) ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ResolveURL makes a link found on the remote site absolute
func (b *BaseAdapter) ResolveURL(ref string) string {
	return utils.ResolveURL(b.config.BaseURL, ref)
}

// FirstText returns the first non-empty text found by the ordered selectors
func FirstText(sel *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		var text string
		sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text = utils.CollapseWhitespace(s.Text())
			return text == ""
		})
		if text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr returns the first non-empty value of any of attrs on the elements matched by
// the ordered selectors. The fragment root itself is checked first.
func FirstAttr(sel *goquery.Selection, selectors []string, attrs ...string) string {
	for _, selector := range selectors {
		matches := sel.Find(selector)
		if sel.Is(selector) {
			matches = sel.AddSelection(matches)
		}

		var value string
		matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, attr := range attrs {
				if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
					value = strings.TrimSpace(v)
					return false
				}
			}
			return true
		})
		if value != "" {
			return value
		}
	}
	return ""
}

// RemoveDuplicateURLs removes duplicate URLs while keeping their order
func RemoveDuplicateURLs(urls []string) []string {
	seen := make(map[string]bool)
	var uniqueURLs []string

	for _, url := range urls {
		if !seen[url] {
			seen[url] = true
			uniqueURLs = append(uniqueURLs, url)
		}
	}

	return uniqueURLs
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config returns the adapter configuration
func (b *BaseAdapter) Config() *types.Config {
	return b.config
}

// Close cleans up resources. The session client belongs to the authenticator and is left open.
func (b *BaseAdapter) Close() {
	if b.publicClient != nil {
		b.publicClient.Close()
	}
}
