package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/chromedp/chromedp"

	"kimland-sync/internal/types"
)

// settle time after scrolling, for listings that load their cards lazily
const lazyLoadWait = 500 * time.Millisecond

// BrowserClient renders public storefront pages in a headless browser.
// It never carries the back-office session.
type BrowserClient struct {
	config *types.Config
	logger types.Logger
	opts   []chromedp.ExecAllocatorOption
}

// NewBrowserClient creates a browser client presenting the configured user agent
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	// chromedp logs through the standard logger
	log.SetOutput(io.Discard)

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(config.UserAgent))
	return &BrowserClient{
		config: config,
		logger: logger,
		opts:   opts,
	}
}

// GetPageContent returns the rendered HTML of url once the body is ready and the page has
// been scrolled to the bottom
func (b *BrowserClient) GetPageContent(ctx context.Context, url string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.config.Timeout)
	defer cancel()

	start := time.Now()
	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(lazyLoadWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", url, err)
	}

	b.logger.Debugf("Rendered %s in %v (%d bytes)", url, time.Since(start).Round(time.Millisecond), len(html))
	return html, nil
}
