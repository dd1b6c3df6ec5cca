// Package dynamic renders pages in headless Chrome for sources that build
// their content with JavaScript
package dynamic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/engine/metadata"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/pkg/models"
)

// settleDelay lets client-side rendering finish after the load event
const settleDelay = 1500 * time.Millisecond

// Scraper renders pages with chromedp. Each Fetch starts its own browser
// process; a run renders few pages.
type Scraper struct {
	limiter    ratelimit.Limiter
	timeout    time.Duration
	userAgent  string
	chromePath string
}

// New creates a rendering scraper. chromePath may be empty to auto-detect.
func New(lim ratelimit.Limiter, timeout time.Duration, ua, chromePath string) *Scraper {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Scraper{
		limiter:    lim,
		timeout:    timeout,
		userAgent:  ua,
		chromePath: FindChrome(chromePath),
	}
}

// Name returns the name of this scraper
func (d *Scraper) Name() string {
	return "dynamic"
}

// Available reports whether a browser executable was found
func (d *Scraper) Available() bool {
	return d.chromePath != ""
}

func (d *Scraper) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1366,900"),
	}
	if d.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(d.chromePath))
	}
	if d.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.userAgent))
	}
	return opts
}

// Fetch renders the page at opts.URL and returns its final DOM
func (d *Scraper) Fetch(ctx context.Context, opts models.FetchOptions) (*models.PageData, error) {
	if !d.Available() {
		return nil, retry.Permanent(engine.ErrBrowserNotFound)
	}
	start := time.Now()

	log.Debug().
		Str("url", opts.URL).
		Str("scraper", d.Name()).
		Msg("Starting fetch")

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, opts.URL); err != nil {
			return nil, err
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = d.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, d.allocatorOptions()...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var (
		htmlContent string
		title       string
		statusCode  int64
	)

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && statusCode == 0 {
				statusCode = resp.Response.Status
			}
		}
	})

	err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(opts.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp execution failed: %w", err)
	}

	if statusCode >= 400 {
		return nil, retry.NewHTTPError(int(statusCode), "", opts.URL)
	}

	responseTime := time.Since(start).Milliseconds()
	pageData := &models.PageData{
		URL:          opts.URL,
		StatusCode:   int(statusCode),
		Title:        title,
		FetchedAt:    time.Now(),
		ResponseTime: responseTime,
		Metadata:     make(map[string]string),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrParseError, err)
	}
	pageData.Content, pageData.HTML = metadata.ExtractContent(doc)
	metadata.Extract(doc, pageData)
	if title != "" {
		pageData.Title = title
	}

	log.Info().
		Str("url", opts.URL).
		Int("status", pageData.StatusCode).
		Int64("response_time_ms", responseTime).
		Msg("Render completed")

	return pageData, nil
}
