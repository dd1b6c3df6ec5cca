// Package static fetches pages with plain HTTP requests and parses them with goquery
package static

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/engine/metadata"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/internal/utils/headers"
	"github.com/comparethewait/ctw/pkg/models"
)

// maxBodySize caps how much of a response body is read
const maxBodySize = 10 << 20

// Scraper fetches static HTML pages
type Scraper struct {
	limiter   ratelimit.Limiter
	client    *http.Client
	timeout   time.Duration
	userAgent string
	headers   http.Header
}

// New creates a static scraper. A nil client uses http.DefaultClient.
func New(lim ratelimit.Limiter, client *http.Client, timeout time.Duration, ua string) *Scraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &Scraper{
		limiter:   lim,
		client:    client,
		timeout:   timeout,
		userAgent: ua,
	}
}

// WithHeaders sets extra headers sent with every request, overriding the
// defaults
func (s *Scraper) WithHeaders(h http.Header) *Scraper {
	s.headers = h
	return s
}

// Name returns the name of this scraper
func (s *Scraper) Name() string {
	return "static"
}

// Fetch retrieves and parses a static HTML page
func (s *Scraper) Fetch(ctx context.Context, opts models.FetchOptions) (*models.PageData, error) {
	data, _, err := s.FetchWithDoc(ctx, opts)
	return data, err
}

// FetchWithDoc retrieves a page, returning both the page data and the parsed document
func (s *Scraper) FetchWithDoc(ctx context.Context, opts models.FetchOptions) (*models.PageData, *goquery.Document, error) {
	start := time.Now()

	log.Debug().
		Str("url", opts.URL).
		Str("scraper", s.Name()).
		Msg("Starting fetch")

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, opts.URL); err != nil {
			return nil, nil, err
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	headers.Apply(req, s.headers)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil, retry.NewHTTPError(resp.StatusCode, "", opts.URL)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if !strings.Contains(mediaType, "html") && !strings.HasPrefix(mediaType, "text/") {
			return nil, nil, retry.Permanent(fmt.Errorf("%w: %s", engine.ErrUnsupportedType, mediaType))
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", engine.ErrParseError, err)
	}

	responseTime := time.Since(start).Milliseconds()

	pageData := &models.PageData{
		URL:          opts.URL,
		StatusCode:   resp.StatusCode,
		FetchedAt:    time.Now(),
		ResponseTime: responseTime,
		Metadata:     make(map[string]string),
	}
	pageData.Content, pageData.HTML = metadata.ExtractContent(doc)
	metadata.Extract(doc, pageData)

	log.Debug().
		Str("url", opts.URL).
		Int("status", resp.StatusCode).
		Int64("response_time_ms", responseTime).
		Int("links", len(pageData.Links)).
		Msg("Fetch completed")

	return pageData, doc, nil
}
