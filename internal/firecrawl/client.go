// Package firecrawl talks to the hosted LLM extraction API: JSON mode
// extraction with a schema and prompt, and plain markdown scraping.
package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	fc "github.com/mendableai/firecrawl-go"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/cache"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/retry"
)

// DefaultBaseURL is the hosted API endpoint
const DefaultBaseURL = "https://api.firecrawl.dev"

var (
	// ErrNoAPIKey is returned by every call when no API key is configured
	ErrNoAPIKey = errors.New("extraction API key not configured")

	// ErrEmptyResult is returned when the API answers without data
	ErrEmptyResult = errors.New("extraction returned no data")
)

// scrapeFunc returns the markdown of a page
type scrapeFunc func(url string) (string, error)

// Options configures a Client
type Options struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	CacheTTL  time.Duration

	// Cache, if set, serves repeated (url, schema) requests within a run
	Cache cache.Cache
	// Limiter, if set, paces every request that reaches the network
	Limiter ratelimit.Limiter
}

// Client calls the extraction API
type Client struct {
	http     *resty.Client
	scrape   scrapeFunc
	baseURL  string
	apiKey   string
	timeout  time.Duration
	cache    cache.Cache
	cacheTTL time.Duration
	limiter  ratelimit.Limiter
}

// New creates a client. A client without an API key is valid but not Available.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 6 * time.Hour
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		httpClient.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.APIKey != "" {
		httpClient.SetAuthToken(opts.APIKey)
	}

	c := &Client{
		http:     httpClient,
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		timeout:  opts.Timeout,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		limiter:  opts.Limiter,
	}

	if opts.APIKey != "" {
		app, err := fc.NewFirecrawlApp(opts.APIKey, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize extraction SDK: %w", err)
		}
		c.scrape = func(url string) (string, error) {
			doc, err := app.ScrapeURL(url, nil)
			if err != nil {
				return "", err
			}
			if doc == nil {
				return "", nil
			}
			return doc.Markdown, nil
		}
	}

	return c, nil
}

// Available reports whether the API can be called
func (c *Client) Available() bool {
	return c != nil && c.apiKey != ""
}

type jsonOptions struct {
	Schema map[string]any `json:"schema"`
	Prompt string         `json:"prompt,omitempty"`
}

type scrapeRequest struct {
	URL             string      `json:"url"`
	Formats         []string    `json:"formats"`
	JSONOptions     jsonOptions `json:"jsonOptions"`
	OnlyMainContent bool        `json:"onlyMainContent"`
	Timeout         int64       `json:"timeout,omitempty"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		JSON     map[string]any `json:"json"`
		Markdown string         `json:"markdown"`
		Metadata struct {
			StatusCode int    `json:"statusCode"`
			Error      string `json:"error"`
		} `json:"metadata"`
	} `json:"data"`
}

// ExtractJSON scrapes url in JSON mode and returns the extracted object
func (c *Client) ExtractJSON(ctx context.Context, url string, schema map[string]any, prompt string) (map[string]any, error) {
	if !c.Available() {
		return nil, retry.Permanent(ErrNoAPIKey)
	}

	key := cache.Key(url, schema, prompt)
	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok && entry.JSON != nil {
			return entry.JSON, nil
		}
	}

	if err := c.wait(ctx, url); err != nil {
		return nil, err
	}

	start := time.Now()
	var out scrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(scrapeRequest{
			URL:             url,
			Formats:         []string{"json"},
			JSONOptions:     jsonOptions{Schema: schema, Prompt: prompt},
			OnlyMainContent: true,
			Timeout:         c.timeout.Milliseconds(),
		}).
		Post("/v1/scrape")
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("Extraction API response")

	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Data.JSON) == 0 {
		return nil, retry.Permanent(ErrEmptyResult)
	}

	if c.cache != nil {
		_ = c.cache.Set(key, &cache.Entry{JSON: out.Data.JSON}, c.cacheTTL)
	}
	return out.Data.JSON, nil
}

// Markdown scrapes url and returns the page as markdown
func (c *Client) Markdown(ctx context.Context, url string) (string, error) {
	if !c.Available() || c.scrape == nil {
		return "", retry.Permanent(ErrNoAPIKey)
	}

	key := cache.Key(url, nil, "")
	if c.cache != nil {
		if entry, ok := c.cache.Get(key); ok && entry.Markdown != "" {
			return entry.Markdown, nil
		}
	}

	if err := c.wait(ctx, url); err != nil {
		return "", err
	}

	// The SDK call takes no context, so it runs detached and the result is
	// dropped if ctx ends first.
	type result struct {
		markdown string
		err      error
	}
	done := make(chan result, 1)
	go func() {
		md, err := c.scrape(url)
		done <- result{markdown: md, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if res.err != nil {
		return "", fmt.Errorf("markdown scrape failed: %w", res.err)
	}
	if strings.TrimSpace(res.markdown) == "" {
		return "", retry.Permanent(ErrEmptyResult)
	}

	if c.cache != nil {
		_ = c.cache.Set(key, &cache.Entry{Markdown: res.markdown}, c.cacheTTL)
	}
	return res.markdown, nil
}

func (c *Client) wait(ctx context.Context, url string) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, url)
}

// decodeResponse maps API failures to retry.HTTPError so the retry policy
// can classify them
func decodeResponse(resp *resty.Response, out *scrapeResponse) error {
	body := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		var apiErr scrapeResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return retry.NewHTTPError(resp.StatusCode(), http.StatusText(resp.StatusCode()), msg)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid extraction response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = "request was not successful"
		}
		return retry.Permanent(fmt.Errorf("extraction API: %s", out.Error))
	}
	if sc := out.Data.Metadata.StatusCode; sc >= 400 {
		return retry.NewHTTPError(sc, http.StatusText(sc), "target page returned an error")
	}
	return nil
}
