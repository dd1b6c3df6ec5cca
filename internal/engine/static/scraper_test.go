package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/pkg/models"
)

func newTestScraper() *Scraper {
	return New(ratelimit.NewPacer(0), &http.Client{}, 5*time.Second, "ctw-test/1.0")
}

func TestScraper_Fetch_BasicHTML(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
	<title>Hip replacement waiting times</title>
	<meta name="description" content="NHS waits">
	<script src="/app.js"></script>
</head>
<body>
	<nav><a href="/">Home</a></nav>
	<main>
		<h1>Leeds Teaching Hospitals</h1>
		<p>Average wait 18 weeks</p>
		<a href="/trusts/leeds">Trust</a>
		<a href="/trusts/leeds">Trust again</a>
		<a href="#top">Top</a>
	</main>
</body>
</html>`))
	}))
	defer server.Close()

	pageData, err := newTestScraper().Fetch(context.Background(), models.FetchOptions{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if pageData.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", pageData.StatusCode)
	}
	if pageData.Title != "Hip replacement waiting times" {
		t.Errorf("Unexpected title %q", pageData.Title)
	}
	if pageData.Metadata["description"] != "NHS waits" {
		t.Errorf("Expected metadata description 'NHS waits', got %q", pageData.Metadata["description"])
	}
	if len(pageData.Links) != 2 {
		t.Errorf("Expected 2 unique links, got %d: %v", len(pageData.Links), pageData.Links)
	}
	if len(pageData.Scripts) != 1 || pageData.Scripts[0] != "/app.js" {
		t.Errorf("Unexpected scripts %v", pageData.Scripts)
	}
	if !strings.HasPrefix(pageData.Content, "Leeds Teaching Hospitals") {
		t.Errorf("Expected main content, got %q", pageData.Content)
	}
	if userAgent != "ctw-test/1.0" {
		t.Errorf("Expected user agent to be sent, got %q", userAgent)
	}
}

func TestScraper_Fetch_HTTPErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestScraper().Fetch(context.Background(), models.FetchOptions{URL: server.URL})
			var httpErr retry.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Expected HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, httpErr.StatusCode)
			}
			if got := retry.Retryable(err, retry.DefaultConfig()); got != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestScraper_Fetch_UnsupportedType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	_, err := newTestScraper().Fetch(context.Background(), models.FetchOptions{URL: server.URL})
	if !errors.Is(err, engine.ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType, got %v", err)
	}
	if retry.Retryable(err, retry.DefaultConfig()) {
		t.Error("Unsupported content should not be retried")
	}
}

func TestScraper_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	_, err := newTestScraper().Fetch(context.Background(), models.FetchOptions{URL: server.URL, Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
}

func TestScraper_Name(t *testing.T) {
	if newTestScraper().Name() != "static" {
		t.Errorf("Expected name 'static', got %q", newTestScraper().Name())
	}
}

func TestScraper_WithHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><p>ok</p></body></html>`))
	}))
	defer server.Close()

	s := newTestScraper().WithHeaders(http.Header{
		"Accept-Language": {"cy-GB"},
		"Cookie":          {"consent=yes"},
	})
	if _, err := s.Fetch(context.Background(), models.FetchOptions{URL: server.URL}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if got.Get("Accept-Language") != "cy-GB" {
		t.Errorf("Expected overridden Accept-Language, got %q", got.Get("Accept-Language"))
	}
	if got.Get("Cookie") != "consent=yes" {
		t.Errorf("Expected cookie header, got %q", got.Get("Cookie"))
	}
	if got.Get("User-Agent") != "ctw-test/1.0" {
		t.Errorf("Expected default user agent, got %q", got.Get("User-Agent"))
	}
}
