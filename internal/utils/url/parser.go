package urlutil

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/comparethewait/ctw/pkg/models"
)

// ValidateURL checks that urlStr is an absolute http(s) URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// ResolveURL resolves a possibly-relative href against a base URL and returns a string
func ResolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}

// ResolveRelativeLinks rewrites the links and scripts of a fetched page to absolute URLs
func ResolveRelativeLinks(data *models.PageData) {
	for i, link := range data.Links {
		data.Links[i] = ResolveURL(data.URL, link)
	}
	for i, script := range data.Scripts {
		data.Scripts[i] = ResolveURL(data.URL, script)
	}
}

// Fill replaces {name} placeholders in tmpl. Values are path-escaped,
// except in the query string where they are query-escaped.
func Fill(tmpl string, vars map[string]string) string {
	query := strings.IndexByte(tmpl, '?')
	var b strings.Builder
	for i := 0; i < len(tmpl); {
		if tmpl[i] == '{' {
			if end := strings.IndexByte(tmpl[i:], '}'); end > 0 {
				name := tmpl[i+1 : i+end]
				if v, ok := vars[name]; ok {
					if query >= 0 && i > query {
						b.WriteString(url.QueryEscape(v))
					} else {
						b.WriteString(url.PathEscape(v))
					}
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}
