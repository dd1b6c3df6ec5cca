// Package proxy rotates direct page fetches across a list of HTTP proxies,
// skipping proxies that failed recently.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultCooldown is how long a failed proxy is skipped
const DefaultCooldown = 5 * time.Minute

// Pool hands out proxies round-robin
type Pool struct {
	mu       sync.Mutex
	proxies  []*url.URL
	index    int
	failed   map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewPool parses raw proxy URLs. Entries without a scheme are taken as http.
func NewPool(raw []string, cooldown time.Duration) (*Pool, error) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	p := &Pool{
		failed:   make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", r)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %s", r, u.Scheme)
		}
		p.proxies = append(p.proxies, u)
	}
	return p, nil
}

// Len returns the number of proxies in the pool
func (p *Pool) Len() int {
	return len(p.proxies)
}

// Next returns the next healthy proxy. When every proxy is cooling down
// the next one in line is returned anyway. Nil means the pool is empty.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	first := p.proxies[p.index]
	for range p.proxies {
		u := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		failedAt, ok := p.failed[u.Host]
		if !ok {
			return u
		}
		if p.now().Sub(failedAt) >= p.cooldown {
			delete(p.failed, u.Host)
			return u
		}
	}
	return first
}

// MarkFailed makes u skipped until its cooldown expires
func (p *Pool) MarkFailed(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[u.Host] = p.now()
}

// MarkHealthy clears the failure status of u
func (p *Pool) MarkHealthy(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, u.Host)
}

// Transport is an http.RoundTripper sending each request through the next
// proxy of the pool. One underlying transport is kept per proxy so
// connections are reused.
type Transport struct {
	pool *Pool
	base func() *http.Transport

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewTransport wraps pool. base builds the transport cloned for each proxy;
// nil clones http.DefaultTransport.
func NewTransport(pool *Pool, base func() *http.Transport) *Transport {
	if base == nil {
		base = func() *http.Transport {
			return http.DefaultTransport.(*http.Transport).Clone()
		}
	}
	return &Transport{
		pool:       pool,
		base:       base,
		transports: make(map[string]*http.Transport),
	}
}

// transport returns the transport for u, or a direct one when u is nil
func (t *Transport) transport(u *url.URL) *http.Transport {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := "direct"
	if u != nil {
		key = u.String()
	}
	tr, ok := t.transports[key]
	if !ok {
		tr = t.base()
		tr.Proxy = nil
		if u != nil {
			tr.Proxy = http.ProxyURL(u)
		}
		t.transports[key] = tr
	}
	return tr
}

// RoundTrip implements http.RoundTripper. Connection errors and 407 answers
// put the proxy on cooldown.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	u := t.pool.Next()
	if u == nil {
		return t.transport(nil).RoundTrip(req)
	}

	resp, err := t.transport(u).RoundTrip(req)
	if err != nil {
		if req.Context().Err() == nil {
			log.Debug().Err(err).Str("proxy", u.Host).Msg("Proxy failed")
			t.pool.MarkFailed(u)
		}
		return nil, err
	}
	if resp.StatusCode == http.StatusProxyAuthRequired {
		t.pool.MarkFailed(u)
	} else {
		t.pool.MarkHealthy(u)
	}
	return resp, nil
}

// CloseIdleConnections closes idle connections of every proxy transport
func (t *Transport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.transports {
		tr.CloseIdleConnections()
	}
}
