// Package headers parses "Key: Value" header lines given on the command
// line or in the config file.
package headers

import (
	"fmt"
	"net/http"
	"strings"
)

// Parse converts header lines into an http.Header. Keys are canonicalised
// and repeated keys accumulate values.
func Parse(lines []string) (http.Header, error) {
	h := make(http.Header)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("invalid header %q (want \"Key: Value\")", line)
		}
		h.Add(key, strings.TrimSpace(value))
	}
	return h, nil
}

// Apply sets every header of h on req, replacing existing values
func Apply(req *http.Request, h http.Header) {
	for k, vs := range h {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
