package headers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	h, err := Parse([]string{"accept-language: en-GB", "Cookie: consent=yes; region=uk", "X-Trace: a", "x-trace: b", ""})
	require.NoError(t, err)

	assert.Equal(t, "en-GB", h.Get("Accept-Language"))
	assert.Equal(t, "consent=yes; region=uk", h.Get("Cookie"))
	assert.Equal(t, []string{"a", "b"}, h.Values("X-Trace"))
}

func TestParse_Invalid(t *testing.T) {
	for _, line := range []string{"BadHeader", ": value", "Bad Key: v"} {
		t.Run(line, func(t *testing.T) {
			_, err := Parse([]string{line})
			assert.Error(t, err)
		})
	}
}

func TestApply(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "fr")
	req.Header.Set("User-Agent", "ctw")

	Apply(req, http.Header{"Accept-Language": {"en-GB"}})
	assert.Equal(t, "en-GB", req.Header.Get("Accept-Language"))
	assert.Equal(t, "ctw", req.Header.Get("User-Agent"))
}
