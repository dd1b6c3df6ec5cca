package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	entry := &Entry{JSON: map[string]any{"cost_min": 2450.0}}
	require.NoError(t, c.Set("k", entry, time.Minute))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, entry, got)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set("k", &Entry{Markdown: "# page"}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	body := strings.Repeat("x", 1000)
	// room for two entries of ~1.25KB each
	c := NewMemoryCache(2600)
	defer c.Close()

	require.NoError(t, c.Set("a", &Entry{Markdown: body}, time.Minute))
	require.NoError(t, c.Set("b", &Entry{Markdown: body}, time.Minute))

	_, ok := c.Get("a")
	require.True(t, ok)

	require.NoError(t, c.Set("c", &Entry{Markdown: body}, time.Minute))

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestMemoryCache_ReplaceKeepsSizeAccurate(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set("k", &Entry{Markdown: strings.Repeat("a", 500)}, time.Minute))
	require.NoError(t, c.Set("k", &Entry{Markdown: "short"}, time.Minute))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(len("short")+256), stats.SizeBytes)

	require.NoError(t, c.Delete("k"))
	assert.Equal(t, int64(0), c.Stats().SizeBytes)
}

func TestKey(t *testing.T) {
	schemaA := map[string]any{"type": "object", "properties": map[string]any{"cost_min": map[string]any{"type": "number"}}}
	schemaB := map[string]any{"type": "object", "properties": map[string]any{"avg_wait_weeks": map[string]any{"type": "number"}}}
	url := "https://www.treatmentconnect.co.uk/hip/leeds"

	assert.Equal(t, Key(url, schemaA, "p"), Key(url, schemaA, "p"))
	assert.NotEqual(t, Key(url, schemaA, "p"), Key(url, schemaB, "p"))
	assert.NotEqual(t, Key(url, schemaA, "p"), Key(url+"?x", schemaA, "p"))
	assert.NotEqual(t, Key(url, schemaA, "Spire Leeds"), Key(url, schemaA, "Spire Bradford"))
	assert.Equal(t, url+"::markdown", Key(url, nil, ""))
}
