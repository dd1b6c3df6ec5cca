package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_EnforcesDelay(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "https://api.example.com/a"))
	require.NoError(t, p.Wait(ctx, "https://other.example.org/b"))
	require.NoError(t, p.Wait(ctx, "https://api.example.com/c"))

	// first call is free, the next two wait one delay each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, p.Delay())
}

func TestPacer_ZeroDelay(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Wait(context.Background(), "https://example.com"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Wait(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDomainLimiter_PerHost(t *testing.T) {
	dl := NewDomainLimiter(1, 1)

	assert.True(t, dl.Allow("https://a.example.com/x"))
	assert.False(t, dl.Allow("https://a.example.com/y"))
	assert.True(t, dl.Allow("https://b.example.com/x"))

	// unparsable URLs are let through
	assert.True(t, dl.Allow("://bad"))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestChain(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)
	dl := NewDomainLimiter(100, 1)
	c := Chain{p, nil, dl}

	start := time.Now()
	require.NoError(t, c.Wait(context.Background(), "https://a.example.com"))
	require.NoError(t, c.Wait(context.Background(), "https://b.example.com"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Wait(ctx, "https://a.example.com"))
}
