// Package retry runs extraction calls with bounded retries and backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Strategy selects how the backoff grows between attempts
type Strategy string

const (
	Exponential Strategy = "exponential"
	Linear      Strategy = "linear"
)

// ParseStrategy converts a config value into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Exponential:
		return Exponential, nil
	case Linear:
		return Linear, nil
	}
	return "", fmt.Errorf("unknown backoff strategy %q (want exponential or linear)", s)
}

// Config defines retry behavior
type Config struct {
	MaxAttempts          int           // Total attempts including the first
	InitialBackoff       time.Duration // Wait before the second attempt
	MaxBackoff           time.Duration // Upper bound for any single wait
	Multiplier           float64       // Growth factor for exponential backoff
	Strategy             Strategy
	RetryableStatusCodes []int

	// OnRetry is called before each backoff wait, if set
	OnRetry func(attempt int, backoff time.Duration, err error)
}

// DefaultConfig returns the pipeline's default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Strategy:       Exponential,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. It returns the number of attempts made.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Debug().Int("attempts", attempt+1).Msg("Retry succeeded")
			}
			return attempt + 1, nil
		}
		lastErr = err

		if !Retryable(err, cfg) {
			log.Debug().Err(err).Msg("Error is not retryable")
			return attempt + 1, err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := Backoff(attempt, cfg)
		log.Debug().
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying after backoff")
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, backoff, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		}
	}

	log.Warn().
		Int("attempts", cfg.MaxAttempts).
		Err(lastErr).
		Msg("Max retry attempts exceeded")

	return cfg.MaxAttempts, fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// Backoff returns the wait before attempt+2, capped at MaxBackoff.
func Backoff(attempt int, cfg Config) time.Duration {
	var backoff float64
	switch cfg.Strategy {
	case Linear:
		backoff = float64(cfg.InitialBackoff) * float64(attempt+1)
	default:
		mult := cfg.Multiplier
		if mult <= 0 {
			mult = 2
		}
		backoff = float64(cfg.InitialBackoff) * math.Pow(mult, float64(attempt))
	}

	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Retryable reports whether err is worth another attempt.
// Status errors retry only on the configured codes; context cancellation
// never retries; timeouts and transport errors always do.
func Retryable(err error, cfg Config) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var perm interface{ Permanent() bool }
	if errors.As(err, &perm) && perm.Permanent() {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.GetStatusCode()
		for _, c := range cfg.RetryableStatusCodes {
			if code == c {
				return true
			}
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}

	return true
}

// StatusCoder is implemented by errors carrying an HTTP status code
type StatusCoder interface {
	GetStatusCode() int
}

// HTTPError represents a non-2xx response from an upstream API
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s - %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

func (e HTTPError) GetStatusCode() int {
	return e.StatusCode
}

// NewHTTPError creates a new HTTPError
func NewHTTPError(statusCode int, status string, message string) HTTPError {
	if status == "" {
		status = http.StatusText(statusCode)
	}
	return HTTPError{
		StatusCode: statusCode,
		Status:     status,
		Message:    message,
	}
}

// permanentError marks an error as never retryable
type permanentError struct{ err error }

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() error   { return e.err }
func (e permanentError) Permanent() bool { return true }

// Permanent wraps err so that Do returns it without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}
