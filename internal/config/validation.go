package config

import (
	"fmt"

	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/internal/utils/headers"
)

func validate(c *Config) error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.RequestDelay < 0 || c.BatchDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.Retry.MaxAttempts <= 0 || c.Retry.MaxAttempts > DefaultMaxRetryAttempts {
		return fmt.Errorf("retry attempts must be between 1 and %d", DefaultMaxRetryAttempts)
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry backoff must be >= 0 and max backoff >= initial backoff")
	}
	if _, err := retry.ParseStrategy(c.Retry.Strategy); err != nil {
		return err
	}
	if c.PerHostRPS <= 0 || c.PerHostBurst <= 0 {
		return fmt.Errorf("per-host rate and burst must be > 0")
	}
	if _, err := headers.Parse(c.Headers); err != nil {
		return err
	}
	if c.CacheMaxSizeBytes <= 0 {
		return fmt.Errorf("cache max size must be > 0")
	}
	return nil
}
