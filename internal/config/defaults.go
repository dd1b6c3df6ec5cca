package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel          = "info"
	DefaultJSONLog           = false
	DefaultDataDir           = "data"
	DefaultCatalogPath       = "configs/catalog.json"
	DefaultEnvFile           = ".env"
	DefaultUserAgent         = "CompareTheWait/1.0 (+https://comparethewait.co.uk)"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultRenderTimeout     = 45 * time.Second
	DefaultExtractTimeout    = 60 * time.Second
	DefaultRequestDelay      = 6 * time.Second
	DefaultBatchDelay        = 10 * time.Second
	DefaultPerHostRPS        = 1.0
	DefaultPerHostBurst      = 1
	DefaultRetryMaxAttempts  = 3
	DefaultMaxRetryAttempts  = 10
	DefaultRetryBackoff      = 2 * time.Second
	DefaultRetryMaxBackoff   = 30 * time.Second
	DefaultRetryStrategy     = "exponential"
	DefaultRender            = true
	DefaultCacheTTL          = 6 * time.Hour
	DefaultCacheMaxSizeBytes = 50 * 1024 * 1024 // 50MB
	DefaultAddr              = ":8080"
	DefaultAPITimeout        = 30 * time.Second
)

// DefaultAllowedOrigins are the CORS origins of the site in development
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
