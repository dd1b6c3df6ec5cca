// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/cache"
	"github.com/comparethewait/ctw/internal/catalog"
	"github.com/comparethewait/ctw/internal/config"
	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/engine/dynamic"
	"github.com/comparethewait/ctw/internal/engine/hybrid"
	"github.com/comparethewait/ctw/internal/engine/static"
	"github.com/comparethewait/ctw/internal/extract"
	"github.com/comparethewait/ctw/internal/firecrawl"
	"github.com/comparethewait/ctw/internal/pipeline"
	"github.com/comparethewait/ctw/internal/proxy"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/internal/runner"
	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/internal/utils/headers"
	"github.com/comparethewait/ctw/internal/validate"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config     *config.Config
	Logger     *zerolog.Logger
	Cache      *cache.MemoryCache
	Limiter    ratelimit.Limiter
	HTTPClient *http.Client
	API        *firecrawl.Client
	Extractor  *extract.Extractor
	Fetcher    engine.Fetcher
	Validator  *validate.Validator
	startTime  time.Time
}

// SetupLogging configures the global zerolog logger from cfg and returns it
func SetupLogging(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logWriter io.Writer
	if cfg.JSONLog {
		// JSON logs to stderr
		logWriter = os.Stderr
	} else {
		// Human-friendly console output otherwise
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(logWriter).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Creates the in-memory cache for extraction responses
//   - Creates the pacer shared by every outbound request
//   - Creates the extraction API client and extractor
//   - Creates the static fetcher and, when enabled, the browser renderer
//
// Nothing is started: browsers are launched per render and the API client
// holds no connections until first use.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := SetupLogging(cfg)
	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Str("config_file", cfg.ConfigFile).
		Msg("Logger initialized")

	memCache := cache.NewMemoryCache(cfg.CacheMaxSizeBytes)
	logger.Debug().
		Int64("max_size_bytes", cfg.CacheMaxSizeBytes).
		Dur("ttl", cfg.CacheTTL).
		Msg("Memory cache initialized")

	// One global pace across all hosts, plus a per-host bucket for the
	// sites fetched directly
	limiter := ratelimit.Chain{
		ratelimit.NewPacer(cfg.RequestDelay),
		ratelimit.NewDomainLimiter(cfg.PerHostRPS, cfg.PerHostBurst),
	}
	logger.Debug().
		Dur("request_delay", cfg.RequestDelay).
		Float64("per_host_rps", cfg.PerHostRPS).
		Msg("Rate limiter initialized")

	api, err := firecrawl.New(firecrawl.Options{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.ExtractTimeout,
		UserAgent: cfg.UserAgent,
		CacheTTL:  cfg.CacheTTL,
		Cache:     memCache,
		Limiter:   limiter,
	})
	if err != nil {
		memCache.Close()
		return nil, err
	}
	if !api.Available() {
		logger.Warn().Msg("No extraction API key configured; JSON stages will be skipped")
	}

	baseTransport := func() *http.Transport {
		return &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	var transport http.RoundTripper = baseTransport()
	if len(cfg.Proxies) > 0 {
		pool, err := proxy.NewPool(cfg.Proxies, proxy.DefaultCooldown)
		if err != nil {
			memCache.Close()
			return nil, err
		}
		transport = proxy.NewTransport(pool, baseTransport)
		logger.Debug().Int("proxies", pool.Len()).Msg("Proxy rotation enabled")
	}
	httpClient := &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: transport,
	}

	extraHeaders, err := headers.Parse(cfg.Headers)
	if err != nil {
		memCache.Close()
		return nil, err
	}
	staticFetcher := static.New(limiter, httpClient, cfg.HTTPTimeout, cfg.UserAgent).WithHeaders(extraHeaders)

	var renderer engine.Fetcher
	if cfg.Render {
		d := dynamic.New(limiter, cfg.RenderTimeout, cfg.UserAgent, cfg.ChromePath)
		if d.Available() {
			renderer = d
		} else {
			logger.Warn().Msg("Chrome not found; JavaScript pages will be fetched statically")
		}
	}

	a := &Application{
		Config:     cfg,
		Logger:     &logger,
		Cache:      memCache,
		Limiter:    limiter,
		HTTPClient: httpClient,
		API:        api,
		Extractor:  extract.New(api),
		Fetcher:    hybrid.New(staticFetcher, renderer),
		Validator:  validate.New(),
		startTime:  time.Now(),
	}

	logger.Debug().
		Bool("extraction_api", api.Available()).
		Bool("renderer", renderer != nil).
		Msg("Application initialized")
	return a, nil
}

// RetryConfig returns the retry policy of the waterfall stages
func (a *Application) RetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.Config.Retry.MaxAttempts
	rc.InitialBackoff = a.Config.Retry.InitialBackoff
	rc.MaxBackoff = a.Config.Retry.MaxBackoff
	if s, err := retry.ParseStrategy(a.Config.Retry.Strategy); err == nil {
		rc.Strategy = s
	}
	return rc
}

// LoadCatalog reads the configured source catalog
func (a *Application) LoadCatalog() (*catalog.Catalog, error) {
	return catalog.Load(a.Config.CatalogPath)
}

// LoadDataset reads the tables of the data directory
func (a *Application) LoadDataset() (*store.Dataset, error) {
	return store.LoadDir(a.Config.DataDir)
}

// Pipeline builds the waterfall. lastKnown supplies the CSV fallback rows.
func (a *Application) Pipeline(lastKnown pipeline.LastKnown) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Extractor: a.Extractor,
		Markdown:  a.API,
		Fetcher:   a.Fetcher,
		LastKnown: lastKnown,
		Validator: a.Validator,
		Retry:     a.RetryConfig(),
	})
}

// Runner builds a runner over cat that merges into ds. Directories, batch
// delay and cache statistics come from the config.
func (a *Application) Runner(cat *catalog.Catalog, ds *store.Dataset, opts runner.Options) *runner.Runner {
	opts.DataDir = a.Config.DataDir
	if opts.ResultsDir == "" {
		opts.ResultsDir = a.Config.ResultsDir
	}
	opts.BatchDelay = a.Config.BatchDelay
	opts.CacheStats = a.Cache.Stats
	return runner.New(cat, a.Pipeline(ds), ds, opts)
}

// Close gracefully shuts down the application and all its resources.
//
// Any errors during shutdown are logged but do not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
