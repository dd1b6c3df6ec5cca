// Package config resolves application settings from defaults, an optional
// config file, a .env file, the environment, CLI flags and the credential
// store, in increasing order of precedence (the credential store only fills
// secrets that are still empty).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/comparethewait/ctw/internal/auth"
	"github.com/comparethewait/ctw/internal/datasource"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "CTW"

// RetryConfig holds the retry settings of the waterfall stages
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Strategy       string
}

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// Files
	DataDir        string
	ResultsDir     string
	CatalogPath    string
	DataSourcePath string
	ConfigFile     string

	// Pacing
	RequestDelay time.Duration
	BatchDelay   time.Duration
	PerHostRPS   float64
	PerHostBurst int
	Retry        RetryConfig

	// Extraction API
	APIKey         string
	APIBaseURL     string
	ExtractTimeout time.Duration

	// Direct fetching
	HTTPTimeout   time.Duration
	UserAgent     string
	Render        bool
	RenderTimeout time.Duration
	ChromePath    string
	Headers       []string
	Proxies       []string

	// Caching
	CacheTTL          time.Duration
	CacheMaxSizeBytes int64

	// Publishing
	DatabaseURL string

	// API server
	Addr           string
	AllowedOrigins []string
	APITimeout     time.Duration
}

// CredentialSource looks up stored secrets by name
type CredentialSource interface {
	Load(name string) (string, error)
}

// credentials opens the credential store consulted for empty secrets
var credentials = func() (CredentialSource, error) {
	return auth.NewStore()
}

// Load builds a Config by combining defaults, an optional config file, a
// .env file, environment variables, CLI flags and the credential store.
// Caller should pass the executing *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, flagString(cmd, "config")); err != nil {
		return nil, err
	}

	envFile := flagString(cmd, "env-file")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	// godotenv never overrides variables already set in the environment
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "FIRECRAWL_API_KEY")
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("chrome_path", EnvPrefix+"_CHROME_PATH", "CHROME_PATH")

	if cmd != nil {
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		LogLevel:       v.GetString("log_level"),
		JSONLog:        v.GetBool("json_log"),
		DataDir:        v.GetString("data_dir"),
		ResultsDir:     v.GetString("results_dir"),
		CatalogPath:    v.GetString("catalog"),
		DataSourcePath: v.GetString("data_source"),
		ConfigFile:     v.ConfigFileUsed(),
		RequestDelay:   v.GetDuration("request_delay"),
		BatchDelay:     v.GetDuration("batch_delay"),
		PerHostRPS:     v.GetFloat64("per_host_rps"),
		PerHostBurst:   v.GetInt("per_host_burst"),
		Retry: RetryConfig{
			MaxAttempts:    v.GetInt("retry.max_attempts"),
			InitialBackoff: v.GetDuration("retry.initial_backoff"),
			MaxBackoff:     v.GetDuration("retry.max_backoff"),
			Strategy:       strings.ToLower(v.GetString("retry.strategy")),
		},
		APIKey:            strings.TrimSpace(v.GetString("api_key")),
		APIBaseURL:        v.GetString("api_base_url"),
		ExtractTimeout:    v.GetDuration("extract_timeout"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		UserAgent:         v.GetString("user_agent"),
		Render:            v.GetBool("render"),
		RenderTimeout:     v.GetDuration("render_timeout"),
		ChromePath:        v.GetString("chrome_path"),
		Headers:           v.GetStringSlice("headers"),
		Proxies:           v.GetStringSlice("proxies"),
		CacheTTL:          v.GetDuration("cache_ttl"),
		CacheMaxSizeBytes: v.GetInt64("cache_max_size_bytes"),
		DatabaseURL:       strings.TrimSpace(v.GetString("database_url")),
		Addr:              v.GetString("addr"),
		AllowedOrigins:    v.GetStringSlice("allowed_origins"),
		APITimeout:        v.GetDuration("api_timeout"),
	}

	// Header values may contain commas, so the flag is read as-is rather
	// than through viper's CSV handling
	if cmd != nil {
		if f := cmd.Flags().Lookup("header"); f != nil && f.Changed {
			cfg.Headers, _ = cmd.Flags().GetStringArray("header")
		}
	}

	if flagBool(cmd, "verbose") {
		cfg.LogLevel = "debug"
	}
	if flagBool(cmd, "quiet") {
		cfg.LogLevel = "error"
	}

	if cfg.ResultsDir == "" {
		cfg.ResultsDir = cfg.DataDir
	}
	if cfg.DataSourcePath == "" {
		cfg.DataSourcePath = filepath.Join(cfg.DataDir, datasource.FileName)
	}

	fillSecrets(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("json_log", DefaultJSONLog)
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("results_dir", "")
	v.SetDefault("catalog", DefaultCatalogPath)
	v.SetDefault("data_source", "")
	v.SetDefault("request_delay", DefaultRequestDelay)
	v.SetDefault("batch_delay", DefaultBatchDelay)
	v.SetDefault("per_host_rps", DefaultPerHostRPS)
	v.SetDefault("per_host_burst", DefaultPerHostBurst)
	v.SetDefault("retry.max_attempts", DefaultRetryMaxAttempts)
	v.SetDefault("retry.initial_backoff", DefaultRetryBackoff)
	v.SetDefault("retry.max_backoff", DefaultRetryMaxBackoff)
	v.SetDefault("retry.strategy", DefaultRetryStrategy)
	v.SetDefault("api_key", "")
	v.SetDefault("api_base_url", "")
	v.SetDefault("extract_timeout", DefaultExtractTimeout)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("render", DefaultRender)
	v.SetDefault("render_timeout", DefaultRenderTimeout)
	v.SetDefault("chrome_path", "")
	v.SetDefault("headers", []string{})
	v.SetDefault("proxies", []string{})
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("cache_max_size_bytes", DefaultCacheMaxSizeBytes)
	v.SetDefault("database_url", "")
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("api_timeout", DefaultAPITimeout)
}

// readConfigFile reads the explicit config file, or the first of
// ./ctw.yaml and $HOME/.ctw.yaml that exists. Only an explicit file is
// required to exist.
func readConfigFile(v *viper.Viper, explicit string) error {
	path := explicit
	if path == "" {
		candidates := []string{"ctw.yaml"}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".ctw.yaml"))
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	log.Debug().Str("file", path).Msg("Config file loaded")
	return nil
}

// fillSecrets takes still-empty secrets from the credential store
func fillSecrets(cfg *Config) {
	if cfg.APIKey != "" && cfg.DatabaseURL != "" {
		return
	}

	store, err := credentials()
	if err != nil {
		log.Debug().Err(err).Msg("Credential store unavailable")
		return
	}
	if cfg.APIKey == "" {
		if s, err := store.Load(auth.APIKey); err == nil {
			cfg.APIKey = s
		}
	}
	if cfg.DatabaseURL == "" {
		if s, err := store.Load(auth.DatabaseURL); err == nil {
			cfg.DatabaseURL = s
		}
	}
}

func flagString(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func flagBool(cmd *cobra.Command, name string) bool {
	return flagString(cmd, name) == "true"
}
