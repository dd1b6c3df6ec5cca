package config

import "github.com/spf13/cobra"

// flagKeys maps CLI flag names to config keys. Commands register the flags
// they need; Load binds whichever are present.
var flagKeys = map[string]string{
	"json":          "json_log",
	"data-dir":      "data_dir",
	"results-dir":   "results_dir",
	"catalog":       "catalog",
	"data-source":   "data_source",
	"user-agent":    "user_agent",
	"timeout":       "http_timeout",
	"request-delay": "request_delay",
	"batch-delay":   "batch_delay",
	"max-attempts":  "retry.max_attempts",
	"backoff":       "retry.strategy",
	"render":        "render",
	"chrome-path":   "chrome_path",
	"api-base-url":  "api_base_url",
	"database-url":  "database_url",
	"addr":          "addr",
	"origin":        "allowed_origins",
	"proxy":         "proxies",
}

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (default ./ctw.yaml or $HOME/.ctw.yaml)")
	cmd.PersistentFlags().String("env-file", DefaultEnvFile, "Path to a .env file")
	cmd.PersistentFlags().String("data-dir", DefaultDataDir, "Directory holding the CSV tables")
	cmd.PersistentFlags().String("catalog", DefaultCatalogPath, "Path to the source catalog (.json, .yaml or .js)")
}

// RegisterScrapeFlags registers the flags tuning fetching and retries
func RegisterScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().String("results-dir", "", "Directory for run summaries (default: data dir)")
	cmd.Flags().String("user-agent", DefaultUserAgent, "User agent for direct page fetches")
	cmd.Flags().Duration("timeout", DefaultHTTPTimeout, "Timeout for direct page fetches")
	cmd.Flags().Duration("request-delay", DefaultRequestDelay, "Minimum delay between outbound requests")
	cmd.Flags().Duration("batch-delay", DefaultBatchDelay, "Pause between procedure batches")
	cmd.Flags().Int("max-attempts", DefaultRetryMaxAttempts, "Attempts per stage, including the first")
	cmd.Flags().String("backoff", DefaultRetryStrategy, "Backoff strategy: exponential or linear")
	cmd.Flags().Bool("render", DefaultRender, "Render JavaScript pages with headless Chrome")
	cmd.Flags().String("chrome-path", "", "Path to the Chrome/Chromium binary")
	cmd.Flags().String("api-base-url", "", "Extraction API base URL")
	cmd.Flags().StringArray("header", nil, "Extra header for direct page fetches, \"Key: Value\" (repeatable)")
	cmd.Flags().StringSlice("proxy", nil, "Proxy URLs to rotate direct page fetches through")
}
