package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/app"
	"github.com/comparethewait/ctw/internal/config"
	"github.com/comparethewait/ctw/internal/ui"
)

// Version is set at build time
var Version = "0.1.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ctw",
	Short: "Compare The Wait data pipeline",
	Long: `ctw scrapes NHS waiting times, private treatment prices and clinic
details for every procedure and city in the source catalog, and keeps the
site's CSV tables up to date.

Each target goes through a fallback chain: the extraction API on the
primary source, then the secondary source, then regex parsing of the
pages, and finally the last known good rows.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx, which is cancelled on interrupt.
// This is called by main.main().
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Error("Error:"), err)
	}
	return err
}

func init() {
	// Lazily initialize the application before running commands (avoid starting app for -h/help)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}

		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}

		appCtx, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		SetApp(cmd, appCtx)
		log.Debug().Str("command", cmd.CommandPath()).Msg("Application ready")
		return nil
	}

	// Ensure app is closed after command runs
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		appCtx := GetAppFromCmd(cmd)
		if appCtx == nil {
			return
		}
		_ = appCtx.Close(context.Background())
	}

	config.RegisterFlags(rootCmd)

	// Customize help and version flag descriptions
	rootCmd.Flags().BoolP("help", "h", false, "Help for ctw")
	rootCmd.Flags().Bool("version", false, "Version for ctw")

	// Disable the default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		writeHelp(cmd.OutOrStdout(), cmd, true)
	})
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		writeHelp(cmd.ErrOrStderr(), cmd, false)
		return nil
	})
}

// mustApp returns the application prepared by PersistentPreRunE
func mustApp(cmd *cobra.Command) (*app.Application, error) {
	a := GetAppFromCmd(cmd)
	if a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

// plain reports whether human-oriented output should be suppressed
func plain(a *app.Application) bool {
	return a.Config.JSONLog || a.Config.LogLevel == "error"
}
