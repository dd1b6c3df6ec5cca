package cli

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/api"
	"github.com/comparethewait/ctw/internal/datasource"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the CSV tables as a read-only JSON API",
	Long: `Loads the data directory once and serves it over HTTP: procedures,
cities, per-city comparisons with the weeks saved by going private, FAQs
and the regional waiting-time statistics of the data source file.

The server shuts down gracefully on interrupt.`,
	Example: `  $ ctw serve
  $ ctw serve --addr=:9000 --origin=https://comparethewait.co.uk`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	serveCmd.Flags().StringSlice("origin", nil, "Allowed CORS origins")
	serveCmd.Flags().String("data-source", "", "Waiting-times data source file (default <data-dir>/comparethewait-data-source.json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	ds, err := a.LoadDataset()
	if err != nil {
		return err
	}
	if rep := a.Validator.Dataset(ds); !rep.OK() {
		log.Warn().Int("issues", len(rep.Issues)).Msg("Serving data with validation issues")
	}

	source, err := datasource.Load(a.Config.DataSourcePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Warn().Str("path", a.Config.DataSourcePath).Msg("Data source not found; waiting-times endpoints disabled")
		source = nil
	}

	srv := api.New(ds, source, api.Options{
		AllowedOrigins: a.Config.AllowedOrigins,
		Timeout:        a.Config.APITimeout,
	})
	return srv.ListenAndServe(cmd.Context(), a.Config.Addr)
}
