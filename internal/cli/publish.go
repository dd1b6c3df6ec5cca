package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/publish"
	"github.com/comparethewait/ctw/internal/ui"
)

var (
	publishCreateSchema bool
	publishForce        bool
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upsert the CSV tables into PostgreSQL",
	Long: `Validates the data directory and upserts every table into PostgreSQL in
a single transaction. Rows are matched on their natural keys; rows that no
longer exist in the CSV tables are left in place.

The database URL is read from --database-url, DATABASE_URL, the config
file or the credential store (ctw auth set database-url).`,
	Example: `  $ ctw publish
  $ ctw publish --database-url="postgres://ctw@localhost:5432/ctw" --create-schema=false`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	publishCmd.Flags().BoolVar(&publishCreateSchema, "create-schema", true, "Create missing tables before publishing")
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "Publish even when validation finds issues")
}

func runPublish(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	ds, err := a.LoadDataset()
	if err != nil {
		return err
	}
	if rep := a.Validator.Dataset(ds); !rep.OK() {
		if !publishForce {
			return fmt.Errorf("%d validation issues in %s (run ctw validate, or pass --force)", len(rep.Issues), a.Config.DataDir)
		}
		log.Warn().Int("issues", len(rep.Issues)).Msg("Publishing data with validation issues")
	}

	ctx := cmd.Context()
	pub, err := publish.Connect(ctx, publish.Config{DSN: a.Config.DatabaseURL})
	if err != nil {
		return err
	}
	defer pub.Close()

	if publishCreateSchema {
		if err := pub.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	counts, err := pub.Publish(ctx, ds)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if a.Config.JSONLog {
		return json.NewEncoder(out).Encode(counts)
	}
	if plain(a) {
		return nil
	}

	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	fmt.Fprintf(out, "%s published\n", ui.Success("✓"))
	for _, t := range tables {
		fmt.Fprintf(out, "  • %-14s %d rows\n", t, counts[t])
	}
	return nil
}
