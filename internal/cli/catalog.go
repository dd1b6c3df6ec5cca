package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/ui"
	"github.com/comparethewait/ctw/pkg/models"
)

var catalogTargets bool

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the procedures, cities and sources of the catalog",
	Long: `Loads and validates the source catalog (JSON, YAML or a JavaScript
module) and prints the procedures, cities and source templates it defines.
With --targets every expanded (procedure, city, kind) target is listed too.`,
	Example: `  $ ctw catalog
  $ ctw catalog --catalog=configs/catalog.yaml --targets`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogTargets, "targets", false, "Also list every expanded target")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	cat, err := a.LoadCatalog()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if a.Config.JSONLog {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if catalogTargets {
			return enc.Encode(cat.Expand())
		}
		return enc.Encode(cat)
	}

	fmt.Fprintf(out, "\n%s\n", ui.Bold(fmt.Sprintf("Procedures (%d)", len(cat.Procedures))))
	for _, p := range cat.Procedures {
		fmt.Fprintf(out, "  • %-12s %s\n", p.ID, p.Name)
	}

	fmt.Fprintf(out, "\n%s\n", ui.Bold(fmt.Sprintf("Cities (%d)", len(cat.Cities))))
	for _, c := range cat.Cities {
		fmt.Fprintf(out, "  • %-12s %s\n", c.Slug, ui.Dim(c.Region))
	}

	kinds := make([]string, 0, len(cat.Sources))
	for k := range cat.Sources {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(out, "\n%s\n", ui.Bold("Sources"))
	for _, k := range kinds {
		src := cat.Sources[models.DataKind(k)]
		fmt.Fprintf(out, "  • %-17s %s\n", k, src.Primary)
		if src.Secondary != "" {
			fmt.Fprintf(out, "    %-17s %s\n", "", src.Secondary)
		}
	}
	if len(cat.Overrides) > 0 {
		fmt.Fprintf(out, "  %s\n", ui.Dim(fmt.Sprintf("%d overrides", len(cat.Overrides))))
	}

	if catalogTargets {
		fmt.Fprintf(out, "\n%s\n", ui.Bold("Targets"))
		if err := printTargets(out, cat.Expand()); err != nil {
			return err
		}
	}
	fmt.Fprintln(out)
	return nil
}
