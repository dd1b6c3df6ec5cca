package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/ui"
	"github.com/comparethewait/ctw/internal/validate"
)

var validateMax int

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the CSV tables against the row rules",
	Long: `Loads every table of the data directory and checks each row against the
validation rules, then checks that every row references a known procedure
and city. Exits non-zero when any issue is found.`,
	Example: `  $ ctw validate
  $ ctw validate --data-dir=/srv/ctw/data --json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().IntVar(&validateMax, "max", 50, "Maximum number of issues to print (0 for all)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}
	ds, err := a.LoadDataset()
	if err != nil {
		return err
	}

	rep := a.Validator.Dataset(ds)
	out := cmd.OutOrStdout()

	if a.Config.JSONLog {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		printReport(cmd, rep)
	}

	if !rep.OK() {
		return fmt.Errorf("%d validation issues in %s", len(rep.Issues), a.Config.DataDir)
	}
	return nil
}

func printReport(cmd *cobra.Command, rep validate.Report) {
	out := cmd.OutOrStdout()
	if rep.OK() {
		fmt.Fprintf(out, "%s %d rows valid\n", ui.Success("✓"), rep.Rows)
		return
	}

	fmt.Fprintf(out, "%s\n", ui.Bold(fmt.Sprintf("%d issues in %d rows", len(rep.Issues), rep.Rows)))
	for i, is := range rep.Issues {
		if validateMax > 0 && i >= validateMax {
			fmt.Fprintf(out, "  ... and %d more\n", len(rep.Issues)-validateMax)
			break
		}
		fmt.Fprintf(out, "  • %s\n", is.String())
	}
}
