package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/comparethewait/ctw/internal/catalog"
	"github.com/comparethewait/ctw/internal/config"
	"github.com/comparethewait/ctw/internal/pipeline"
	"github.com/comparethewait/ctw/internal/runner"
	"github.com/comparethewait/ctw/internal/ui"
	"github.com/comparethewait/ctw/pkg/models"
)

var (
	scrapeProcedures []string
	scrapeCities     []string
	scrapeKinds      []string
	scrapeDryRun     bool
	scrapeList       bool
	scrapeNoProgress bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run the extraction waterfall and update the CSV tables",
	Long: `Scrapes every (procedure, city, kind) target in the catalog, one procedure
batch at a time, and merges the rows into the data directory. Clinic
websites found along the way are scraped for hospital details.

Interrupting a run stops after the current request and still writes the
rows gathered so far, together with the run summary.`,
	Example: `  # Full run
  ctw scrape

  # Only hip and knee in Leeds, without writing any CSV
  ctw scrape -p hip,knee -c leeds --dry-run

  # Refresh private costs only, with linear backoff
  ctw scrape -k private_costs --backoff=linear

  # Show which targets a run would cover
  ctw scrape -p cataract --list`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceVarP(&scrapeProcedures, "procedure", "p", nil, "Only these procedure ids")
	scrapeCmd.Flags().StringSliceVarP(&scrapeCities, "city", "c", nil, "Only these city slugs")
	scrapeCmd.Flags().StringSliceVarP(&scrapeKinds, "kind", "k", nil, "Only these data kinds (nhs_waits, private_costs, clinics, hospital_details)")
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "Run the waterfall but do not write CSV tables")
	scrapeCmd.Flags().BoolVar(&scrapeList, "list", false, "List the selected targets and exit")
	scrapeCmd.Flags().BoolVar(&scrapeNoProgress, "no-progress", false, "Disable the progress bar")
	config.RegisterScrapeFlags(scrapeCmd)
}

// buildFilters checks the filter values against the catalog
func buildFilters(cat *catalog.Catalog, procedures, cities, kinds []string) (runner.Filters, error) {
	var f runner.Filters
	for _, p := range procedures {
		if _, ok := cat.Procedure(p); !ok {
			return f, fmt.Errorf("unknown procedure %q", p)
		}
		f.Procedures = append(f.Procedures, p)
	}
	for _, c := range cities {
		if _, ok := cat.City(c); !ok {
			return f, fmt.Errorf("unknown city %q", c)
		}
		f.Cities = append(f.Cities, c)
	}
	for _, k := range kinds {
		kind, err := models.ParseKind(k)
		if err != nil {
			return f, err
		}
		f.Kinds = append(f.Kinds, kind)
	}
	return f, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	a, err := mustApp(cmd)
	if err != nil {
		return err
	}

	cat, err := a.LoadCatalog()
	if err != nil {
		return err
	}
	filters, err := buildFilters(cat, scrapeProcedures, scrapeCities, scrapeKinds)
	if err != nil {
		return err
	}
	ds, err := a.LoadDataset()
	if err != nil {
		return err
	}

	opts := runner.Options{Filters: filters, DryRun: scrapeDryRun}
	if !scrapeNoProgress && !scrapeList && !plain(a) {
		opts.Progress = os.Stderr
	}
	r := a.Runner(cat, ds, opts)

	if scrapeList {
		return printTargets(cmd.OutOrStdout(), r.Targets())
	}

	sum, runErr := r.Run(cmd.Context())
	if sum != nil {
		if a.Config.JSONLog {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
		} else if a.Config.LogLevel != "error" {
			printSummary(cmd.OutOrStdout(), sum)
		}
	}
	if runErr != nil {
		return runErr
	}
	if sum.Totals.Failed > 0 {
		return fmt.Errorf("%d of %d targets failed", sum.Totals.Failed, sum.Totals.Targets)
	}
	return nil
}

func printTargets(w io.Writer, targets []models.Target) error {
	for _, t := range targets {
		line := fmt.Sprintf("%-40s %s", t.String(), t.PrimaryURL)
		if t.SecondaryURL != "" {
			line += " | " + t.SecondaryURL
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", ui.Dim(fmt.Sprintf("%d targets (hospital details are derived from clinic rows at run time)", len(targets))))
	return err
}

func printSummary(w io.Writer, sum *runner.Summary) {
	title := "Scrape run " + sum.RunID
	if sum.DryRun {
		title += " (dry run)"
	}
	if sum.Canceled {
		title += " (interrupted)"
	}
	fmt.Fprintf(w, "\n%s\n", ui.Bold(title))

	for _, res := range sum.Results {
		status := string(res.Status)
		switch res.Status {
		case pipeline.OutcomeSuccess:
			status = ui.Success(status)
		case pipeline.OutcomeFallback:
			status = ui.Warn(status)
		default:
			status = ui.Error(status)
		}
		line := fmt.Sprintf("  %-45s %-18s %-15s %3d rows", res.Target, status, res.Stage, res.Rows)
		if res.Error != "" && res.Status != pipeline.OutcomeSuccess {
			line += "  " + ui.Dim(truncate(res.Error, 80))
		}
		fmt.Fprintln(w, line)
	}

	t := sum.Totals
	fmt.Fprintf(w, "\n  %s  %s  %s  %s\n",
		ui.Bold(fmt.Sprintf("%d targets", t.Targets)),
		ui.Success(fmt.Sprintf("%d success", t.Success)),
		ui.Warn(fmt.Sprintf("%d fallback", t.Fallback)),
		ui.Error(fmt.Sprintf("%d failed", t.Failed)),
	)
	fmt.Fprintf(w, "  %d rows, %d invalid, %d requests, %.1fs\n",
		t.Rows, t.InvalidRows, t.Requests, float64(sum.DurationMS)/1000)
	if sum.Cache != nil {
		fmt.Fprintf(w, "  cache: %d hits, %d misses\n", sum.Cache.Hits, sum.Cache.Misses)
	}
	if sum.Path != "" {
		fmt.Fprintf(w, "  summary: %s\n", sum.Path)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
