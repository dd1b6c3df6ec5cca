// Package runner drives a scrape run: it expands the catalog into targets,
// walks them sequentially one procedure batch at a time, merges the rows
// into the data directory and writes a run summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/comparethewait/ctw/internal/cache"
	"github.com/comparethewait/ctw/internal/catalog"
	"github.com/comparethewait/ctw/internal/pipeline"
	"github.com/comparethewait/ctw/internal/ratelimit"
	"github.com/comparethewait/ctw/internal/reqctx"
	"github.com/comparethewait/ctw/internal/store"
	"github.com/comparethewait/ctw/internal/utils/output"
	"github.com/comparethewait/ctw/pkg/models"
)

// Waterfall runs the extraction stages for one target
type Waterfall interface {
	Run(ctx context.Context, target models.Target) pipeline.Result
}

// Filters restrict a run to some procedures, cities or kinds. Empty means all.
type Filters struct {
	Procedures []string          `json:"procedures,omitempty"`
	Cities     []string          `json:"cities,omitempty"`
	Kinds      []models.DataKind `json:"kinds,omitempty"`
}

func (f Filters) match(t models.Target) bool {
	return (len(f.Procedures) == 0 || slices.Contains(f.Procedures, t.ProcedureID)) &&
		(len(f.Cities) == 0 || slices.Contains(f.Cities, t.City)) &&
		f.wants(t.Kind)
}

func (f Filters) wants(kind models.DataKind) bool {
	return len(f.Kinds) == 0 || slices.Contains(f.Kinds, kind)
}

// Options configures a Runner
type Options struct {
	DataDir    string
	ResultsDir string
	Filters    Filters
	DryRun     bool
	BatchDelay time.Duration
	RunID      string

	// Progress, if set, receives a progress bar
	Progress io.Writer
	// CacheStats, if set, is reported in the summary
	CacheStats func() cache.Stats
	Now        func() time.Time
}

// Runner executes scrape runs
type Runner struct {
	catalog   *catalog.Catalog
	waterfall Waterfall
	dataset   *store.Dataset
	opts      Options
}

// New creates a runner that merges results into dataset
func New(cat *catalog.Catalog, waterfall Waterfall, dataset *store.Dataset, opts Options) *Runner {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.ResultsDir == "" {
		opts.ResultsDir = opts.DataDir
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if dataset == nil {
		dataset = &store.Dataset{}
	}
	return &Runner{catalog: cat, waterfall: waterfall, dataset: dataset, opts: opts}
}

// RunID returns the id of the run
func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Targets returns the catalog targets selected by the filters
func (r *Runner) Targets() []models.Target {
	var out []models.Target
	for _, t := range r.catalog.Expand() {
		if r.opts.Filters.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// batch is the work of one procedure
type batch struct {
	procedure string
	targets   []models.Target
}

// batches groups targets by procedure in the order of procedures. A
// procedure without targets still gets a batch when keepEmpty is set, so
// hospital details can be gathered from the clinic rows already held.
func batches(procedures []string, targets []models.Target, keepEmpty bool) []batch {
	var out []batch
	for _, id := range procedures {
		b := batch{procedure: id}
		for _, t := range targets {
			if t.ProcedureID == id {
				b.targets = append(b.targets, t)
			}
		}
		if len(b.targets) > 0 || keepEmpty {
			out = append(out, b)
		}
	}
	return out
}

// procedures returns the catalog procedure ids selected by the filters
func (r *Runner) procedures() []string {
	var out []string
	for _, p := range r.catalog.Procedures {
		if len(r.opts.Filters.Procedures) == 0 || slices.Contains(r.opts.Filters.Procedures, p.ID) {
			out = append(out, p.ID)
		}
	}
	return out
}

// Run scrapes every selected target. Canceling ctx stops after the current
// request; rows gathered so far are still written. The summary is returned
// even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	ctx = reqctx.WithJob(ctx, r.opts.RunID)
	sum := newSummary(r.opts.RunID, r.opts.Now(), r.opts.Filters, r.opts.DryRun)

	hospitals := r.opts.Filters.wants(models.KindHospitalDetails)
	targets := r.Targets()
	groups := batches(r.procedures(), targets, hospitals)

	log.Info().
		Str("run_id", r.opts.RunID).
		Int("targets", len(targets)).
		Int("batches", len(groups)).
		Bool("dry_run", r.opts.DryRun).
		Msg("Starting scrape run")

	bar := r.progress(len(targets))

	var runErr error
	for i, b := range groups {
		if i > 0 && r.opts.BatchDelay > 0 {
			log.Debug().Dur("delay", r.opts.BatchDelay).Msg("Pausing between batches")
			if err := ratelimit.Sleep(ctx, r.opts.BatchDelay); err != nil {
				runErr = err
				break
			}
		}

		log.Info().
			Str("procedure", b.procedure).
			Int("batch", i+1).
			Int("targets", len(b.targets)).
			Msg("Starting batch")

		if err := r.runTargets(ctx, b.targets, sum, bar); err != nil {
			runErr = err
			break
		}

		if hospitals {
			details := r.hospitalTargets(b.procedure)
			switch {
			case len(details) == 0:
			case bar == nil:
				bar = r.progress(len(details))
			default:
				bar.ChangeMax(bar.GetMax() + len(details))
			}
			if err := r.runTargets(ctx, details, sum, bar); err != nil {
				runErr = err
				break
			}
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	if runErr != nil {
		sum.Canceled = true
		log.Warn().Err(runErr).Msg("Scrape run interrupted, writing gathered data")
	}

	if err := r.write(sum); err != nil {
		return sum, errors.Join(runErr, err)
	}

	log.Info().
		Str("run_id", r.opts.RunID).
		Int("success", sum.Totals.Success).
		Int("fallback", sum.Totals.Fallback).
		Int("failed", sum.Totals.Failed).
		Int("rows", sum.Totals.Rows).
		Dur("duration", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("Scrape run finished")

	return sum, runErr
}

func (r *Runner) runTargets(ctx context.Context, targets []models.Target, sum *Summary, bar *progressbar.ProgressBar) error {
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if bar != nil {
			bar.Describe(t.String())
		}

		start := time.Now()
		res := r.waterfall.Run(ctx, t)
		sum.add(res, time.Since(start))

		if !res.Rows.Empty() {
			if t.Kind == models.KindHospitalDetails {
				r.dataset.UpdateClinics(res.Rows.Clinics)
			} else {
				r.dataset.Apply(res.Rows)
			}
		}
		if bar != nil {
			_ = bar.Add(1)
		}

		if errors.Is(res.Err, context.Canceled) {
			return res.Err
		}
	}
	return nil
}

// hospitalTargets derives hospital_details targets from the clinic rows now
// held for procedure in the selected cities
func (r *Runner) hospitalTargets(procedure string) []models.Target {
	var clinics []models.Clinic
	for _, c := range r.dataset.Clinics {
		if c.ProcedureID != procedure {
			continue
		}
		if len(r.opts.Filters.Cities) > 0 && !slices.Contains(r.opts.Filters.Cities, c.City) {
			continue
		}
		clinics = append(clinics, c)
	}
	return r.catalog.HospitalTargets(clinics)
}

func (r *Runner) progress(n int) *progressbar.ProgressBar {
	if r.opts.Progress == nil || n == 0 {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(r.opts.Progress),
		progressbar.OptionSetDescription("scraping"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

// write saves the CSV tables (unless dry run) and the summary file
func (r *Runner) write(sum *Summary) error {
	sum.FinishedAt = r.opts.Now()
	sum.DurationMS = sum.FinishedAt.Sub(sum.StartedAt).Milliseconds()
	if r.opts.CacheStats != nil {
		stats := r.opts.CacheStats()
		sum.Cache = &stats
	}

	if !r.opts.DryRun {
		r.dataset.Procedures = r.catalog.ProcedureRows()
		r.dataset.Cities = r.catalog.CityRows()
		if err := r.dataset.SaveDir(r.opts.DataDir); err != nil {
			return fmt.Errorf("failed to write data directory: %w", err)
		}
	}

	path := filepath.Join(r.opts.ResultsDir, SummaryFile(r.opts.RunID))
	if err := output.SaveJSON(sum, path); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	sum.Path = path
	log.Info().Str("path", path).Msg("Run summary written")
	return nil
}
