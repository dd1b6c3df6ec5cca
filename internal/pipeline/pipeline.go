// Package pipeline runs the extraction waterfall for one target: JSON
// extraction on the primary then secondary URL, the regex parser over page
// content, and finally the last-known rows from the CSV files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/parser"
	"github.com/comparethewait/ctw/internal/reqctx"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/internal/validate"
	"github.com/comparethewait/ctw/pkg/models"
)

// Stage names one step of the waterfall
type Stage string

const (
	StageJSONPrimary   Stage = "json_primary"
	StageJSONSecondary Stage = "json_secondary"
	StageParser        Stage = "parser"
	StageCSVFallback   Stage = "csv_fallback"
)

// Outcome is the overall result for a target
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// JSONExtractor requests structured data from the extraction API
type JSONExtractor interface {
	Available() bool
	Extract(ctx context.Context, target models.Target, url string, source models.Source) (models.Rows, error)
}

// MarkdownSource returns page markdown from the extraction API
type MarkdownSource interface {
	Available() bool
	Markdown(ctx context.Context, url string) (string, error)
}

// LastKnown supplies the previous rows for a key
type LastKnown interface {
	LastKnown(kind models.DataKind, key models.Key, now time.Time) models.Rows
}

// Attempt records one stage run against one URL
type Attempt struct {
	Stage    Stage         `json:"stage"`
	URL      string        `json:"url,omitempty"`
	Attempts int           `json:"attempts"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Result is the waterfall outcome for one target
type Result struct {
	Target   models.Target    `json:"target"`
	Outcome  Outcome          `json:"outcome"`
	Stage    Stage            `json:"stage,omitempty"`
	Rows     models.Rows      `json:"-"`
	Attempts []Attempt        `json:"attempts"`
	Issues   []validate.Issue `json:"issues,omitempty"`
	Err      error            `json:"-"`
}

// Options configures a Pipeline. Any collaborator may be nil; its stage is
// then skipped.
type Options struct {
	Extractor JSONExtractor
	Markdown  MarkdownSource
	Fetcher   engine.Fetcher
	LastKnown LastKnown
	Validator *validate.Validator
	Retry     retry.Config
	Now       func() time.Time
}

// Pipeline runs the waterfall
type Pipeline struct {
	extractor JSONExtractor
	markdown  MarkdownSource
	fetcher   engine.Fetcher
	lastKnown LastKnown
	validator *validate.Validator
	retry     retry.Config
	now       func() time.Time
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	if opts.Validator == nil {
		opts.Validator = validate.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Pipeline{
		extractor: opts.Extractor,
		markdown:  opts.Markdown,
		fetcher:   opts.Fetcher,
		lastKnown: opts.LastKnown,
		validator: opts.Validator,
		retry:     opts.Retry,
		now:       opts.Now,
	}
}

// jsonSource returns the source stamped on rows from a JSON stage
func jsonSource(kind models.DataKind, stage Stage) models.Source {
	switch {
	case kind == models.KindNHSWaits:
		return models.SourceNHS
	case stage == StageJSONSecondary:
		return models.SourcePHIN
	default:
		return models.SourceTreatmentConnect
	}
}

// Run tries each stage in order and returns as soon as one yields valid rows
func (p *Pipeline) Run(ctx context.Context, target models.Target) Result {
	ctx = reqctx.WithTarget(ctx, target.String())
	res := Result{Target: target, Outcome: OutcomeFailed}

	logger := log.With().
		Str("run_id", reqctx.GetJobContext(ctx).JobID).
		Str("procedure", target.ProcedureID).
		Str("city", target.City).
		Str("kind", string(target.Kind)).
		Logger()

	type step struct {
		stage Stage
		url   string
		run   func(ctx context.Context, url string) (models.Rows, error)
	}

	jsonStep := func(stage Stage) func(context.Context, string) (models.Rows, error) {
		return func(ctx context.Context, url string) (models.Rows, error) {
			return p.extractor.Extract(ctx, target, url, jsonSource(target.Kind, stage))
		}
	}
	parseStep := func(ctx context.Context, url string) (models.Rows, error) {
		return p.parse(ctx, target, url)
	}

	steps := []step{
		{StageJSONPrimary, target.PrimaryURL, jsonStep(StageJSONPrimary)},
		{StageJSONSecondary, target.SecondaryURL, jsonStep(StageJSONSecondary)},
		{StageParser, target.PrimaryURL, parseStep},
		{StageParser, target.SecondaryURL, parseStep},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			res.Err = reqctx.NewJobError(ctx, NewStageError(ErrCodeCanceled, s.stage, s.url, err))
			return res
		}
		if s.url == "" {
			continue
		}
		if (s.stage == StageJSONPrimary || s.stage == StageJSONSecondary) && (p.extractor == nil || !p.extractor.Available()) {
			logger.Debug().Str("stage", string(s.stage)).Msg("Extraction API not configured, skipping stage")
			continue
		}

		start := time.Now()
		var rows models.Rows
		attempts, err := retry.Do(ctx, p.retryConfig(logger, s.stage), func(ctx context.Context) error {
			var err error
			rows, err = s.run(ctx, s.url)
			return err
		})

		var issues []validate.Issue
		if err == nil {
			rows, issues = p.validator.Rows(rows)
			res.Issues = append(res.Issues, issues...)
			if rows.Empty() {
				err = NewStageError(ErrCodeNoData, s.stage, s.url, ErrNoData)
			}
		}

		attempt := Attempt{Stage: s.stage, URL: s.url, Attempts: attempts, Rows: rows.Len(), Duration: time.Since(start)}
		if err != nil {
			err = classify(s.stage, s.url, err)
			attempt.Rows = 0
			attempt.Error = err.Error()
			res.Attempts = append(res.Attempts, attempt)
			res.Err = err

			logger.Warn().
				Err(err).
				Str("stage", string(s.stage)).
				Str("url", s.url).
				Int("attempt", attempts).
				Int("invalid_rows", len(issues)).
				Msg("Stage failed")

			if errors.Is(err, context.Canceled) {
				res.Err = reqctx.NewJobError(ctx, err)
				return res
			}
			continue
		}

		res.Attempts = append(res.Attempts, attempt)
		res.Outcome, res.Stage, res.Rows, res.Err = OutcomeSuccess, s.stage, rows, nil

		logger.Info().
			Str("stage", string(s.stage)).
			Int("rows", rows.Len()).
			Int("attempt", attempts).
			Msg("Target extracted")
		return res
	}

	p.fallback(ctx, target, &res)
	if res.Outcome == OutcomeFallback {
		logger.Warn().Int("rows", res.Rows.Len()).Msg("Using last known rows")
	} else {
		logger.Error().Err(res.Err).Msg("No data for target")
	}
	return res
}

// fallback fills res from the CSV files, or leaves it failed
func (p *Pipeline) fallback(ctx context.Context, target models.Target, res *Result) {
	start := time.Now()
	var rows models.Rows

	switch {
	case target.Kind == models.KindHospitalDetails && target.Clinic != nil:
		// the clinic row stays as it is
		rows.Clinics = []models.Clinic{*target.Clinic}
	case p.lastKnown != nil:
		var issues []validate.Issue
		rows, issues = p.validator.Rows(p.lastKnown.LastKnown(target.Kind, target.Key(), p.now()))
		res.Issues = append(res.Issues, issues...)
	}

	attempt := Attempt{Stage: StageCSVFallback, Attempts: 1, Rows: rows.Len(), Duration: time.Since(start)}
	if rows.Empty() {
		err := NewStageError(ErrCodeNoData, StageCSVFallback, "", ErrNoData)
		attempt.Error = err.Error()
		res.Attempts = append(res.Attempts, attempt)
		if res.Err != nil {
			res.Err = reqctx.NewJobError(ctx, fmt.Errorf("all stages failed: %w: last error: %w", err, res.Err))
		} else {
			res.Err = reqctx.NewJobError(ctx, fmt.Errorf("all stages failed: %w", err))
		}
		return
	}

	res.Attempts = append(res.Attempts, attempt)
	res.Outcome, res.Stage, res.Rows, res.Err = OutcomeFallback, StageCSVFallback, rows, nil
}

func (p *Pipeline) retryConfig(logger zerolog.Logger, stage Stage) retry.Config {
	cfg := p.retry
	cfg.OnRetry = func(attempt int, backoff time.Duration, err error) {
		logger.Info().
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying stage")
	}
	return cfg
}

// parse gets page content for url and runs the regex parser over it.
// Markdown from the extraction API is preferred; a direct fetch is used when
// the API is not configured or fails.
func (p *Pipeline) parse(ctx context.Context, target models.Target, url string) (models.Rows, error) {
	content, err := p.content(ctx, target, url)
	if err != nil {
		return models.Rows{}, err
	}
	rows, err := parser.Parse(target, content, url, p.now())
	if errors.Is(err, parser.ErrNoMatch) {
		// another attempt at the same page will not match either
		return rows, retry.Permanent(err)
	}
	return rows, err
}

func (p *Pipeline) content(ctx context.Context, target models.Target, url string) (string, error) {
	var apiErr error
	if p.markdown != nil && p.markdown.Available() {
		md, err := p.markdown.Markdown(ctx, url)
		if err == nil {
			return md, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		apiErr = err
		log.Debug().Err(err).Str("url", url).Msg("Markdown via extraction API failed, fetching directly")
	}

	if p.fetcher == nil {
		if apiErr != nil {
			return "", apiErr
		}
		return "", retry.Permanent(ErrUnavailable)
	}

	page, err := p.fetcher.Fetch(ctx, models.FetchOptions{URL: url, RenderJS: target.RenderJS})
	if err != nil {
		return "", err
	}
	if page.Markdown != "" {
		return page.Markdown, nil
	}
	return page.Content, nil
}

// classify wraps err in a StageError unless it already is one
func classify(stage Stage, url string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}

	code := ErrCodeUpstream
	switch {
	case errors.Is(err, context.Canceled):
		code = ErrCodeCanceled
	case errors.Is(err, ErrUnavailable), errors.Is(err, engine.ErrRenderDisabled), errors.Is(err, engine.ErrBrowserNotFound):
		code = ErrCodeUnavailable
	case errors.Is(err, parser.ErrNoMatch):
		code = ErrCodeNoData
	case stage == StageParser:
		code = ErrCodeFetch
	}
	return NewStageError(code, stage, url, err)
}
