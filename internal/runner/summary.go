package runner

import (
	"time"

	"github.com/comparethewait/ctw/internal/cache"
	"github.com/comparethewait/ctw/internal/pipeline"
)

// SummaryFile returns the file name of a run summary
func SummaryFile(runID string) string {
	return "scrape-results-" + runID + ".json"
}

// TargetResult is the summary line of one target
type TargetResult struct {
	Target     string             `json:"target"`
	Procedure  string             `json:"procedure"`
	City       string             `json:"city"`
	Kind       string             `json:"kind"`
	Status     pipeline.Outcome   `json:"status"`
	Stage      pipeline.Stage     `json:"stage,omitempty"`
	Attempts   int                `json:"attempts"`
	Rows       int                `json:"rows"`
	Invalid    int                `json:"invalid_rows,omitempty"`
	DurationMS int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
	Stages     []pipeline.Attempt `json:"stages"`
}

// Totals counts target outcomes and rows
type Totals struct {
	Targets     int `json:"targets"`
	Success     int `json:"success"`
	Fallback    int `json:"fallback"`
	Failed      int `json:"failed"`
	Rows        int `json:"rows"`
	InvalidRows int `json:"invalid_rows"`
	Requests    int `json:"requests"`
}

// Summary is written to scrape-results-<run id>.json after every run
type Summary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMS int64          `json:"duration_ms"`
	DryRun     bool           `json:"dry_run"`
	Canceled   bool           `json:"canceled"`
	Filters    Filters        `json:"filters"`
	Totals     Totals         `json:"totals"`
	Cache      *cache.Stats   `json:"cache,omitempty"`
	Results    []TargetResult `json:"results"`

	// Path is where the summary was written
	Path string `json:"-"`
}

func newSummary(runID string, start time.Time, f Filters, dryRun bool) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: start,
		DryRun:    dryRun,
		Filters:   f,
		Results:   []TargetResult{},
	}
}

func (s *Summary) add(res pipeline.Result, d time.Duration) {
	tr := TargetResult{
		Target:     res.Target.String(),
		Procedure:  res.Target.ProcedureID,
		City:       res.Target.City,
		Kind:       string(res.Target.Kind),
		Status:     res.Outcome,
		Stage:      res.Stage,
		Rows:       res.Rows.Len(),
		Invalid:    len(res.Issues),
		DurationMS: d.Milliseconds(),
		Stages:     res.Attempts,
	}
	for _, a := range res.Attempts {
		if a.Stage != pipeline.StageCSVFallback {
			tr.Attempts += a.Attempts
		}
	}
	if res.Err != nil {
		tr.Error = res.Err.Error()
	}
	s.Results = append(s.Results, tr)

	s.Totals.Targets++
	s.Totals.Rows += tr.Rows
	s.Totals.InvalidRows += tr.Invalid
	s.Totals.Requests += tr.Attempts
	switch res.Outcome {
	case pipeline.OutcomeSuccess:
		s.Totals.Success++
	case pipeline.OutcomeFallback:
		s.Totals.Fallback++
	default:
		s.Totals.Failed++
	}
}
