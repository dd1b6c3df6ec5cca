// Package extract turns a target into an extraction API request (JSON schema
// plus prompt per data kind) and maps the returned JSON into table rows.
package extract

import (
	"context"
	"time"

	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/pkg/models"
)

// JSONClient is the part of the extraction API client used here
type JSONClient interface {
	Available() bool
	ExtractJSON(ctx context.Context, url string, schema map[string]any, prompt string) (map[string]any, error)
}

// Extractor requests structured data for targets
type Extractor struct {
	client JSONClient
	now    func() time.Time
}

// New creates an extractor backed by client
func New(client JSONClient) *Extractor {
	return &Extractor{client: client, now: time.Now}
}

// Available reports whether the underlying API can be called
func (e *Extractor) Available() bool {
	return e != nil && e.client != nil && e.client.Available()
}

// Extract requests target's schema from url and maps the result into rows
// stamped with source. Empty rows mean the page held nothing usable.
func (e *Extractor) Extract(ctx context.Context, target models.Target, url string, source models.Source) (models.Rows, error) {
	data, err := e.client.ExtractJSON(ctx, url, Schema(target.Kind), Prompt(target))
	if err != nil {
		return models.Rows{}, err
	}
	rows, err := Map(target, data, url, source, e.now())
	if err != nil {
		return rows, retry.Permanent(err)
	}
	return rows, nil
}
