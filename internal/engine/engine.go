// Package engine fetches target pages directly for the regex parser stage,
// when the extraction API cannot supply page content.
package engine

import (
	"context"

	"github.com/comparethewait/ctw/pkg/models"
)

// Fetcher is the interface that all page fetchers implement
type Fetcher interface {
	// Fetch retrieves and parses the page at opts.URL
	Fetch(ctx context.Context, opts models.FetchOptions) (*models.PageData, error)

	// Name returns the name of the fetcher implementation
	Name() string
}
