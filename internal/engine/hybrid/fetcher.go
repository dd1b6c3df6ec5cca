// Package hybrid fetches pages statically and switches to browser rendering
// when the source asks for it or the static response is an app shell
package hybrid

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/comparethewait/ctw/internal/engine"
	"github.com/comparethewait/ctw/internal/engine/metadata"
	"github.com/comparethewait/ctw/internal/retry"
	"github.com/comparethewait/ctw/internal/utils/output"
	"github.com/comparethewait/ctw/pkg/models"
)

// DocFetcher fetches a page and exposes its parsed document
type DocFetcher interface {
	Name() string
	FetchWithDoc(ctx context.Context, opts models.FetchOptions) (*models.PageData, *goquery.Document, error)
}

// Fetcher combines a static fetcher with an optional renderer. Every page it
// returns carries Markdown converted from its main content.
type Fetcher struct {
	static   DocFetcher
	renderer engine.Fetcher
}

// New creates a hybrid fetcher. A nil renderer disables rendering.
func New(static DocFetcher, renderer engine.Fetcher) *Fetcher {
	return &Fetcher{static: static, renderer: renderer}
}

// Name returns the name of this fetcher
func (f *Fetcher) Name() string {
	return "hybrid"
}

// Fetch retrieves opts.URL, rendering it when opts.RenderJS is set or the
// static response looks like it needs JavaScript
func (f *Fetcher) Fetch(ctx context.Context, opts models.FetchOptions) (*models.PageData, error) {
	if opts.RenderJS {
		if f.renderer == nil {
			return nil, retry.Permanent(engine.ErrRenderDisabled)
		}
		page, err := f.renderer.Fetch(ctx, opts)
		if err != nil {
			return nil, err
		}
		return withMarkdown(page)
	}

	page, doc, err := f.static.FetchWithDoc(ctx, opts)
	if err != nil {
		return nil, err
	}

	raw, _ := doc.Html()
	strategy := DetermineStrategy(raw, doc.Find("body").Text(), metadata.ScriptCount(doc))
	if strategy == StrategyDynamic && f.renderer != nil {
		log.Debug().
			Str("url", opts.URL).
			Str("framework", DetectJavaScriptFramework(raw)).
			Msg("Static response needs JavaScript, rendering")

		rendered, err := f.renderer.Fetch(ctx, opts)
		switch {
		case err == nil:
			page = rendered
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			log.Warn().Err(err).Str("url", opts.URL).Msg("Render failed, using static response")
		}
	}

	return withMarkdown(page)
}

func withMarkdown(page *models.PageData) (*models.PageData, error) {
	markdown, err := output.ToMarkdown(page.HTML, page.URL)
	if err != nil {
		return nil, err
	}
	page.Markdown = markdown
	return page, nil
}
