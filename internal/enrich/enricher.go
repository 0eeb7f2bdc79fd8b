// Package enrich fills domain metadata: for each unfetched domain the
// homepage is retrieved through a cascade of a readability fetch
// helper, the archive fallback and a direct GET, and title,
// description and keywords are taken from whichever view answered.
package enrich

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/fetch"
	"github.com/mywebintelligence/mwi/internal/pipeline"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/worker"
)

// Store is the persistence surface of the enricher.
type Store interface {
	ListDomainsToCrawl(ctx context.Context, limit int, httpFilter string) ([]store.Domain, error)
	SaveDomain(ctx context.Context, d store.Domain) error
}

// Fetcher retrieves one page; the crawl fetcher already carries the
// archive fallback and direct GET of the cascade.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// Config controls enrichment.
type Config struct {
	Parallel int
	Timeout  time.Duration
}

// Options selects the domains of one run.
type Options struct {
	Limit      int
	HTTPFilter string
}

// Stats summarizes a run.
type Stats struct {
	Processed int
	Updated   int
	Errors    int
}

// Enricher fetches and stores per-domain metadata.
type Enricher struct {
	store   Store
	fetcher Fetcher
	cfg     Config
	log     *zap.Logger

	// extract is the readability fetch helper; overridable in tests.
	extract func(url string, timeout time.Duration) (readability.Article, error)
}

// New wires an enricher.
func New(st Store, fetcher Fetcher, cfg Config, log *zap.Logger) *Enricher {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Enricher{
		store:   st,
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
		extract: func(url string, timeout time.Duration) (readability.Article, error) {
			return readability.FromURL(url, timeout)
		},
	}
}

// Enrich processes unfetched domains, or re-runs failed ones when a
// status filter is given.
func (e *Enricher) Enrich(ctx context.Context, opts Options) (Stats, error) {
	domains, err := e.store.ListDomainsToCrawl(ctx, opts.Limit, opts.HTTPFilter)
	if err != nil {
		return Stats{}, err
	}
	e.log.Info("domain enrichment started", zap.Int("domains", len(domains)))

	var updated atomic.Int64
	errs, err := worker.Windows(ctx, e.cfg.Parallel, domains,
		func(ctx context.Context, d store.Domain) error {
			changed, err := e.enrichOne(ctx, d)
			if err != nil {
				return err
			}
			if changed {
				updated.Add(1)
			}
			return nil
		},
		func(done, total int) {
			e.log.Info("domain progress", zap.Int("done", done), zap.Int("total", total))
		})
	return Stats{Processed: len(domains), Updated: int(updated.Load()), Errors: errs}, err
}

func (e *Enricher) enrichOne(ctx context.Context, d store.Domain) (bool, error) {
	before := d
	status := fetch.StatusNone

	// Readability helper first, https then http.
	for _, scheme := range []string{"https://", "http://"} {
		article, err := e.extract(scheme+d.Name, e.cfg.Timeout)
		if err != nil {
			continue
		}
		fillDomain(&d, article.Title, article.Excerpt, "")
		status = "200"
		break
	}

	// Archive fallback and direct GET live inside the fetcher.
	if status == fetch.StatusNone || d.Title == "" || d.Description == "" || d.Keywords == "" {
		res, err := e.fetcher.Fetch(ctx, "https://"+d.Name)
		if err != nil {
			return false, err
		}
		if res.Status != fetch.StatusNone {
			status = res.Status
		}
		if res.Body != nil {
			if page, err := pipeline.ParsePage(res.Body, "https://"+d.Name); err == nil {
				fillDomain(&d, page.Title, page.Description, page.Keywords)
			}
		}
	}

	now := time.Now().UTC()
	d.HTTPStatus = status
	d.FetchedAt = &now
	if err := e.store.SaveDomain(ctx, d); err != nil {
		return false, err
	}
	changed := d.Title != before.Title || d.Description != before.Description ||
		d.Keywords != before.Keywords
	return changed, nil
}

// fillDomain keeps existing non-empty values.
func fillDomain(d *store.Domain, title, description, keywords string) {
	if d.Title == "" {
		d.Title = title
	}
	if d.Description == "" {
		d.Description = description
	}
	if d.Keywords == "" {
		d.Keywords = keywords
	}
}
