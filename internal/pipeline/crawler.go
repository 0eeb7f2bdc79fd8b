package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/archive"
	"github.com/mywebintelligence/mwi/internal/fetch"
	"github.com/mywebintelligence/mwi/internal/gate"
	"github.com/mywebintelligence/mwi/internal/relevance"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/worker"
)

// Store is the persistence surface the pipeline needs. Both the
// Postgres store and the in-memory test store satisfy it.
type Store interface {
	GetLand(ctx context.Context, name string) (store.Land, error)
	LandLemmas(ctx context.Context, landID int64) ([]string, error)
	ListExpressionsToCrawl(ctx context.Context, q store.ExpressionQuery) ([]store.Expression, error)
	ListExpressionsForConsolidation(ctx context.Context, q store.ExpressionQuery) ([]store.Expression, error)
	ListExpressionsWithReadable(ctx context.Context, landID int64) ([]store.Expression, error)
	SaveExpression(ctx context.Context, e store.Expression) error
	UpsertExpression(ctx context.Context, landID, domainID int64, url string, depth int) (store.Expression, bool, error)
	GetOrCreateDomain(ctx context.Context, host string) (store.Domain, error)
	AddLink(ctx context.Context, sourceID, targetID int64) error
	UpsertMedia(ctx context.Context, expressionID int64, url, kind string) (store.Media, error)
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Result, error)
}

// Config controls crawl behavior.
type Config struct {
	Parallel     int
	MaxLinkDepth int
}

// Options selects the expressions of one crawl run.
type Options struct {
	LandName   string
	Limit      int
	HTTPFilter string
	// Depth, when set, restricts the run to expressions at or above
	// (shallower than) this depth.
	Depth *int
}

// Stats summarizes a run.
type Stats struct {
	Processed int
	Errors    int
}

// Crawler drives the fetch-parse-score-discover cycle over a land.
type Crawler struct {
	store   Store
	fetcher Fetcher
	gate    *gate.Gate
	archive archive.Provider
	cfg     Config
	log     *zap.Logger

	// Notify, when set, observes every expression after its crawl
	// attempt concluded, successful or not. Called concurrently.
	Notify func(e store.Expression, dur time.Duration)
}

// NewCrawler wires a crawler. gate may be nil (disabled); arch may be
// archive.NoOp when raw HTML is not kept.
func NewCrawler(st Store, fetcher Fetcher, g *gate.Gate, arch archive.Provider, cfg Config, log *zap.Logger) *Crawler {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 10
	}
	if cfg.MaxLinkDepth <= 0 {
		cfg.MaxLinkDepth = 3
	}
	if arch == nil {
		arch = archive.NoOp{}
	}
	return &Crawler{store: st, fetcher: fetcher, gate: g, archive: arch, cfg: cfg, log: log}
}

// Crawl fetches and processes the land's pending expressions in
// windows of the configured parallelism.
func (c *Crawler) Crawl(ctx context.Context, opts Options) (Stats, error) {
	land, scorer, err := c.landScorer(ctx, opts.LandName)
	if err != nil {
		return Stats{}, err
	}
	items, err := c.store.ListExpressionsToCrawl(ctx, store.ExpressionQuery{
		LandID: land.ID, Limit: opts.Limit, HTTPFilter: opts.HTTPFilter, MaxDepth: opts.Depth,
	})
	if err != nil {
		return Stats{}, err
	}
	c.log.Info("crawl started",
		zap.String("land", land.Name), zap.Int("expressions", len(items)))

	errs, err := worker.Windows(ctx, c.cfg.Parallel, items,
		func(ctx context.Context, e store.Expression) error {
			start := time.Now()
			err := c.crawlOne(ctx, land, scorer, &e)
			if c.Notify != nil {
				c.Notify(e, time.Since(start))
			}
			return err
		},
		func(done, total int) {
			c.log.Info("crawl progress", zap.Int("done", done), zap.Int("total", total))
		})
	return Stats{Processed: len(items), Errors: errs}, err
}

// Consolidate re-derives metadata, relevance, links and media of
// already-fetched expressions from the archived HTML, without touching
// the network. Existing links and media are never deleted.
func (c *Crawler) Consolidate(ctx context.Context, opts Options) (Stats, error) {
	land, scorer, err := c.landScorer(ctx, opts.LandName)
	if err != nil {
		return Stats{}, err
	}
	items, err := c.store.ListExpressionsForConsolidation(ctx, store.ExpressionQuery{
		LandID: land.ID, Limit: opts.Limit, MaxDepth: opts.Depth,
	})
	if err != nil {
		return Stats{}, err
	}
	c.log.Info("consolidation started",
		zap.String("land", land.Name), zap.Int("expressions", len(items)))

	errs, err := worker.Windows(ctx, c.cfg.Parallel, items,
		func(ctx context.Context, e store.Expression) error {
			return c.consolidateOne(ctx, land, scorer, e)
		},
		func(done, total int) {
			c.log.Info("consolidation progress", zap.Int("done", done), zap.Int("total", total))
		})
	return Stats{Processed: len(items), Errors: errs}, err
}

// Rescore recomputes relevance for every expression of the land that
// carries a readable body, after the dictionary changed. The gate is
// never consulted here; scoring is purely local.
func (c *Crawler) Rescore(ctx context.Context, landName string) (Stats, error) {
	land, scorer, err := c.landScorer(ctx, landName)
	if err != nil {
		return Stats{}, err
	}
	items, err := c.store.ListExpressionsWithReadable(ctx, land.ID)
	if err != nil {
		return Stats{}, err
	}

	now := time.Now().UTC()
	stats := Stats{Processed: len(items)}
	for _, e := range items {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		e.Relevance = scorer.Score(e.Title, e.Readable, e.Lang)
		c.setApproval(&e, now)
		if err := c.store.SaveExpression(ctx, e); err != nil {
			stats.Errors++
		}
	}
	return stats, nil
}

func (c *Crawler) landScorer(ctx context.Context, name string) (store.Land, *relevance.Scorer, error) {
	land, err := c.store.GetLand(ctx, name)
	if err != nil {
		return store.Land{}, nil, err
	}
	lemmas, err := c.store.LandLemmas(ctx, land.ID)
	if err != nil {
		return store.Land{}, nil, err
	}
	return land, relevance.NewScorer(lemmas, land.Lang), nil
}

func (c *Crawler) crawlOne(ctx context.Context, land store.Land, scorer *relevance.Scorer, e *store.Expression) error {
	res, err := c.fetcher.Fetch(ctx, e.URL)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	e.HTTPStatus = res.Status
	e.FetchedAt = &now

	if res.Body == nil {
		if err := c.store.SaveExpression(ctx, *e); err != nil {
			return err
		}
		return fmt.Errorf("no document for %s (status %s)", e.URL, res.Status)
	}

	if err := c.archive.SavePage(ctx, land.ID, e.ID, res.Body); err != nil {
		c.log.Warn("archive write failed", zap.Int64("expression", e.ID), zap.Error(err))
	}

	return c.process(ctx, land, scorer, e, res.Body, now)
}

func (c *Crawler) consolidateOne(ctx context.Context, land store.Land, scorer *relevance.Scorer, e store.Expression) error {
	now := time.Now().UTC()
	html, err := c.archive.ReadPage(ctx, land.ID, e.ID)
	if err != nil || len(html) == 0 {
		// No archived document: recompute the score from stored fields.
		e.Relevance = c.score(ctx, land, scorer, e)
		c.setApproval(&e, now)
		return c.store.SaveExpression(ctx, e)
	}
	return c.process(ctx, land, scorer, &e, html, now)
}

// process runs the parse-score-discover sequence and writes back in the
// fixed order: scalar fields, relevance, timestamps, commit, links,
// media. Link and media insertion is idempotent, so a failure after the
// commit is resumable.
func (c *Crawler) process(ctx context.Context, land store.Land, scorer *relevance.Scorer, e *store.Expression, html []byte, now time.Time) error {
	page, err := ParsePage(html, e.URL)
	if err != nil {
		// Keep whatever was already recorded; score falls to zero.
		e.Relevance = 0
		e.ApprovedAt = nil
		if saveErr := c.store.SaveExpression(ctx, *e); saveErr != nil {
			return saveErr
		}
		return err
	}

	e.Lang = page.Lang
	e.Title = page.Title
	e.Description = page.Description
	e.Keywords = page.Keywords
	e.Author = page.Author
	if page.PublishedAt != nil {
		e.PublishedAt = page.PublishedAt
	}
	e.Readable = page.Text

	vetoed := false
	if c.gate != nil {
		if c.gateCheck(ctx, land, scorer, *e) == gate.No {
			vetoed = true
		}
	}
	if vetoed {
		e.Relevance = 0
		e.ApprovedAt = nil
	} else {
		e.Relevance = scorer.Score(e.Title, e.Readable, e.Lang)
		c.setApproval(e, now)
	}

	if err := c.store.SaveExpression(ctx, *e); err != nil {
		return err
	}
	if vetoed || e.Relevance <= 0 {
		return nil
	}
	return c.discover(ctx, land, *e, page)
}

func (c *Crawler) score(ctx context.Context, land store.Land, scorer *relevance.Scorer, e store.Expression) int {
	if c.gate != nil && c.gateCheck(ctx, land, scorer, e) == gate.No {
		return 0
	}
	return scorer.Score(e.Title, e.Readable, e.Lang)
}

func (c *Crawler) setApproval(e *store.Expression, now time.Time) {
	if e.Relevance > 0 {
		if e.ApprovedAt == nil {
			e.ApprovedAt = &now
		}
	} else {
		e.ApprovedAt = nil
	}
}

func (c *Crawler) gateCheck(ctx context.Context, land store.Land, scorer *relevance.Scorer, e store.Expression) gate.Verdict {
	lemmas := scorer.Lemmas()
	return c.gate.Check(ctx, gate.Request{
		LandName:        land.Name,
		LandDescription: land.Description,
		LandLang:        land.Lang,
		Lemmas:          lemmas,
		URL:             e.URL,
		Title:           e.Title,
		Description:     e.Description,
		Readable:        e.Readable,
	})
}

// discover upserts outlinks and media found on an approved page.
// Outlink discovery stops at the configured depth cap.
func (c *Crawler) discover(ctx context.Context, land store.Land, e store.Expression, page Page) error {
	if e.Depth < c.cfg.MaxLinkDepth {
		for _, link := range page.Links {
			target, err := c.upsertLink(ctx, land, link, e.Depth+1)
			if err != nil {
				return err
			}
			if target.ID == e.ID {
				continue
			}
			if err := c.store.AddLink(ctx, e.ID, target.ID); err != nil {
				return err
			}
		}
	}
	for _, m := range page.Media {
		if _, err := c.store.UpsertMedia(ctx, e.ID, m.URL, m.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) upsertLink(ctx context.Context, land store.Land, link string, depth int) (store.Expression, error) {
	u, err := url.Parse(link)
	if err != nil {
		return store.Expression{}, fmt.Errorf("parse link %q: %w", link, err)
	}
	domain, err := c.store.GetOrCreateDomain(ctx, u.Hostname())
	if err != nil {
		return store.Expression{}, err
	}
	target, _, err := c.store.UpsertExpression(ctx, land.ID, domain.ID, link, depth)
	return target, err
}
