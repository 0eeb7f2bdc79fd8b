package readable

import (
	"context"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/gate"
	"github.com/mywebintelligence/mwi/internal/pipeline"
	"github.com/mywebintelligence/mwi/internal/relevance"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/worker"
)

// Store is the persistence surface the refiner needs.
type Store interface {
	GetLand(ctx context.Context, name string) (store.Land, error)
	LandLemmas(ctx context.Context, landID int64) ([]string, error)
	ListExpressionsForReadable(ctx context.Context, q store.ExpressionQuery) ([]store.Expression, error)
	SaveExpression(ctx context.Context, e store.Expression) error
	UpsertExpression(ctx context.Context, landID, domainID int64, url string, depth int) (store.Expression, bool, error)
	GetOrCreateDomain(ctx context.Context, host string) (store.Domain, error)
	AddLink(ctx context.Context, sourceID, targetID int64) error
	DeleteLinksFrom(ctx context.Context, sourceID int64) error
	UpsertMedia(ctx context.Context, expressionID int64, url, kind string) (store.Media, error)
	DeleteMediaForExpression(ctx context.Context, expressionID int64) error
}

// Config controls refiner batching and retries.
type Config struct {
	BatchSize      int
	Retries        int
	AttemptTimeout time.Duration
	MaxLinkDepth   int
}

// Options selects the expressions of one refinement run.
type Options struct {
	LandName string
	Limit    int
	Depth    *int
	Strategy Strategy
}

// Stats summarizes a refinement run.
type Stats struct {
	Processed int
	Updated   int
	Skipped   int
	Errors    int
}

// Refiner runs the extractor over fetched expressions and merges the
// results back.
type Refiner struct {
	store     Store
	extractor Extractor
	gate      *gate.Gate
	cfg       Config
	log       *zap.Logger
}

// NewRefiner wires a refiner; gate may be nil.
func NewRefiner(st Store, extractor Extractor, g *gate.Gate, cfg Config, log *zap.Logger) *Refiner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.MaxLinkDepth <= 0 {
		cfg.MaxLinkDepth = 3
	}
	return &Refiner{store: st, extractor: extractor, gate: g, cfg: cfg, log: log}
}

// Refine processes the land's fetched-but-unrefined expressions.
func (r *Refiner) Refine(ctx context.Context, opts Options) (Stats, error) {
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return Stats{}, err
	}
	land, err := r.store.GetLand(ctx, opts.LandName)
	if err != nil {
		return Stats{}, err
	}
	lemmas, err := r.store.LandLemmas(ctx, land.ID)
	if err != nil {
		return Stats{}, err
	}
	scorer := relevance.NewScorer(lemmas, land.Lang)

	items, err := r.store.ListExpressionsForReadable(ctx, store.ExpressionQuery{
		LandID: land.ID, Limit: opts.Limit, MaxDepth: opts.Depth,
	})
	if err != nil {
		return Stats{}, err
	}
	r.log.Info("readable refinement started",
		zap.String("land", land.Name), zap.Int("expressions", len(items)),
		zap.String("merge", string(strategy)))

	var updated, skipped atomic.Int64
	errs, err := worker.Windows(ctx, r.cfg.BatchSize, items,
		func(ctx context.Context, e store.Expression) error {
			changed, err := r.refineOne(ctx, land, scorer, strategy, e)
			if err != nil {
				return err
			}
			if changed {
				updated.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		},
		func(done, total int) {
			r.log.Info("readable progress", zap.Int("done", done), zap.Int("total", total))
		})
	return Stats{
		Processed: len(items),
		Updated:   int(updated.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    errs,
	}, err
}

// refineOne extracts, merges and writes back one expression. After
// retry exhaustion the stored row is left untouched.
func (r *Refiner) refineOne(ctx context.Context, land store.Land, scorer *relevance.Scorer, strategy Strategy, e store.Expression) (bool, error) {
	x, err := r.extract(ctx, e.URL)
	if err != nil {
		r.log.Debug("extraction failed", zap.String("url", e.URL), zap.Error(err))
		return false, err
	}

	now := time.Now().UTC()
	changed := Merge(strategy, &e, x)
	if changed {
		e.Relevance = r.score(ctx, land, scorer, e)
		if e.Relevance > 0 {
			if e.ApprovedAt == nil {
				e.ApprovedAt = &now
			}
		} else {
			e.ApprovedAt = nil
		}
	}
	// readable_at marks the visit even when nothing changed, so the
	// next run does not re-extract the same pages.
	e.ReadableAt = &now
	if err := r.store.SaveExpression(ctx, e); err != nil {
		return false, err
	}

	if err := r.harvest(ctx, land, e, x); err != nil {
		return changed, err
	}
	return changed, nil
}

func (r *Refiner) extract(ctx context.Context, pageURL string) (Extraction, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	var x Extraction
	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
		var err error
		x, err = r.extractor.Extract(attemptCtx, pageURL)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.cfg.Retries-1)), ctx))
	return x, err
}

func (r *Refiner) score(ctx context.Context, land store.Land, scorer *relevance.Scorer, e store.Expression) int {
	if r.gate != nil {
		verdict := r.gate.Check(ctx, gate.Request{
			LandName:        land.Name,
			LandDescription: land.Description,
			LandLang:        land.Lang,
			Lemmas:          scorer.Lemmas(),
			URL:             e.URL,
			Title:           e.Title,
			Description:     e.Description,
			Readable:        e.Readable,
		})
		if verdict == gate.No {
			return 0
		}
	}
	return scorer.Score(e.Title, e.Readable, e.Lang)
}

// harvest rewrites media and links from the extractor output. Media are
// replaced when the extractor supplied any; links are replaced only
// when the extractor supplied a non-empty set, so an extraction without
// structured links never regresses the graph.
func (r *Refiner) harvest(ctx context.Context, land store.Land, e store.Expression, x Extraction) error {
	base, err := url.Parse(e.URL)
	if err != nil {
		return err
	}

	images := x.Images
	if x.LeadImage != "" {
		images = append([]string{x.LeadImage}, images...)
	}
	var normalized []string
	for _, img := range images {
		u, ok := pipeline.NormalizeURL(base, img)
		if !ok {
			continue
		}
		if kind, ok := pipeline.MediaKindFor(u); !ok || kind != store.MediaKindImage {
			continue
		}
		normalized = append(normalized, u)
	}
	if len(normalized) > 0 {
		if err := r.store.DeleteMediaForExpression(ctx, e.ID); err != nil {
			return err
		}
		for _, u := range normalized {
			if _, err := r.store.UpsertMedia(ctx, e.ID, u, store.MediaKindImage); err != nil {
				return err
			}
		}
	}

	var links []string
	for _, l := range x.Links {
		if u, ok := pipeline.NormalizeURL(base, l); ok {
			links = append(links, u)
		}
	}
	if len(links) == 0 || e.Depth >= r.cfg.MaxLinkDepth {
		return nil
	}
	if err := r.store.DeleteLinksFrom(ctx, e.ID); err != nil {
		return err
	}
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil {
			continue
		}
		domain, err := r.store.GetOrCreateDomain(ctx, u.Hostname())
		if err != nil {
			return err
		}
		target, _, err := r.store.UpsertExpression(ctx, land.ID, domain.ID, l, e.Depth+1)
		if err != nil {
			return err
		}
		if target.ID == e.ID {
			continue
		}
		if err := r.store.AddLink(ctx, e.ID, target.ID); err != nil {
			return err
		}
	}
	return nil
}
