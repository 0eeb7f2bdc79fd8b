// Package dynmedia harvests media URLs that only appear after
// JavaScript execution, by rendering pages in headless Chrome and
// scanning the live DOM for image sources, srcset entries and
// lazy-loading attributes.
package dynmedia

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/pipeline"
	"github.com/mywebintelligence/mwi/internal/store"
)

// Config controls the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Extractor renders pages and collects media references.
type Extractor struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	log         *zap.Logger
}

// New creates a headless extractor backed by chromedp.
func New(cfg Config, log *zap.Logger) (*Extractor, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Extractor{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		log:         log,
	}, nil
}

// Close cancels the allocator context.
func (e *Extractor) Close() {
	e.allocCancel()
}

// collectScript pulls every candidate media source out of the rendered
// DOM: src, currentSrc, srcset candidates and common lazy attributes.
const collectScript = `(() => {
	const out = [];
	const push = (v) => { if (v) out.push(v); };
	for (const el of document.querySelectorAll("img, video, audio, source")) {
		push(el.currentSrc);
		push(el.getAttribute("src"));
		push(el.getAttribute("data-src"));
		push(el.getAttribute("data-lazy-src"));
		push(el.getAttribute("data-original"));
		const srcset = el.getAttribute("srcset") || el.getAttribute("data-srcset");
		if (srcset) {
			for (const part of srcset.split(",")) {
				push(part.trim().split(/\s+/)[0]);
			}
		}
	}
	return out;
})()`

// Harvest renders one page and returns the recognized media references,
// normalized against the page URL and deduplicated.
func (e *Extractor) Harvest(ctx context.Context, pageURL string) ([]pipeline.MediaRef, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, e.cfg.NavigationTimeout)
	defer cancel()

	var sources []string
	actions := []chromedp.Action{
		e.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(collectScript, &sources),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return normalizeSources(base, sources), nil
}

// Augment renders a page and upserts every discovered media row.
func (e *Extractor) Augment(ctx context.Context, st interface {
	UpsertMedia(ctx context.Context, expressionID int64, url, kind string) (store.Media, error)
}, expr store.Expression) (int, error) {
	refs, err := e.Harvest(ctx, expr.URL)
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if _, err := st.UpsertMedia(ctx, expr.ID, ref.URL, ref.Kind); err != nil {
			return 0, err
		}
	}
	e.log.Debug("dynamic media harvested",
		zap.String("url", expr.URL), zap.Int("media", len(refs)))
	return len(refs), nil
}

func normalizeSources(base *url.URL, sources []string) []pipeline.MediaRef {
	seen := map[pipeline.MediaRef]bool{}
	var out []pipeline.MediaRef
	for _, src := range sources {
		src = strings.TrimSpace(src)
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}
		normalized, ok := pipeline.NormalizeURL(base, src)
		if !ok {
			continue
		}
		kind, ok := pipeline.MediaKindFor(normalized)
		if !ok {
			continue
		}
		ref := pipeline.MediaRef{URL: normalized, Kind: kind}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

func (e *Extractor) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (e *Extractor) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	select {
	case e.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (e *Extractor) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}
