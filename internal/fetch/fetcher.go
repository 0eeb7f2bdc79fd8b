// Package fetch implements the HTTP page fetcher: a colly collector
// with redirect following, an HTML content-type requirement and an
// archive.org fallback for pages that fail or serve non-HTML.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// StatusNone is recorded when no HTTP response was obtained at all.
const StatusNone = "000"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// WaybackEndpoint overrides the availability API base; tests point
	// it at an httptest server.
	WaybackEndpoint string
}

// Result is the outcome of fetching one URL. Status always holds a
// three-digit code ("000" when nothing answered); Body is nil unless an
// HTML document was obtained, possibly from the archive fallback.
type Result struct {
	Status      string
	Body        []byte
	FinalURL    string
	FromArchive bool
}

// Fetcher retrieves pages. Safe for concurrent use; each Fetch clones
// the base collector.
type Fetcher struct {
	cfg     Config
	base    *colly.Collector
	wayback *waybackClient
	log     *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, log *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:     cfg,
		base:    c,
		wayback: newWaybackClient(cfg.WaybackEndpoint, cfg.Timeout),
		log:     log,
	}
}

// Fetch retrieves one URL. Non-HTML responses and failures fall back to
// the archive service; when the fallback also fails, the result keeps
// the original status (or "000") with a nil body. The returned error is
// non-nil only on context cancellation.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Result, error) {
	res, err := f.direct(ctx, url)
	if err != nil {
		return Result{}, err
	}
	if res.Body != nil {
		return res, nil
	}

	snapshot, ok := f.wayback.closest(ctx, url)
	if !ok {
		return res, nil
	}
	archived, err := f.direct(ctx, snapshot)
	if err != nil {
		return Result{}, err
	}
	if archived.Body == nil {
		return res, nil
	}
	f.log.Debug("served from archive", zap.String("url", url), zap.String("snapshot", snapshot))
	// Keep the original URL's status; the body comes from the snapshot.
	return Result{
		Status:      res.Status,
		Body:        archived.Body,
		FinalURL:    url,
		FromArchive: true,
	}, nil
}

func (f *Fetcher) direct(ctx context.Context, url string) (Result, error) {
	res := Result{Status: StatusNone, FinalURL: url}

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		res.Status = fmt.Sprintf("%03d", r.StatusCode)
		res.FinalURL = r.Request.URL.String()
		if isHTML(r.Headers.Get("Content-Type")) {
			res.Body = append([]byte(nil), r.Body...)
		}
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.StatusCode > 0 {
			res.Status = fmt.Sprintf("%03d", r.StatusCode)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := collector.Visit(url); err != nil {
			f.log.Debug("fetch failed", zap.String("url", url), zap.Error(err))
		}
		collector.Wait()
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
	case <-done:
		return res, nil
	}
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
