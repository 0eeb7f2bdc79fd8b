// Package media implements image analysis for stored media rows:
// deny-list filtering, bounded download with retry, dimension and
// format measurement, perceptual hashing, EXIF extraction, dominant
// color estimation and simple content classification.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/worker"
)

// Store is the persistence surface of the analyzer.
type Store interface {
	GetLand(ctx context.Context, name string) (store.Land, error)
	ListMediaForAnalysis(ctx context.Context, f store.MediaFilter) ([]store.Media, error)
	SaveMedia(ctx context.Context, m store.Media) error
	DeleteMedia(ctx context.Context, ids []int64) (int64, error)
}

// Config controls the analyzer.
type Config struct {
	Parallel     int
	MinWidth     int
	MinHeight    int
	MaxFileSize  int64
	Retries      int
	Timeout      time.Duration
	DenyPatterns []string
	// Colors is the k of the dominant-color estimation.
	Colors int
	// ExtractEXIF, ExtractColors and TagContent toggle the optional passes.
	ExtractEXIF   bool
	ExtractColors bool
	TagContent    bool
}

// Options selects the media rows of one analysis run.
type Options struct {
	LandName     string
	MaxDepth     int
	MinRelevance int
	Reanalyze    bool
	Limit        int
}

// Stats summarizes an analysis run.
type Stats struct {
	Processed int
	Analyzed  int
	Rejected  int
	Errors    int
}

// Analyzer measures image media rows.
type Analyzer struct {
	store  Store
	client *http.Client
	deny   []*regexp.Regexp
	cfg    Config
	log    *zap.Logger
}

// NewAnalyzer wires an analyzer; the deny patterns are compiled once.
func NewAnalyzer(st Store, cfg Config, log *zap.Logger) (*Analyzer, error) {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 10
	}
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = 100
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = 100
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Colors <= 0 {
		cfg.Colors = 5
	}

	deny := make([]*regexp.Regexp, 0, len(cfg.DenyPatterns))
	for _, p := range cfg.DenyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("deny pattern %q: %w", p, err)
		}
		deny = append(deny, re)
	}
	return &Analyzer{
		store:  st,
		client: &http.Client{Timeout: cfg.Timeout},
		deny:   deny,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Analyze runs over the land's image media rows matching the filter.
func (a *Analyzer) Analyze(ctx context.Context, opts Options) (Stats, error) {
	land, err := a.store.GetLand(ctx, opts.LandName)
	if err != nil {
		return Stats{}, err
	}
	items, err := a.store.ListMediaForAnalysis(ctx, store.MediaFilter{
		LandID:       land.ID,
		MaxDepth:     opts.MaxDepth,
		MinRelevance: opts.MinRelevance,
		Reanalyze:    opts.Reanalyze,
		Limit:        opts.Limit,
	})
	if err != nil {
		return Stats{}, err
	}
	a.log.Info("media analysis started",
		zap.String("land", land.Name), zap.Int("media", len(items)))

	var analyzed, rejected atomic.Int64
	errs, err := worker.Windows(ctx, a.cfg.Parallel, items,
		func(ctx context.Context, m store.Media) error {
			ok, err := a.analyzeOne(ctx, m)
			if err != nil {
				return err
			}
			if ok {
				analyzed.Add(1)
			} else {
				rejected.Add(1)
			}
			return nil
		},
		func(done, total int) {
			a.log.Info("media progress", zap.Int("done", done), zap.Int("total", total))
		})
	return Stats{
		Processed: len(items),
		Analyzed:  int(analyzed.Load()),
		Rejected:  int(rejected.Load()),
		Errors:    errs,
	}, err
}

// analyzeOne measures a single media row. Rejections and measurement
// failures are stored as analysis_error with analyzed_at set, so the
// row is not revisited. The bool reports a successful measurement.
func (a *Analyzer) analyzeOne(ctx context.Context, m store.Media) (bool, error) {
	now := time.Now().UTC()
	m.AnalyzedAt = &now

	if re := a.denied(m.URL); re != "" {
		m.AnalysisError = "denied by pattern " + re
		return false, a.store.SaveMedia(ctx, m)
	}

	data, err := a.download(ctx, m.URL)
	if err != nil {
		m.AnalysisError = err.Error()
		if saveErr := a.store.SaveMedia(ctx, m); saveErr != nil {
			return false, saveErr
		}
		return false, err
	}
	m.FileSize = int64(len(data))

	if err := a.measure(&m, data); err != nil {
		m.AnalysisError = err.Error()
		return false, a.store.SaveMedia(ctx, m)
	}
	m.AnalysisError = ""
	return true, a.store.SaveMedia(ctx, m)
}

func (a *Analyzer) denied(url string) string {
	for _, re := range a.deny {
		if re.MatchString(url) {
			return re.String()
		}
	}
	return ""
}

// download retrieves the media body with retry and a hard size cap.
func (a *Analyzer) download(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.RandomizationFactor = 0

	var data []byte
	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("download status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		if resp.ContentLength > a.cfg.MaxFileSize {
			return backoff.Permanent(fmt.Errorf("file too large: %d bytes", resp.ContentLength))
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, a.cfg.MaxFileSize+1))
		if err != nil {
			return err
		}
		if int64(len(body)) > a.cfg.MaxFileSize {
			return backoff.Permanent(fmt.Errorf("file too large: over %d bytes", a.cfg.MaxFileSize))
		}
		data = body
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(a.cfg.Retries)), ctx))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// measure fills every analysis field of the row from the image bytes.
func (a *Analyzer) measure(m *store.Media, data []byte) error {
	img, format, err := decodeImage(data)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	m.Width = bounds.Dx()
	m.Height = bounds.Dy()
	if m.Width < a.cfg.MinWidth || m.Height < a.cfg.MinHeight {
		return fmt.Errorf("image too small: %dx%d", m.Width, m.Height)
	}

	m.Format = format
	m.ColorMode = colorMode(img)
	m.HasTransparency = hasTransparency(img)
	if m.Height > 0 {
		m.AspectRatio = float64(m.Width) / float64(m.Height)
	}

	hash, err := perceptualHash(img)
	if err != nil {
		return fmt.Errorf("perceptual hash: %w", err)
	}
	m.ImageHash = hash

	if a.cfg.ExtractEXIF && format == "jpeg" {
		m.EXIF = extractEXIF(data)
	}

	thumb := thumbnail(img, 100, 100)
	if a.cfg.ExtractColors {
		m.DominantColors = dominantColors(thumb, a.cfg.Colors)
		m.WebsafeColors = websafeColors(thumb)
	}
	if a.cfg.TagContent {
		m.ContentTags = contentTags(thumb)
	}
	return nil
}
