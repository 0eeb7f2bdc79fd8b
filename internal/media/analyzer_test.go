package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/config"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/store/memstore"
)

func makeImage(w, h int, at func(x, y int) color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, at(x, y))
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func seedMedia(t *testing.T, st *memstore.Store, url string) store.Media {
	t.Helper()
	ctx := context.Background()
	land, err := st.CreateLand(ctx, "A", "", "fr")
	require.NoError(t, err)
	d, err := st.GetOrCreateDomain(ctx, "img.example.org")
	require.NoError(t, err)
	e, _, err := st.UpsertExpression(ctx, land.ID, d.ID, "https://img.example.org/page", 0)
	require.NoError(t, err)
	m, err := st.UpsertMedia(ctx, e.ID, url, store.MediaKindImage)
	require.NoError(t, err)
	return m
}

func newTestAnalyzer(t *testing.T, st Store, cfg Config) *Analyzer {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	a, err := NewAnalyzer(st, cfg, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestAnalyzeMeasuresImage(t *testing.T) {
	t.Parallel()

	img := makeImage(200, 150, func(x, _ int) color.Color {
		if x < 100 {
			return color.RGBA{R: 220, A: 255}
		}
		return color.RGBA{B: 220, A: 255}
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(encodePNG(t, img))
	}))
	t.Cleanup(srv.Close)

	st := memstore.New()
	m := seedMedia(t, st, srv.URL+"/photo.png")

	a := newTestAnalyzer(t, st, Config{ExtractColors: true})
	stats, err := a.Analyze(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Analyzed: 1, Rejected: 0, Errors: 0}, stats)

	got := st.MediaForExpression(m.ExpressionID)[0]
	assert.Equal(t, 200, got.Width)
	assert.Equal(t, 150, got.Height)
	assert.Equal(t, "png", got.Format)
	assert.InDelta(t, 200.0/150.0, got.AspectRatio, 0.001)
	assert.Regexp(t, `^p:[0-9a-f]+$`, got.ImageHash)
	assert.NotNil(t, got.AnalyzedAt)
	assert.Empty(t, got.AnalysisError)

	require.NotEmpty(t, got.DominantColors)
	names := make([]string, 0, len(got.DominantColors))
	for _, c := range got.DominantColors {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "red")
	assert.Contains(t, names, "blue")
	assert.NotEmpty(t, got.WebsafeColors)
}

func TestAnalyzeRejectsDeniedURL(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	m := seedMedia(t, st, "https://ads.doubleclick.net/banner.png")

	a := newTestAnalyzer(t, st, Config{DenyPatterns: config.DefaultMediaDenyPatterns})
	stats, err := a.Analyze(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)

	got := st.MediaForExpression(m.ExpressionID)[0]
	assert.NotNil(t, got.AnalyzedAt)
	assert.Contains(t, got.AnalysisError, "denied")
}

func TestAnalyzeRejectsSmallImage(t *testing.T) {
	t.Parallel()

	img := makeImage(40, 40, func(int, int) color.Color { return color.White })
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(encodePNG(t, img))
	}))
	t.Cleanup(srv.Close)

	st := memstore.New()
	m := seedMedia(t, st, srv.URL+"/tiny.png")

	a := newTestAnalyzer(t, st, Config{})
	stats, err := a.Analyze(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)

	got := st.MediaForExpression(m.ExpressionID)[0]
	assert.Contains(t, got.AnalysisError, "too small")
	assert.NotNil(t, got.AnalyzedAt)
}

func TestAnalyzeRejectsOversizedDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 4096))
	}))
	t.Cleanup(srv.Close)

	st := memstore.New()
	m := seedMedia(t, st, srv.URL+"/huge.png")

	a := newTestAnalyzer(t, st, Config{MaxFileSize: 1024, Retries: 1})
	stats, err := a.Analyze(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	got := st.MediaForExpression(m.ExpressionID)[0]
	assert.Contains(t, got.AnalysisError, "too large")
}

func TestAnalyzeSkipsAlreadyAnalyzed(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	m := seedMedia(t, st, "https://img.example.org/a.png")
	now := time.Now().UTC()
	m.AnalyzedAt = &now
	require.NoError(t, st.SaveMedia(context.Background(), m))

	a := newTestAnalyzer(t, st, Config{})
	stats, err := a.Analyze(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
}

func TestHashStableAcrossReencoding(t *testing.T) {
	t.Parallel()

	img := makeImage(128, 128, func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 2), G: uint8(y * 2), B: 64, A: 255}
	})

	h1, err := perceptualHash(img)
	require.NoError(t, err)
	h2, err := perceptualHash(img)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	reencoded, _, err := decodeImage(buf.Bytes())
	require.NoError(t, err)
	h3, err := perceptualHash(reencoded)
	require.NoError(t, err)

	dist, err := HashDistance(h1, h3)
	require.NoError(t, err)
	assert.LessOrEqual(t, dist, 10)
}

func TestContentTagsFlatImageIsLogo(t *testing.T) {
	t.Parallel()

	flat := makeImage(100, 100, func(int, int) color.Color {
		return color.RGBA{R: 30, G: 90, B: 200, A: 255}
	})
	assert.Contains(t, contentTags(flat), "logo")
}

func TestWebsafeColorsSolid(t *testing.T) {
	t.Parallel()

	solid := makeImage(10, 10, func(int, int) color.Color {
		return color.RGBA{R: 255, A: 255}
	})
	got := websafeColors(solid)
	assert.InDelta(t, 100.0, got["#ff0000"], 0.001)
	assert.Len(t, got, 1)
}

func TestTransparencyDetection(t *testing.T) {
	t.Parallel()

	opaque := makeImage(10, 10, func(int, int) color.Color { return color.White })
	assert.False(t, hasTransparency(opaque))

	holed := makeImage(10, 10, func(x, y int) color.Color {
		if x == 5 && y == 5 {
			return color.RGBA{A: 0}
		}
		return color.White
	})
	assert.True(t, hasTransparency(holed))
}
