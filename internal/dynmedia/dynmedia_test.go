package dynmedia

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/pipeline"
)

func TestNormalizeSources(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.org/articles/pollution")
	require.NoError(t, err)

	sources := []string{
		"/img/chart.png",
		"https://cdn.example.org/photo.JPG",
		"  /img/chart.png ", // duplicate after trimming
		"data:image/png;base64,AAAA",
		"clip.mp4",
		"/no-extension",
		"mailto:someone@example.org",
		"",
	}

	refs := normalizeSources(base, sources)
	assert.Equal(t, []pipeline.MediaRef{
		{URL: "https://example.org/img/chart.png", Kind: "img"},
		{URL: "https://cdn.example.org/photo.JPG", Kind: "img"},
		{URL: "https://example.org/articles/clip.mp4", Kind: "video"},
	}, refs)
}

func TestNormalizeSourcesEmpty(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.org/")
	require.NoError(t, err)
	assert.Empty(t, normalizeSources(base, nil))
	assert.Empty(t, normalizeSources(base, []string{"data:image/gif;base64,R0"}))
}

func TestNewRejectsNegativeParallel(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: -1}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewDefaultsTimeout(t *testing.T) {
	t.Parallel()

	e, err := New(Config{MaxParallel: 2}, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.Positive(t, e.cfg.NavigationTimeout)
	assert.Equal(t, 2, cap(e.limiter))
}
