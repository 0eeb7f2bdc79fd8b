package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/archive"
	"github.com/mywebintelligence/mwi/internal/fetch"
	"github.com/mywebintelligence/mwi/internal/gate"
	"github.com/mywebintelligence/mwi/internal/relevance"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/store/memstore"
)

type stubFetcher map[string]fetch.Result

func (f stubFetcher) Fetch(_ context.Context, u string) (fetch.Result, error) {
	if res, ok := f[u]; ok {
		res.FinalURL = u
		return res, nil
	}
	return fetch.Result{Status: fetch.StatusNone, FinalURL: u}, nil
}

func htmlResult(body string) fetch.Result {
	return fetch.Result{Status: "200", Body: []byte(body)}
}

func seedLand(t *testing.T, st *memstore.Store, name, lang string, terms ...string) store.Land {
	t.Helper()
	ctx := context.Background()
	land, err := st.CreateLand(ctx, name, "", lang)
	require.NoError(t, err)

	scorer := relevance.NewScorer(nil, lang)
	for _, term := range terms {
		w, err := st.AddWordIfAbsent(ctx, term, scorer.StemTerm(term))
		require.NoError(t, err)
		require.NoError(t, st.LinkLandWord(ctx, land.ID, w.ID))
	}
	return land
}

func seedURL(t *testing.T, st *memstore.Store, land store.Land, rawURL string) store.Expression {
	t.Helper()
	ctx := context.Background()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	d, err := st.GetOrCreateDomain(ctx, u.Hostname())
	require.NoError(t, err)
	e, _, err := st.UpsertExpression(ctx, land.ID, d.ID, rawURL, 0)
	require.NoError(t, err)
	return e
}

func newTestCrawler(st *memstore.Store, f Fetcher, g *gate.Gate, arch archive.Provider) *Crawler {
	return NewCrawler(st, f, g, arch, Config{Parallel: 2, MaxLinkDepth: 3}, zap.NewNop())
}

func TestCrawlSeedAndScore(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "asthme", "pollution")
	seed := seedURL(t, st, land, "https://sante.example.org/asthme")

	page := `<html lang="fr"><head><title>Asthme et pollution urbaine</title></head>
<body><p>La pollution monte. La pollution reste. La pollution nuit.</p></body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, nil, nil)

	stats, err := c.Crawl(context.Background(), Options{LandName: "A", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Errors: 0}, stats)

	e, err := st.GetExpression(context.Background(), seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Depth)
	assert.NotNil(t, e.FetchedAt)
	assert.Equal(t, "200", e.HTTPStatus)
	assert.Equal(t, "Asthme et pollution urbaine", e.Title)
	// Title hits: asthme + pollution = 2, body hits: pollution x3.
	assert.Equal(t, 23, e.Relevance)
	assert.NotNil(t, e.ApprovedAt)

	n, err := st.OutboundLinkCount(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCrawlDiscoversOutlinksAtNextDepth(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://sante.example.org/")

	page := `<html lang="fr"><head><title>Pollution</title></head><body>
<a href="/a">1</a><a href="/b">2</a><a href="/c">3</a><a href="/d">4</a><a href="/e">5</a>
</body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, nil, nil)

	ctx := context.Background()
	_, err := c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	n, err := st.OutboundLinkCount(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	all, err := st.ListAllExpressions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 6)
	for _, e := range all {
		if e.ID == seed.ID {
			continue
		}
		assert.Equal(t, 1, e.Depth)
		assert.Equal(t, land.ID, e.LandID)
	}
}

func TestCrawlLanguageMismatchScoresZero(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "B", "en", "asthma")
	seed := seedURL(t, st, land, "https://example.org/fr")

	page := `<html lang="fr"><head><title>Asthma asthma</title></head>
<body><a href="/next">next</a>asthma everywhere</body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, nil, nil)

	ctx := context.Background()
	_, err := c.Crawl(ctx, Options{LandName: "B"})
	require.NoError(t, err)

	e, err := st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	assert.Zero(t, e.Relevance)
	assert.Nil(t, e.ApprovedAt)

	n, err := st.OutboundLinkCount(ctx, seed.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_ = land
}

func TestCrawlDepthCapStopsLinkDiscovery(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")

	ctx := context.Background()
	d, err := st.GetOrCreateDomain(ctx, "example.org")
	require.NoError(t, err)
	deep, _, err := st.UpsertExpression(ctx, land.ID, d.ID, "https://example.org/deep", 3)
	require.NoError(t, err)

	page := `<html lang="fr"><head><title>Pollution</title></head>
<body><a href="/further">next</a><img src="/photo.png"></body></html>`
	c := newTestCrawler(st, stubFetcher{deep.URL: htmlResult(page)}, nil, nil)

	_, err = c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	n, err := st.OutboundLinkCount(ctx, deep.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	// Media discovery is not depth-capped.
	assert.Len(t, st.MediaForExpression(deep.ID), 1)
}

func TestCrawlGateVetoSuppressesEverything(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"non"}}]}`)
	}))
	t.Cleanup(srv.Close)
	g := gate.New(gate.Config{Enabled: true, Endpoint: srv.URL, APIKey: "k"}, zap.NewNop())
	require.NotNil(t, g)

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://example.org/")

	page := `<html lang="fr"><head><title>Pollution pollution</title></head>
<body><a href="/x">x</a><img src="/p.jpg">pollution partout</body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, g, nil)

	ctx := context.Background()
	_, err := c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	e, err := st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	assert.Zero(t, e.Relevance)
	assert.Nil(t, e.ApprovedAt)
	n, err := st.OutboundLinkCount(ctx, seed.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, st.MediaForExpression(seed.ID))
}

func TestCrawlFetchFailureRecordsStatus(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://gone.example.org/")
	_ = land

	c := newTestCrawler(st, stubFetcher{}, nil, nil)
	stats, err := c.Crawl(context.Background(), Options{LandName: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)

	e, err := st.GetExpression(context.Background(), seed.ID)
	require.NoError(t, err)
	assert.Equal(t, fetch.StatusNone, e.HTTPStatus)
	assert.NotNil(t, e.FetchedAt)
	assert.Zero(t, e.Relevance)
}

func TestCrawlTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://example.org/")

	page := `<html lang="fr"><head><title>Pollution</title></head>
<body><a href="/a">a</a><img src="/i.gif"></body></html>`
	fetcher := stubFetcher{seed.URL: htmlResult(page)}
	c := newTestCrawler(st, fetcher, nil, nil)

	ctx := context.Background()
	_, err := c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	first, err := st.ListAllExpressions(ctx)
	require.NoError(t, err)
	firstLinks := st.Links()

	// Discovered pages answer nothing new; a second run changes nothing.
	_, err = c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	second, err := st.ListAllExpressions(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
	assert.Equal(t, firstLinks, st.Links())

	e, err := st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, e.Relevance)
}

func TestRescoreAfterDictionaryChange(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://example.org/")

	page := `<html lang="fr"><head><title>Pollution et asthme</title></head>
<body>L'asthme progresse.</body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, nil, nil)

	ctx := context.Background()
	_, err := c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	e, err := st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	require.Equal(t, 10, e.Relevance)

	// Grow the dictionary, then re-score without refetching.
	scorer := relevance.NewScorer(nil, "fr")
	w, err := st.AddWordIfAbsent(ctx, "asthme", scorer.StemTerm("asthme"))
	require.NoError(t, err)
	require.NoError(t, st.LinkLandWord(ctx, land.ID, w.ID))

	stats, err := c.Rescore(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	e, err = st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 21, e.Relevance)
}

func TestConsolidateRebuildsFromArchive(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	land := seedLand(t, st, "A", "fr", "pollution")
	seed := seedURL(t, st, land, "https://example.org/")

	arch, err := archive.NewLocal(t.TempDir())
	require.NoError(t, err)

	page := `<html lang="fr"><head><title>Pollution</title></head>
<body><a href="/a">a</a><img src="/i.png"></body></html>`
	c := newTestCrawler(st, stubFetcher{seed.URL: htmlResult(page)}, nil, arch)

	ctx := context.Background()
	_, err = c.Crawl(ctx, Options{LandName: "A"})
	require.NoError(t, err)

	// Simulate external mutation: drop the derived graph edge.
	require.NoError(t, st.DeleteLinksFrom(ctx, seed.ID))

	stats, err := c.Consolidate(ctx, Options{LandName: "A"})
	require.NoError(t, err)
	assert.Zero(t, stats.Errors)

	n, err := st.OutboundLinkCount(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, st.MediaForExpression(seed.ID), 1)

	e, err := st.GetExpression(ctx, seed.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, e.Relevance)
	assert.NotNil(t, e.ApprovedAt)
}
