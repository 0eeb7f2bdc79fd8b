package pipeline

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mywebintelligence/mwi/internal/store"
)

const fixturePage = `<!DOCTYPE html>
<html lang="fr">
<head>
<title>Asthme et pollution urbaine</title>
<meta name="description" content="Dossier sur la qualité de l'air.">
<meta name="keywords" content="asthme, air, santé">
<meta name="author" content="Rédaction">
<meta property="article:published_time" content="2023-05-02T10:00:00Z">
</head>
<body>
<nav><a href="/menu">Menu</a> navigation text</nav>
<script>var tracking = 1;</script>
<article>
<p>La pollution aggrave les crises. La pollution urbaine persiste. La pollution tue.</p>
<a href="/dossier/air?page=2#section">Suite du dossier</a>
<a href="mailto:contact@example.org">Écrire</a>
<a href="javascript:void(0)">Rien</a>
<img src="/img/fumee.JPG" alt="">
<img src="/img/pixel">
<video src="/media/reportage.mp4"></video>
</article>
<footer>Mentions légales</footer>
</body>
</html>`

func TestParsePageMetadata(t *testing.T) {
	t.Parallel()

	p, err := ParsePage([]byte(fixturePage), "https://example.org/dossier/air")
	require.NoError(t, err)

	assert.Equal(t, "fr", p.Lang)
	assert.Equal(t, "Asthme et pollution urbaine", p.Title)
	assert.Equal(t, "Dossier sur la qualité de l'air.", p.Description)
	assert.Equal(t, "asthme, air, santé", p.Keywords)
	assert.Equal(t, "Rédaction", p.Author)
	require.NotNil(t, p.PublishedAt)
	assert.Equal(t, 2023, p.PublishedAt.Year())
}

func TestParsePageTranscodesLegacyEncoding(t *testing.T) {
	t.Parallel()

	// "Santé" with é as the single ISO-8859-1 byte 0xE9.
	raw := append([]byte(`<html lang="fr"><head><meta charset="iso-8859-1"><title>Sant`), 0xE9)
	raw = append(raw, []byte(`</title></head><body><p>ok</p></body></html>`)...)

	p, err := ParsePage(raw, "https://example.org/")
	require.NoError(t, err)
	assert.Equal(t, "Santé", p.Title)
}

func TestParsePageReadableExcludesDenylistedTags(t *testing.T) {
	t.Parallel()

	p, err := ParsePage([]byte(fixturePage), "https://example.org/")
	require.NoError(t, err)

	assert.Contains(t, p.Text, "La pollution aggrave les crises.")
	assert.NotContains(t, p.Text, "navigation text")
	assert.NotContains(t, p.Text, "Mentions légales")
	assert.NotContains(t, p.Text, "tracking")
}

func TestParsePageLinksNormalized(t *testing.T) {
	t.Parallel()

	p, err := ParsePage([]byte(fixturePage), "https://example.org/dossier/air")
	require.NoError(t, err)

	assert.Contains(t, p.Links, "https://example.org/menu")
	assert.Contains(t, p.Links, "https://example.org/dossier/air?page=2")
	for _, l := range p.Links {
		assert.NotContains(t, l, "mailto")
		assert.NotContains(t, l, "javascript")
		assert.NotContains(t, l, "#")
	}
}

func TestParsePageMediaByExtension(t *testing.T) {
	t.Parallel()

	p, err := ParsePage([]byte(fixturePage), "https://example.org/")
	require.NoError(t, err)

	assert.Contains(t, p.Media, MediaRef{URL: "https://example.org/img/fumee.JPG", Kind: store.MediaKindImage})
	assert.Contains(t, p.Media, MediaRef{URL: "https://example.org/media/reportage.mp4", Kind: store.MediaKindVideo})
	for _, m := range p.Media {
		assert.NotContains(t, m.URL, "pixel")
	}
}

func TestPageLangIgnoresDirectionValues(t *testing.T) {
	t.Parallel()

	p, err := ParsePage([]byte(`<html lang="ltr"><body>x</body></html>`), "https://example.org/")
	require.NoError(t, err)
	assert.Empty(t, p.Lang)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://Example.org/a/b")
	require.NoError(t, err)

	cases := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"../c#frag", "https://example.org/c", true},
		{"HTTPS://EXAMPLE.ORG/X", "https://example.org/X", true},
		{"tel:+33123456789", "", false},
		{"data:text/plain;base64,aGk=", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeURL(base, tc.ref)
		assert.Equal(t, tc.ok, ok, tc.ref)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.ref)
		}
	}
}
