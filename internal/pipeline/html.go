// Package pipeline implements the content pipeline: HTML parsing,
// metadata extraction, readable-text production, relevance writeback
// and link/media discovery, for both the crawler and the consolidator.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/mywebintelligence/mwi/internal/store"
)

// Tags removed before producing the readable body. Narrowing this list
// changes scoring for every land; treat it as frozen.
var denylist = []string{
	"script", "style", "noscript", "nav", "footer", "header", "aside",
	"form", "iframe", "svg",
}

var mediaExtensions = map[string]map[string]bool{
	store.MediaKindImage: toSet("jpg", "jpeg", "png", "gif", "webp", "bmp", "svg"),
	store.MediaKindVideo: toSet("mp4", "webm", "ogg", "ogv", "mov", "avi", "mkv"),
	store.MediaKindAudio: toSet("mp3", "wav", "aac", "flac", "m4a"),
}

func toSet(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// MediaRef is a discovered media URL with its kind.
type MediaRef struct {
	URL  string
	Kind string
}

// Page is the parsed view of one HTML document.
type Page struct {
	Lang        string
	Title       string
	Description string
	Keywords    string
	Author      string
	PublishedAt *time.Time
	Text        string
	Links       []string
	Media       []MediaRef
}

// ParsePage extracts metadata, readable text, outlinks and media from
// raw HTML. Documents in legacy encodings are transcoded to UTF-8
// before parsing. Link and media URLs are resolved against base and
// normalized; non-crawlable links are dropped.
func ParsePage(html []byte, base string) (Page, error) {
	var reader io.Reader = bytes.NewReader(html)
	if decoded, err := charset.NewReader(bytes.NewReader(html), "text/html"); err == nil {
		reader = decoded
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return Page{}, fmt.Errorf("parse base url: %w", err)
	}

	var p Page
	p.Lang = pageLang(doc)
	p.Title = strings.TrimSpace(doc.Find("title").First().Text())
	p.Description = metaContent(doc, "description")
	p.Keywords = metaContent(doc, "keywords")
	p.Author = metaContent(doc, "author")
	p.PublishedAt = publishedAt(doc)
	p.Links = pageLinks(doc, baseURL)
	p.Media = pageMedia(doc, baseURL)

	doc.Find(strings.Join(denylist, ", ")).Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		p.Text = normalizeText(doc.Text())
	} else {
		p.Text = normalizeText(body.Text())
	}
	return p, nil
}

// pageLang reads the html element's lang attribute. Direction values
// sometimes found there are not languages.
func pageLang(doc *goquery.Document) string {
	lang := strings.TrimSpace(doc.Find("html").AttrOr("lang", ""))
	switch strings.ToLower(lang) {
	case "ltr", "rtl":
		return ""
	}
	return lang
}

func metaContent(doc *goquery.Document, name string) string {
	content := doc.Find(`meta[name="` + name + `"]`).First().AttrOr("content", "")
	if content == "" {
		content = doc.Find(`meta[property="og:` + name + `"]`).First().AttrOr("content", "")
	}
	return strings.TrimSpace(content)
}

func publishedAt(doc *goquery.Document) *time.Time {
	raw := doc.Find(`meta[property="article:published_time"]`).First().AttrOr("content", "")
	if raw == "" {
		raw = doc.Find(`meta[name="date"]`).First().AttrOr("content", "")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

func pageLinks(doc *goquery.Document, base *url.URL) []string {
	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		normalized, ok := NormalizeURL(base, href)
		if !ok || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}

func pageMedia(doc *goquery.Document, base *url.URL) []MediaRef {
	seen := map[MediaRef]bool{}
	var media []MediaRef
	collect := func(kind string) func(int, *goquery.Selection) {
		return func(_ int, sel *goquery.Selection) {
			src, ok := sel.Attr("src")
			if !ok {
				return
			}
			normalized, ok := NormalizeURL(base, src)
			if !ok || !hasMediaExtension(normalized, kind) {
				return
			}
			ref := MediaRef{URL: normalized, Kind: kind}
			if seen[ref] {
				return
			}
			seen[ref] = true
			media = append(media, ref)
		}
	}
	doc.Find("img[src]").Each(collect(store.MediaKindImage))
	doc.Find("video[src], video source[src]").Each(collect(store.MediaKindVideo))
	doc.Find("audio[src], audio source[src]").Each(collect(store.MediaKindAudio))
	return media
}

func hasMediaExtension(rawURL, kind string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	return mediaExtensions[kind][ext]
}

// MediaKindFor classifies a URL by its path extension. The second
// return is false when no recognized media extension matches.
func MediaKindFor(rawURL string) (string, bool) {
	for _, kind := range []string{store.MediaKindImage, store.MediaKindVideo, store.MediaKindAudio} {
		if hasMediaExtension(rawURL, kind) {
			return kind, true
		}
	}
	return "", false
}

// NormalizeURL resolves a reference against base and canonicalizes it:
// fragment stripped, scheme and host lower-cased. The second return is
// false for non-crawlable references (mailto, tel, javascript, data
// URIs, empty hosts, non-http schemes).
func NormalizeURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Hostname() == "" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

// normalizeText collapses intra-line whitespace runs to single spaces
// and block breaks to single newlines.
func normalizeText(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(fields, " "))
	}
	return b.String()
}
