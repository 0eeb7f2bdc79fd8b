package readable

import (
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// BuiltinExtractor extracts readable content in-process with a
// readability port and converts it to markdown. Used when no external
// extractor binary is configured.
type BuiltinExtractor struct {
	timeout time.Duration
}

// NewBuiltin builds the in-process extractor.
func NewBuiltin(timeout time.Duration) *BuiltinExtractor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &BuiltinExtractor{timeout: timeout}
}

func (b *BuiltinExtractor) Extract(_ context.Context, url string) (Extraction, error) {
	article, err := readability.FromURL(url, b.timeout)
	if err != nil {
		return Extraction{}, fmt.Errorf("readability: %w", err)
	}

	markdown, err := htmltomarkdown.ConvertString(article.Content)
	if err != nil {
		return Extraction{}, fmt.Errorf("markdown conversion: %w", err)
	}

	x := Extraction{
		Title:       strings.TrimSpace(article.Title),
		Markdown:    strings.TrimSpace(markdown),
		Excerpt:     strings.TrimSpace(article.Excerpt),
		Author:      strings.TrimSpace(article.Byline),
		Lang:        normalizeLang(article.Language, ""),
		PublishedAt: article.PublishedTime,
		LeadImage:   article.Image,
	}
	x.Images, x.Links = harvestContent(article.Content)
	return x, nil
}

// harvestContent pulls image sources and anchor targets out of the
// extracted article HTML. URLs are left as-is; the refiner normalizes
// them against the expression URL.
func harvestContent(html string) (images, links []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			images = append(images, src)
		}
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return images, links
}
