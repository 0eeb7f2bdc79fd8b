// Package readable implements the offline refinement pass: a
// high-quality content extractor, field-level merge strategies and the
// batched refiner that rewrites expressions, links and media.
package readable

import (
	"context"
	"time"
)

// Extraction is the structured output of a content extractor.
type Extraction struct {
	Title       string
	Markdown    string
	Excerpt     string
	Author      string
	Lang        string
	PublishedAt *time.Time
	LeadImage   string
	Images      []string
	Links       []string
}

// Empty reports whether the extractor produced nothing usable.
func (x Extraction) Empty() bool {
	return x.Title == "" && x.Markdown == "" && x.Excerpt == "" &&
		x.LeadImage == "" && len(x.Images) == 0 && len(x.Links) == 0
}

// Extractor turns a URL into structured readable content.
type Extractor interface {
	Extract(ctx context.Context, url string) (Extraction, error)
}
