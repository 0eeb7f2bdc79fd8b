package api

import (
	"time"

	"github.com/mywebintelligence/mwi/internal/store"
)

type landDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Lang        string    `json:"lang"`
	CreatedAt   time.Time `json:"created_at"`

	Terms            []string `json:"terms,omitempty"`
	ExpressionCount  *int64   `json:"expression_count,omitempty"`
	RemainingToCrawl *int64   `json:"remaining_to_crawl,omitempty"`
}

type expressionDTO struct {
	ID          int64      `json:"id"`
	LandID      int64      `json:"land_id"`
	URL         string     `json:"url"`
	HTTPStatus  string     `json:"http_status,omitempty"`
	Lang        string     `json:"lang,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Author      string     `json:"author,omitempty"`
	Relevance   int        `json:"relevance"`
	Depth       int        `json:"depth"`
	Readable    string     `json:"readable,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ReadableAt  *time.Time `json:"readable_at,omitempty"`
}

func toLandDTO(l store.Land) landDTO {
	return landDTO{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Lang:        l.Lang,
		CreatedAt:   l.CreatedAt,
	}
}

func toLandDTOs(lands []store.LandSummary) []landDTO {
	out := make([]landDTO, 0, len(lands))
	for _, l := range lands {
		dto := toLandDTO(l.Land)
		dto.Terms = l.Terms
		count := l.ExpressionCount
		remaining := l.RemainingToCrawl
		dto.ExpressionCount = &count
		dto.RemainingToCrawl = &remaining
		out = append(out, dto)
	}
	return out
}

// toExpressionDTO omits the readable body in listings to keep payloads
// small; detail lookups include it.
func toExpressionDTO(e store.Expression, includeBody bool) expressionDTO {
	dto := expressionDTO{
		ID:          e.ID,
		LandID:      e.LandID,
		URL:         e.URL,
		HTTPStatus:  e.HTTPStatus,
		Lang:        e.Lang,
		Title:       e.Title,
		Description: e.Description,
		Author:      e.Author,
		Relevance:   e.Relevance,
		Depth:       e.Depth,
		PublishedAt: e.PublishedAt,
		FetchedAt:   e.FetchedAt,
		ApprovedAt:  e.ApprovedAt,
		ReadableAt:  e.ReadableAt,
	}
	if includeBody {
		dto.Readable = e.Readable
	}
	return dto
}
