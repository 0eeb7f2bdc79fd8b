package readable

import (
	"fmt"
	"time"

	"github.com/mywebintelligence/mwi/internal/store"
)

// Strategy selects how extractor output combines with stored fields.
type Strategy string

const (
	// SmartMerge applies a per-field policy: longer title and
	// description win, the extractor's body always wins, dates, author
	// and language only fill empty stored values.
	SmartMerge Strategy = "smart_merge"
	// MercuryPriority takes every non-empty extractor value.
	MercuryPriority Strategy = "mercury_priority"
	// PreserveExisting only fills stored fields that are empty.
	PreserveExisting Strategy = "preserve_existing"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case SmartMerge, MercuryPriority, PreserveExisting:
		return Strategy(name), nil
	case "":
		return SmartMerge, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", name)
	}
}

type fieldPolicy int

const (
	longerWins fieldPolicy = iota
	extractorWins
	fillEmpty
)

// smartPolicies is the per-field policy table of SmartMerge.
var smartPolicies = map[string]fieldPolicy{
	"title":       longerWins,
	"readable":    extractorWins,
	"description": longerWins,
	"author":      fillEmpty,
	"lang":        fillEmpty,
}

func mergeString(s Strategy, field, stored, extracted string) string {
	switch s {
	case MercuryPriority:
		if extracted != "" {
			return extracted
		}
		return stored
	case PreserveExisting:
		if stored != "" {
			return stored
		}
		return extracted
	default:
		switch smartPolicies[field] {
		case longerWins:
			if len(extracted) > len(stored) {
				return extracted
			}
			return stored
		case fillEmpty:
			if stored == "" {
				return extracted
			}
			return stored
		default: // extractorWins and unlisted fields
			if extracted != "" {
				return extracted
			}
			return stored
		}
	}
}

func mergeTime(s Strategy, stored, extracted *time.Time) *time.Time {
	switch s {
	case MercuryPriority:
		if extracted != nil {
			return extracted
		}
		return stored
	case PreserveExisting:
		if stored != nil {
			return stored
		}
		return extracted
	default:
		// Dates fill empty stored values only.
		if stored == nil {
			return extracted
		}
		return stored
	}
}

// Merge combines an extraction into an expression in place and reports
// whether any field changed.
func Merge(s Strategy, e *store.Expression, x Extraction) bool {
	before := *e

	e.Title = mergeString(s, "title", e.Title, x.Title)
	e.Readable = mergeString(s, "readable", e.Readable, x.Markdown)
	e.Description = mergeString(s, "description", e.Description, x.Excerpt)
	e.Author = mergeString(s, "author", e.Author, x.Author)
	e.Lang = mergeString(s, "lang", e.Lang, x.Lang)
	e.PublishedAt = mergeTime(s, e.PublishedAt, x.PublishedAt)

	return before.Title != e.Title ||
		before.Readable != e.Readable ||
		before.Description != e.Description ||
		before.Author != e.Author ||
		before.Lang != e.Lang ||
		!equalTime(before.PublishedAt, e.PublishedAt)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
