// Package store implements Postgres persistence for lands, expressions,
// links, media, words and domains.
package store

import "time"

// Land is a bounded research project: a name, a language, a weighted
// term dictionary and the expressions crawled under it.
type Land struct {
	ID          int64
	Name        string
	Description string
	Lang        string
	CreatedAt   time.Time
}

// LandSummary extends Land with the counters shown by `land list`.
type LandSummary struct {
	Land
	Terms            []string
	ExpressionCount  int64
	RemainingToCrawl int64
}

// Word is a global vocabulary entry: the surface term and its stem.
type Word struct {
	ID    int64
	Term  string
	Lemma string
}

// Domain caches per-host metadata fetched by the domain enricher.
type Domain struct {
	ID          int64
	Name        string
	HTTPStatus  string
	Title       string
	Description string
	Keywords    string
	CreatedAt   time.Time
	FetchedAt   *time.Time
}

// Expression is a single page URL belonging to exactly one Land.
type Expression struct {
	ID          int64
	LandID      int64
	DomainID    int64
	URL         string
	HTTPStatus  string
	Lang        string
	Title       string
	Description string
	Keywords    string
	Author      string
	Readable    string
	Relevance   int
	Depth       int
	PublishedAt *time.Time
	CreatedAt   time.Time
	FetchedAt   *time.Time
	ApprovedAt  *time.Time
	ReadableAt  *time.Time
}

// Media kinds recorded during discovery.
const (
	MediaKindImage = "img"
	MediaKindVideo = "video"
	MediaKindAudio = "audio"
)

// DominantColor is one entry of the ordered dominant-color palette.
type DominantColor struct {
	RGB        [3]int     `json:"rgb"`
	Hex        string     `json:"hex"`
	HSV        [3]float64 `json:"hsv"`
	Name       string     `json:"name"`
	Percentage float64    `json:"percentage"`
}

// Media is an image/video/audio reference discovered inside an
// Expression, together with the analyzer's measurements.
type Media struct {
	ID           int64
	ExpressionID int64
	URL          string
	Kind         string

	Width           int
	Height          int
	FileSize        int64
	Format          string
	ColorMode       string
	AspectRatio     float64
	HasTransparency bool
	DominantColors  []DominantColor
	WebsafeColors   map[string]float64
	EXIF            map[string]string
	ImageHash       string
	ContentTags     []string
	NSFWScore       float64
	AnalyzedAt      *time.Time
	AnalysisError   string
}

// MediaFilter selects media rows for analysis runs.
type MediaFilter struct {
	LandID       int64
	MaxDepth     int  // 0 means no depth bound
	MinRelevance int  // 0 means no relevance bound
	Reanalyze    bool // include rows already analyzed
	Kind         string
	Limit        int
}
