package readable

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// MercuryExtractor shells out to a Mercury-parser-compatible CLI. The
// binary must accept a URL and print one JSON object on stdout.
type MercuryExtractor struct {
	path string
}

// NewMercury builds the CLI extractor; path is the binary location.
func NewMercury(path string) *MercuryExtractor {
	return &MercuryExtractor{path: path}
}

type mercuryOutput struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Excerpt       string   `json:"excerpt"`
	Author        string   `json:"author"`
	DatePublished string   `json:"date_published"`
	Direction     string   `json:"direction"`
	Language      string   `json:"language"`
	LeadImageURL  string   `json:"lead_image_url"`
	Images        []string `json:"images"`
	Links         []string `json:"links"`
	Error         bool     `json:"error"`
	Message       string   `json:"message"`
}

func (m *MercuryExtractor) Extract(ctx context.Context, url string) (Extraction, error) {
	cmd := exec.CommandContext(ctx, m.path, url,
		"--format=markdown", "--extract-media", "--extract-links")
	out, err := cmd.Output()
	if err != nil {
		return Extraction{}, fmt.Errorf("run extractor: %w", err)
	}

	var decoded mercuryOutput
	if err := json.Unmarshal(out, &decoded); err != nil {
		return Extraction{}, fmt.Errorf("decode extractor output: %w", err)
	}
	if decoded.Error {
		return Extraction{}, fmt.Errorf("extractor failed: %s", decoded.Message)
	}

	x := Extraction{
		Title:     strings.TrimSpace(decoded.Title),
		Markdown:  strings.TrimSpace(decoded.Content),
		Excerpt:   strings.TrimSpace(decoded.Excerpt),
		Author:    strings.TrimSpace(decoded.Author),
		Lang:      normalizeLang(decoded.Language, decoded.Direction),
		LeadImage: decoded.LeadImageURL,
		Images:    decoded.Images,
		Links:     decoded.Links,
	}
	if ts := parseDate(decoded.DatePublished); ts != nil {
		x.PublishedAt = ts
	}
	return x, nil
}

// normalizeLang drops writing-direction values reported in place of a
// language code.
func normalizeLang(lang, direction string) string {
	lang = strings.TrimSpace(lang)
	switch strings.ToLower(lang) {
	case "", "ltr", "rtl":
		_ = direction
		return ""
	}
	return lang
}

func parseDate(raw string) *time.Time {
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
