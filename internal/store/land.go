package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreateLand inserts a new land. Duplicate names yield ErrConflict.
func (s *Store) CreateLand(ctx context.Context, name, description, lang string) (Land, error) {
	if lang == "" {
		lang = "fr"
	}
	var land Land
	err := s.db.QueryRow(ctx,
		`INSERT INTO land (name, description, lang) VALUES ($1, $2, $3)
		 RETURNING id, name, description, lang, created_at`,
		name, description, lang,
	).Scan(&land.ID, &land.Name, &land.Description, &land.Lang, &land.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Land{}, fmt.Errorf("land %q: %w", name, ErrConflict)
		}
		return Land{}, fmt.Errorf("create land: %w", err)
	}
	return land, nil
}

// GetLand fetches a land by name.
func (s *Store) GetLand(ctx context.Context, name string) (Land, error) {
	var land Land
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, lang, created_at FROM land WHERE name = $1`,
		name,
	).Scan(&land.ID, &land.Name, &land.Description, &land.Lang, &land.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Land{}, fmt.Errorf("land %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Land{}, fmt.Errorf("get land: %w", err)
	}
	return land, nil
}

// ListLands returns every land with its dictionary terms and crawl counters,
// optionally filtered by name.
func (s *Store) ListLands(ctx context.Context, name string) ([]LandSummary, error) {
	query := `SELECT id, name, description, lang, created_at FROM land`
	args := []any{}
	if name != "" {
		query += ` WHERE name = $1`
		args = append(args, name)
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lands: %w", err)
	}
	defer rows.Close()

	var summaries []LandSummary
	for rows.Next() {
		var sum LandSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Description, &sum.Lang, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan land: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lands: %w", err)
	}

	for i := range summaries {
		if err := s.fillLandCounters(ctx, &summaries[i]); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func (s *Store) fillLandCounters(ctx context.Context, sum *LandSummary) error {
	terms, err := s.LandTerms(ctx, sum.ID)
	if err != nil {
		return err
	}
	sum.Terms = terms

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE fetched_at IS NULL)
		 FROM expression WHERE land_id = $1`,
		sum.ID,
	).Scan(&sum.ExpressionCount, &sum.RemainingToCrawl)
	if err != nil {
		return fmt.Errorf("count expressions: %w", err)
	}
	return nil
}

// DeleteLand removes a land; foreign keys cascade to expressions, links,
// media and tagged content. Words and domains survive.
func (s *Store) DeleteLand(ctx context.Context, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM land WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete land: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("land %q: %w", name, ErrNotFound)
	}
	return nil
}

// DeleteExpressionsBelowRelevance removes only the expressions of a land
// whose relevance is under the threshold; the land itself survives.
func (s *Store) DeleteExpressionsBelowRelevance(ctx context.Context, landID int64, maxRelevance float64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM expression WHERE land_id = $1 AND relevance < $2`,
		landID, maxRelevance,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expressions: %w", err)
	}
	return tag.RowsAffected(), nil
}
