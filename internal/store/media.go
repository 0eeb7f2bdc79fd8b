package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const mediaColumns = `id, expression_id, url, kind, width, height, file_size,
	COALESCE(format, ''), COALESCE(color_mode, ''), aspect_ratio, has_transparency,
	dominant_colors, websafe_colors, exif, COALESCE(image_hash, ''), content_tags,
	nsfw_score, analyzed_at, COALESCE(analysis_error, '')`

const mediaColumnsJoined = `m.id, m.expression_id, m.url, m.kind, m.width, m.height,
	m.file_size, COALESCE(m.format, ''), COALESCE(m.color_mode, ''), m.aspect_ratio,
	m.has_transparency, m.dominant_colors, m.websafe_colors, m.exif,
	COALESCE(m.image_hash, ''), m.content_tags, m.nsfw_score, m.analyzed_at,
	COALESCE(m.analysis_error, '')`

func scanMedia(row pgx.Row) (Media, error) {
	var m Media
	var dominant, websafe, exif, tags []byte
	err := row.Scan(&m.ID, &m.ExpressionID, &m.URL, &m.Kind, &m.Width, &m.Height,
		&m.FileSize, &m.Format, &m.ColorMode, &m.AspectRatio, &m.HasTransparency,
		&dominant, &websafe, &exif, &m.ImageHash, &tags, &m.NSFWScore,
		&m.AnalyzedAt, &m.AnalysisError)
	if err != nil {
		return Media{}, err
	}
	if len(dominant) > 0 {
		if err := json.Unmarshal(dominant, &m.DominantColors); err != nil {
			return Media{}, fmt.Errorf("decode dominant colors: %w", err)
		}
	}
	if len(websafe) > 0 {
		if err := json.Unmarshal(websafe, &m.WebsafeColors); err != nil {
			return Media{}, fmt.Errorf("decode websafe colors: %w", err)
		}
	}
	if len(exif) > 0 {
		if err := json.Unmarshal(exif, &m.EXIF); err != nil {
			return Media{}, fmt.Errorf("decode exif: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.ContentTags); err != nil {
			return Media{}, fmt.Errorf("decode content tags: %w", err)
		}
	}
	return m, nil
}

func marshalNullable(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

// UpsertMedia records a media reference keyed on (expression, url, kind).
func (s *Store) UpsertMedia(ctx context.Context, expressionID int64, url, kind string) (Media, error) {
	m, err := scanMedia(s.db.QueryRow(ctx,
		`INSERT INTO media (expression_id, url, kind) VALUES ($1, $2, $3)
		 ON CONFLICT (expression_id, url, kind) DO NOTHING
		 RETURNING `+mediaColumns,
		expressionID, url, kind,
	))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Media{}, fmt.Errorf("insert media: %w", err)
	}
	m, err = scanMedia(s.db.QueryRow(ctx,
		`SELECT `+mediaColumns+` FROM media
		 WHERE expression_id = $1 AND url = $2 AND kind = $3`,
		expressionID, url, kind,
	))
	if err != nil {
		return Media{}, fmt.Errorf("reselect media: %w", err)
	}
	return m, nil
}

// SaveMedia persists the analyzer's measurements for a media row.
func (s *Store) SaveMedia(ctx context.Context, m Media) error {
	dominant, err := marshalNullable(m.DominantColors, len(m.DominantColors) == 0)
	if err != nil {
		return fmt.Errorf("encode dominant colors: %w", err)
	}
	websafe, err := marshalNullable(m.WebsafeColors, len(m.WebsafeColors) == 0)
	if err != nil {
		return fmt.Errorf("encode websafe colors: %w", err)
	}
	exif, err := marshalNullable(m.EXIF, len(m.EXIF) == 0)
	if err != nil {
		return fmt.Errorf("encode exif: %w", err)
	}
	tags, err := marshalNullable(m.ContentTags, len(m.ContentTags) == 0)
	if err != nil {
		return fmt.Errorf("encode content tags: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE media SET
			width = $2, height = $3, file_size = $4,
			format = NULLIF($5, ''), color_mode = NULLIF($6, ''),
			aspect_ratio = $7, has_transparency = $8,
			dominant_colors = $9, websafe_colors = $10, exif = $11,
			image_hash = NULLIF($12, ''), content_tags = $13,
			nsfw_score = $14, analyzed_at = $15, analysis_error = NULLIF($16, '')
		 WHERE id = $1`,
		m.ID, m.Width, m.Height, m.FileSize, m.Format, m.ColorMode,
		m.AspectRatio, m.HasTransparency, dominant, websafe, exif,
		m.ImageHash, tags, m.NSFWScore, m.AnalyzedAt, m.AnalysisError,
	)
	if err != nil {
		return fmt.Errorf("save media: %w", err)
	}
	return nil
}

// ListMediaForAnalysis selects media rows whose owning expression passes
// the depth/relevance filter. Only images are analyzed.
func (s *Store) ListMediaForAnalysis(ctx context.Context, f MediaFilter) ([]Media, error) {
	where := `e.land_id = $1 AND m.kind = $2`
	kind := f.Kind
	if kind == "" {
		kind = MediaKindImage
	}
	args := []any{f.LandID, kind}
	if f.MaxDepth > 0 {
		where += fmt.Sprintf(" AND e.depth <= $%d", len(args)+1)
		args = append(args, f.MaxDepth)
	}
	if f.MinRelevance > 0 {
		where += fmt.Sprintf(" AND e.relevance >= $%d", len(args)+1)
		args = append(args, f.MinRelevance)
	}
	if !f.Reanalyze {
		where += " AND m.analyzed_at IS NULL"
	}
	query := `SELECT ` + mediaColumnsJoined + ` FROM media m
		 JOIN expression e ON e.id = m.expression_id
		 WHERE ` + where + ` ORDER BY m.id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return out, nil
}

// DeleteMedia removes media rows by id; used by reanalysis threshold
// enforcement after operator confirmation.
func (s *Store) DeleteMedia(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM media WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete media: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteMediaForExpression clears all media of an expression before the
// refiner re-harvests them.
func (s *Store) DeleteMediaForExpression(ctx context.Context, expressionID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM media WHERE expression_id = $1`, expressionID)
	if err != nil {
		return fmt.Errorf("delete expression media: %w", err)
	}
	return nil
}
