package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const expressionColumns = `id, land_id, domain_id, url, COALESCE(http_status, ''),
	COALESCE(lang, ''), COALESCE(title, ''), COALESCE(description, ''),
	COALESCE(keywords, ''), COALESCE(author, ''), COALESCE(readable, ''),
	relevance, depth, published_at, created_at, fetched_at, approved_at, readable_at`

func scanExpression(row pgx.Row) (Expression, error) {
	var e Expression
	err := row.Scan(&e.ID, &e.LandID, &e.DomainID, &e.URL, &e.HTTPStatus,
		&e.Lang, &e.Title, &e.Description, &e.Keywords, &e.Author, &e.Readable,
		&e.Relevance, &e.Depth, &e.PublishedAt, &e.CreatedAt,
		&e.FetchedAt, &e.ApprovedAt, &e.ReadableAt)
	return e, err
}

// UpsertExpression records a URL in a land at the given depth. An
// existing row is returned as-is except that a shallower discovery
// lowers its depth; a deeper one never raises it. The second return
// reports whether a new row was created.
func (s *Store) UpsertExpression(ctx context.Context, landID, domainID int64, url string, depth int) (Expression, bool, error) {
	e, err := scanExpression(s.db.QueryRow(ctx,
		`INSERT INTO expression (land_id, domain_id, url, depth) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING `+expressionColumns,
		landID, domainID, url, depth,
	))
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Expression{}, false, fmt.Errorf("insert expression: %w", err)
	}

	e, err = s.GetExpressionByURL(ctx, url)
	if err != nil {
		return Expression{}, false, err
	}
	if depth < e.Depth {
		if _, err := s.db.Exec(ctx,
			`UPDATE expression SET depth = $2 WHERE id = $1 AND depth > $2`,
			e.ID, depth,
		); err != nil {
			return Expression{}, false, fmt.Errorf("lower expression depth: %w", err)
		}
		e.Depth = depth
	}
	return e, false, nil
}

// GetExpressionByURL fetches an expression by its canonical URL.
func (s *Store) GetExpressionByURL(ctx context.Context, url string) (Expression, error) {
	e, err := scanExpression(s.db.QueryRow(ctx,
		`SELECT `+expressionColumns+` FROM expression WHERE url = $1`, url,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expression{}, fmt.Errorf("expression %q: %w", url, ErrNotFound)
	}
	if err != nil {
		return Expression{}, fmt.Errorf("get expression: %w", err)
	}
	return e, nil
}

// GetExpression fetches an expression by id.
func (s *Store) GetExpression(ctx context.Context, id int64) (Expression, error) {
	e, err := scanExpression(s.db.QueryRow(ctx,
		`SELECT `+expressionColumns+` FROM expression WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expression{}, fmt.Errorf("expression %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Expression{}, fmt.Errorf("get expression: %w", err)
	}
	return e, nil
}

// SaveExpression persists all mutable fields of an expression in one
// statement, so a killed run leaves only whole-row updates behind.
func (s *Store) SaveExpression(ctx context.Context, e Expression) error {
	_, err := s.db.Exec(ctx,
		`UPDATE expression SET
			http_status = NULLIF($2, ''),
			lang = NULLIF($3, ''),
			title = NULLIF($4, ''),
			description = NULLIF($5, ''),
			keywords = NULLIF($6, ''),
			author = NULLIF($7, ''),
			readable = NULLIF($8, ''),
			relevance = $9,
			depth = $10,
			published_at = $11,
			fetched_at = $12,
			approved_at = $13,
			readable_at = $14
		 WHERE id = $1`,
		e.ID, e.HTTPStatus, e.Lang, e.Title, e.Description, e.Keywords,
		e.Author, e.Readable, e.Relevance, e.Depth, e.PublishedAt,
		e.FetchedAt, e.ApprovedAt, e.ReadableAt,
	)
	if err != nil {
		return fmt.Errorf("save expression: %w", err)
	}
	return nil
}

// ExpressionQuery filters batch selections for the crawl, readable and
// consolidation passes.
type ExpressionQuery struct {
	LandID     int64
	Limit      int
	HTTPFilter string
	MaxDepth   *int
}

func (q ExpressionQuery) clauses(where string) (string, []any) {
	args := []any{q.LandID}
	if q.HTTPFilter != "" {
		where += fmt.Sprintf(" AND http_status = $%d", len(args)+1)
		args = append(args, q.HTTPFilter)
	}
	if q.MaxDepth != nil {
		where += fmt.Sprintf(" AND depth <= $%d", len(args)+1)
		args = append(args, *q.MaxDepth)
	}
	where += " ORDER BY depth, id"
	if q.Limit > 0 {
		where += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return where, args
}

func (s *Store) listExpressions(ctx context.Context, where string, args []any) ([]Expression, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+expressionColumns+` FROM expression WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list expressions: %w", err)
	}
	defer rows.Close()

	var out []Expression
	for rows.Next() {
		e, err := scanExpression(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expression: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expressions: %w", err)
	}
	return out, nil
}

// ListExpressionsToCrawl selects unfetched expressions, or previously
// failed ones when an HTTP status filter is given.
func (s *Store) ListExpressionsToCrawl(ctx context.Context, q ExpressionQuery) ([]Expression, error) {
	where := "land_id = $1 AND fetched_at IS NULL"
	if q.HTTPFilter != "" {
		where = "land_id = $1"
	}
	where, args := q.clauses(where)
	return s.listExpressions(ctx, where, args)
}

// ListExpressionsForReadable selects fetched expressions the refiner has
// not yet visited.
func (s *Store) ListExpressionsForReadable(ctx context.Context, q ExpressionQuery) ([]Expression, error) {
	where, args := q.clauses("land_id = $1 AND fetched_at IS NOT NULL AND readable_at IS NULL")
	return s.listExpressions(ctx, where, args)
}

// ListExpressionsForConsolidation selects every fetched expression.
func (s *Store) ListExpressionsForConsolidation(ctx context.Context, q ExpressionQuery) ([]Expression, error) {
	where, args := q.clauses("land_id = $1 AND fetched_at IS NOT NULL")
	return s.listExpressions(ctx, where, args)
}

// ListExpressionsWithReadable selects expressions carrying a readable
// body; used by the bulk re-score after addterm.
func (s *Store) ListExpressionsWithReadable(ctx context.Context, landID int64) ([]Expression, error) {
	return s.listExpressions(ctx,
		"land_id = $1 AND readable IS NOT NULL ORDER BY id", []any{landID})
}

// ListAllExpressions streams id, url and domain for the heuristics pass.
func (s *Store) ListAllExpressions(ctx context.Context) ([]Expression, error) {
	rows, err := s.db.Query(ctx, `SELECT id, land_id, domain_id, url, depth FROM expression ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all expressions: %w", err)
	}
	defer rows.Close()

	var out []Expression
	for rows.Next() {
		var e Expression
		if err := rows.Scan(&e.ID, &e.LandID, &e.DomainID, &e.URL, &e.Depth); err != nil {
			return nil, fmt.Errorf("scan expression: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expressions: %w", err)
	}
	return out, nil
}

// AddLink records a directed edge between two expressions, idempotently.
func (s *Store) AddLink(ctx context.Context, sourceID, targetID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO expression_link (source_id, target_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		sourceID, targetID,
	)
	if err != nil {
		return fmt.Errorf("add link: %w", err)
	}
	return nil
}

// DeleteLinksFrom removes all outbound edges of an expression. The
// refiner calls it only when the extractor supplied a replacement set.
func (s *Store) DeleteLinksFrom(ctx context.Context, sourceID int64) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM expression_link WHERE source_id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	return nil
}

// OutboundLinkCount reports the number of outbound edges of an expression.
func (s *Store) OutboundLinkCount(ctx context.Context, sourceID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM expression_link WHERE source_id = $1`, sourceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}
