package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const domainColumns = `id, name, COALESCE(http_status, ''), COALESCE(title, ''),
	COALESCE(description, ''), COALESCE(keywords, ''), created_at, fetched_at`

func scanDomain(row pgx.Row) (Domain, error) {
	var d Domain
	err := row.Scan(&d.ID, &d.Name, &d.HTTPStatus, &d.Title, &d.Description,
		&d.Keywords, &d.CreatedAt, &d.FetchedAt)
	return d, err
}

// GetOrCreateDomain returns the domain row for a host, creating it when
// absent. A concurrent insert settles on re-select.
func (s *Store) GetOrCreateDomain(ctx context.Context, host string) (Domain, error) {
	d, err := scanDomain(s.db.QueryRow(ctx,
		`INSERT INTO domain (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING `+domainColumns,
		host,
	))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Domain{}, fmt.Errorf("insert domain: %w", err)
	}
	d, err = scanDomain(s.db.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM domain WHERE name = $1`, host,
	))
	if err != nil {
		return Domain{}, fmt.Errorf("reselect domain: %w", err)
	}
	return d, nil
}

// SaveDomain persists the mutable fields of a domain row.
func (s *Store) SaveDomain(ctx context.Context, d Domain) error {
	_, err := s.db.Exec(ctx,
		`UPDATE domain SET name = $2, http_status = NULLIF($3, ''), title = NULLIF($4, ''),
		 description = NULLIF($5, ''), keywords = NULLIF($6, ''), fetched_at = $7
		 WHERE id = $1`,
		d.ID, d.Name, d.HTTPStatus, d.Title, d.Description, d.Keywords, d.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("save domain: %w", err)
	}
	return nil
}

// ListDomainsToCrawl selects domains for the enricher: unfetched ones by
// default, or those matching an HTTP status filter for re-runs.
func (s *Store) ListDomainsToCrawl(ctx context.Context, limit int, httpFilter string) ([]Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domain WHERE fetched_at IS NULL`
	args := []any{}
	if httpFilter != "" {
		query = `SELECT ` + domainColumns + ` FROM domain WHERE http_status = $1`
		args = append(args, httpFilter)
	}
	query += ` ORDER BY id`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}

// RekeyExpressionDomain points an expression at a (possibly new) canonical
// host, used by the heuristics pass.
func (s *Store) RekeyExpressionDomain(ctx context.Context, expressionID int64, host string) error {
	d, err := s.GetOrCreateDomain(ctx, host)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE expression SET domain_id = $2 WHERE id = $1`,
		expressionID, d.ID,
	)
	if err != nil {
		return fmt.Errorf("rekey expression domain: %w", err)
	}
	return nil
}

// DomainNameByID resolves a domain id to its host name.
func (s *Store) DomainNameByID(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `SELECT name FROM domain WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("domain %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("domain name: %w", err)
	}
	return name, nil
}
