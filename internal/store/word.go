package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AddWordIfAbsent inserts a vocabulary entry or returns the existing row
// for the same term. Concurrent inserts settle on re-select.
func (s *Store) AddWordIfAbsent(ctx context.Context, term, lemma string) (Word, error) {
	var word Word
	err := s.db.QueryRow(ctx,
		`INSERT INTO word (term, lemma) VALUES ($1, $2)
		 ON CONFLICT (term) DO NOTHING
		 RETURNING id, term, lemma`,
		term, lemma,
	).Scan(&word.ID, &word.Term, &word.Lemma)
	if err == nil {
		return word, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Word{}, fmt.Errorf("insert word: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT id, term, lemma FROM word WHERE term = $1`, term,
	).Scan(&word.ID, &word.Term, &word.Lemma)
	if err != nil {
		return Word{}, fmt.Errorf("reselect word: %w", err)
	}
	return word, nil
}

// LinkLandWord attaches a word to a land dictionary, idempotently.
func (s *Store) LinkLandWord(ctx context.Context, landID, wordID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO land_dictionary (land_id, word_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		landID, wordID,
	)
	if err != nil {
		return fmt.Errorf("link land word: %w", err)
	}
	return nil
}

// LandLemmas returns the distinct stemmed dictionary of a land.
func (s *Store) LandLemmas(ctx context.Context, landID int64) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT w.lemma FROM word w
		 JOIN land_dictionary ld ON ld.word_id = w.id
		 WHERE ld.land_id = $1 ORDER BY w.lemma`,
		landID,
	)
	if err != nil {
		return nil, fmt.Errorf("land lemmas: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// LandTerms returns the surface terms of a land dictionary.
func (s *Store) LandTerms(ctx context.Context, landID int64) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT w.term FROM word w
		 JOIN land_dictionary ld ON ld.word_id = w.id
		 WHERE ld.land_id = $1 ORDER BY w.term`,
		landID,
	)
	if err != nil {
		return nil, fmt.Errorf("land terms: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan string: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strings: %w", err)
	}
	return out, nil
}
