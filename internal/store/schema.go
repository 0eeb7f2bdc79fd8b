package store

import (
	"context"
	"fmt"
)

// Tables in drop order; creation runs in reverse.
var tableNames = []string{
	"tagged_content",
	"tag",
	"media",
	"expression_link",
	"expression",
	"land_dictionary",
	"word",
	"domain",
	"land",
}

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS land (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		lang VARCHAR(10) NOT NULL DEFAULT 'fr',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS domain (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		http_status VARCHAR(3),
		title TEXT,
		description TEXT,
		keywords TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		fetched_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS word (
		id BIGSERIAL PRIMARY KEY,
		term VARCHAR(100) NOT NULL UNIQUE,
		lemma VARCHAR(100) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS word_lemma_idx ON word (lemma)`,
	`CREATE TABLE IF NOT EXISTS land_dictionary (
		land_id BIGINT NOT NULL REFERENCES land (id) ON DELETE CASCADE,
		word_id BIGINT NOT NULL REFERENCES word (id) ON DELETE CASCADE,
		PRIMARY KEY (land_id, word_id)
	)`,
	`CREATE TABLE IF NOT EXISTS expression (
		id BIGSERIAL PRIMARY KEY,
		land_id BIGINT NOT NULL REFERENCES land (id) ON DELETE CASCADE,
		domain_id BIGINT NOT NULL REFERENCES domain (id),
		url TEXT NOT NULL UNIQUE,
		http_status VARCHAR(3),
		lang VARCHAR(10),
		title TEXT,
		description TEXT,
		keywords TEXT,
		author TEXT,
		readable TEXT,
		relevance INTEGER NOT NULL DEFAULT 0,
		depth INTEGER NOT NULL DEFAULT 0,
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		fetched_at TIMESTAMPTZ,
		approved_at TIMESTAMPTZ,
		readable_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS expression_land_idx ON expression (land_id)`,
	`CREATE INDEX IF NOT EXISTS expression_http_status_idx ON expression (http_status)`,
	`CREATE INDEX IF NOT EXISTS expression_fetched_at_idx ON expression (fetched_at)`,
	`CREATE INDEX IF NOT EXISTS expression_readable_at_idx ON expression (readable_at)`,
	`CREATE TABLE IF NOT EXISTS expression_link (
		source_id BIGINT NOT NULL REFERENCES expression (id) ON DELETE CASCADE,
		target_id BIGINT NOT NULL REFERENCES expression (id) ON DELETE CASCADE,
		PRIMARY KEY (source_id, target_id)
	)`,
	`CREATE TABLE IF NOT EXISTS media (
		id BIGSERIAL PRIMARY KEY,
		expression_id BIGINT NOT NULL REFERENCES expression (id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		kind VARCHAR(30) NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		file_size BIGINT NOT NULL DEFAULT 0,
		format TEXT,
		color_mode TEXT,
		aspect_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
		has_transparency BOOLEAN NOT NULL DEFAULT FALSE,
		dominant_colors JSONB,
		websafe_colors JSONB,
		exif JSONB,
		image_hash VARCHAR(64),
		content_tags JSONB,
		nsfw_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		analyzed_at TIMESTAMPTZ,
		analysis_error TEXT,
		UNIQUE (expression_id, url, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS tag (
		id BIGSERIAL PRIMARY KEY,
		land_id BIGINT NOT NULL REFERENCES land (id) ON DELETE CASCADE,
		parent_id BIGINT REFERENCES tag (id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		sorting INTEGER NOT NULL DEFAULT 0,
		color VARCHAR(7) NOT NULL DEFAULT '#000000'
	)`,
	`CREATE TABLE IF NOT EXISTS tagged_content (
		id BIGSERIAL PRIMARY KEY,
		tag_id BIGINT NOT NULL REFERENCES tag (id) ON DELETE CASCADE,
		expression_id BIGINT NOT NULL REFERENCES expression (id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		from_char INTEGER NOT NULL,
		to_char INTEGER NOT NULL
	)`,
}

// Setup drops and recreates the schema. Destructive; callers must
// confirm with the operator first.
func (s *Store) Setup(ctx context.Context) error {
	for _, name := range tableNames {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	for _, stmt := range createStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
