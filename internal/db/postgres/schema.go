package postgres

import (
	"context"
	"fmt"
)

// chunkTableTemplate creates the chunk table. The embedding dimension is
// fixed at bootstrap and must match the configured embedding model.
const chunkTableTemplate = `CREATE TABLE IF NOT EXISTS faq_chunks (
	id         bigserial PRIMARY KEY,
	kind       varchar(16) NOT NULL CHECK (kind IN ('public', 'internal')),
	source_id  uuid NOT NULL,
	brand      varchar(100) NOT NULL DEFAULT '',
	tag        varchar(100) NOT NULL DEFAULT '',
	chunk_idx  integer NOT NULL,
	content    text NOT NULL,
	embedding  vector(%d),
	updated_at timestamptz NOT NULL DEFAULT now()
)`

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS faq (
		id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		brand      varchar(100) NOT NULL,
		tag        varchar(100) NOT NULL DEFAULT '',
		question   text NOT NULL,
		content    text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS faq_internal (
		id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
		brand      varchar(100) NOT NULL,
		tag        varchar(100) NOT NULL DEFAULT '',
		question   text NOT NULL,
		content    text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS faq_chunks_source_idx ON faq_chunks (kind, source_id)`,
	`CREATE INDEX IF NOT EXISTS faq_tag_idx ON faq (tag)`,
}

// EnsureSchema creates tables and indexes idempotently. embeddingDim sets
// the vector column dimension on first creation.
func (s *Store) EnsureSchema(ctx context.Context, embeddingDim int) error {
	stmts := make([]string, 0, len(schemaStatements)+1+len(indexStatements))
	stmts = append(stmts, schemaStatements...)
	stmts = append(stmts, fmt.Sprintf(chunkTableTemplate, embeddingDim))
	stmts = append(stmts, indexStatements...)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
