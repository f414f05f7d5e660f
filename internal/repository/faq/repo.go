// Package faq implements the relational FAQ store over Postgres with
// pgvector chunk search.
package faq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/coursedesk/faqsearch/internal/domain"
)

const entryColumns = "id, brand, tag, question, content, created_at, updated_at"

// Repo provides read and write access to the FAQ tables. Both partitions
// share one implementation; the partition picks the table.
type Repo struct {
	db *sql.DB
}

// New creates a FAQ repository over a shared connection pool.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// tableFor maps a partition to its table. Partitions are a closed enum, so
// the table name is never caller-controlled.
func tableFor(p domain.Partition) string {
	if p == domain.PartitionInternal {
		return "faq_internal"
	}
	return "faq"
}

// keywordPatterns builds the ILIKE patterns for a query: the full query
// first, then each whitespace token longer than one character.
func keywordPatterns(query string, tokens []string) []string {
	patterns := make([]string, 0, len(tokens)+1)
	patterns = append(patterns, "%"+query+"%")
	for _, tok := range tokens {
		patterns = append(patterns, "%"+tok+"%")
	}
	return patterns
}

// keywordWhere builds the WHERE clause matching question, content, or tag
// against each pattern. Placeholders start at $1.
func keywordWhere(patternCount int) string {
	conds := make([]string, 0, patternCount)
	for i := 1; i <= patternCount; i++ {
		conds = append(conds,
			fmt.Sprintf("(question ILIKE $%d OR content ILIKE $%d OR tag ILIKE $%d)", i, i, i))
	}
	return strings.Join(conds, " OR ")
}

// SearchKeyword returns entries of one partition whose question, content,
// or tag contains the query or any of its tokens, case-insensitively.
func (r *Repo) SearchKeyword(
	ctx context.Context, p domain.Partition, query string, tokens []string, limit int,
) ([]domain.Entry, error) {
	patterns := keywordPatterns(query, tokens)

	q := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY updated_at DESC LIMIT $%d",
		entryColumns, tableFor(p), keywordWhere(len(patterns)), len(patterns)+1,
	)

	args := make([]any, 0, len(patterns)+1)
	for _, pat := range patterns {
		args = append(args, pat)
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w", p, err)
	}
	defer rows.Close()

	return scanEntries(rows, p)
}

// GetByIDs bulk-fetches entries of one partition. Missing ids are simply
// absent from the result.
func (r *Repo) GetByIDs(ctx context.Context, p domain.Partition, ids []uuid.UUID) ([]domain.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ANY($1)", entryColumns, tableFor(p))

	rows, err := r.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get %s by ids: %w", p, err)
	}
	defer rows.Close()

	return scanEntries(rows, p)
}

// GetByID fetches a single entry.
func (r *Repo) GetByID(ctx context.Context, p domain.Partition, id uuid.UUID) (domain.Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", entryColumns, tableFor(p))

	e, err := scanEntry(r.db.QueryRowContext(ctx, q, id), p)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get %s entry: %w", p, err)
	}
	return e, nil
}

// GetByTag returns public entries exactly matching a category tag, newest
// first.
func (r *Repo) GetByTag(ctx context.Context, tag string, limit int) ([]domain.Entry, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM faq WHERE tag = $1 ORDER BY created_at DESC LIMIT $2",
		entryColumns,
	)

	rows, err := r.db.QueryContext(ctx, q, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("get by tag: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows, domain.PartitionPublic)
}

// CreateInternal inserts a new internal FAQ entry.
func (r *Repo) CreateInternal(ctx context.Context, brand, tag, question, content string) (domain.Entry, error) {
	q := fmt.Sprintf(
		"INSERT INTO faq_internal (brand, tag, question, content) VALUES ($1, $2, $3, $4) RETURNING %s",
		entryColumns,
	)

	e, err := scanEntry(r.db.QueryRowContext(ctx, q, brand, tag, question, content), domain.PartitionInternal)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("create internal entry: %w", err)
	}
	return e, nil
}

// UpdateInternal applies a partial update to an internal entry and bumps
// updated_at.
func (r *Repo) UpdateInternal(ctx context.Context, id uuid.UUID, patch domain.EntryPatch) (domain.Entry, error) {
	q := fmt.Sprintf(`UPDATE faq_internal SET
		brand = COALESCE($2, brand),
		tag = COALESCE($3, tag),
		question = COALESCE($4, question),
		content = COALESCE($5, content),
		updated_at = now()
	WHERE id = $1 RETURNING %s`, entryColumns)

	e, err := scanEntry(r.db.QueryRowContext(ctx, q,
		id, nullString(patch.Brand), nullString(patch.Tag),
		nullString(patch.Question), nullString(patch.Content),
	), domain.PartitionInternal)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("update internal entry: %w", err)
	}
	return e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable, p domain.Partition) (domain.Entry, error) {
	var e domain.Entry
	e.Partition = p
	err := row.Scan(&e.ID, &e.Brand, &e.Tag, &e.Question, &e.Content, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Entry{}, err
	}
	return e, nil
}

func scanEntries(rows *sql.Rows, p domain.Partition) ([]domain.Entry, error) {
	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows, p)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return entries, nil
}

// SearchChunks runs nearest-neighbor search over chunk embeddings by cosine
// distance. includeInternal widens the search to the internal partition.
func (r *Repo) SearchChunks(
	ctx context.Context, embedding []float32, pool int, includeInternal bool,
) ([]domain.ChunkHit, error) {
	vec := pgvector.NewVector(embedding)

	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, source_id, embedding <=> $1 AS distance
		FROM faq_chunks
		WHERE embedding IS NOT NULL AND ($2 OR kind = 'public')
		ORDER BY embedding <=> $1
		LIMIT $3`,
		vec, includeInternal, pool,
	)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	defer rows.Close()

	var hits []domain.ChunkHit
	for rows.Next() {
		var h domain.ChunkHit
		var kind string
		if err := rows.Scan(&kind, &h.SourceID, &h.Distance); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		h.Partition = domain.Partition(kind)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk rows: %w", err)
	}
	return hits, nil
}

// ReplaceChunks atomically replaces all chunks for one source entry: a full
// delete-then-reinsert inside one transaction, so no stale chunk survives a
// content edit.
func (r *Repo) ReplaceChunks(
	ctx context.Context, p domain.Partition, sourceID uuid.UUID,
	brand, tag string, chunks []domain.ChunkPayload,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM faq_chunks WHERE kind = $1 AND source_id = $2",
		string(p), sourceID,
	)
	if err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i, c := range chunks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO faq_chunks (kind, source_id, brand, tag, chunk_idx, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(p), sourceID, brand, tag, i, c.Content, pgvector.NewVector(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace chunks: %w", err)
	}
	return nil
}
