package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/domain"
	"github.com/coursedesk/faqsearch/internal/logger"
)

// Repository defines the storage contract for FAQ authoring and chunk
// reindexing.
type Repository interface {
	GetByID(ctx context.Context, p domain.Partition, id uuid.UUID) (domain.Entry, error)
	CreateInternal(ctx context.Context, brand, tag, question, content string) (domain.Entry, error)
	UpdateInternal(ctx context.Context, id uuid.UUID, patch domain.EntryPatch) (domain.Entry, error)
	ReplaceChunks(
		ctx context.Context, p domain.Partition, sourceID uuid.UUID,
		brand, tag string, chunks []domain.ChunkPayload,
	) error
}

// Service handles internal FAQ authoring and chunk reindexing. Writes go
// through here so every content change triggers a full chunk rebuild for
// the touched entry.
type Service struct {
	repo  Repository
	embed domain.BatchEmbedder
}

// New creates an ingest service. A nil embedder disables reindexing;
// authoring still works, entries just stay keyword-only until chunks are
// built out of band.
func New(repo Repository, embed domain.BatchEmbedder) *Service {
	return &Service{repo: repo, embed: embed}
}

// CreateRequest holds a new internal FAQ entry.
type CreateRequest struct {
	Brand    string
	Tag      string
	Question string
	Content  string
}

// Validate checks required fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("%w: question is required", domain.ErrEmptyQuery)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content is required", domain.ErrEmptyQuery)
	}
	return nil
}

// CreateInternal stores a new internal entry and reindexes its chunks.
// A reindex failure does not roll the entry back; it is logged and the
// entry stays searchable by keyword until the next reindex.
func (s *Service) CreateInternal(ctx context.Context, req CreateRequest) (domain.Entry, error) {
	if err := req.Validate(); err != nil {
		return domain.Entry{}, err
	}

	entry, err := s.repo.CreateInternal(ctx, req.Brand, req.Tag, req.Question, req.Content)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("create internal entry: %w", err)
	}

	s.reindexBestEffort(ctx, entry)
	return entry, nil
}

// UpdateInternal patches an internal entry and reindexes its chunks when
// the searchable text changed.
func (s *Service) UpdateInternal(
	ctx context.Context, id uuid.UUID, patch domain.EntryPatch,
) (domain.Entry, error) {
	entry, err := s.repo.UpdateInternal(ctx, id, patch)
	if err != nil {
		return domain.Entry{}, err
	}

	if patch.Question != nil || patch.Content != nil {
		s.reindexBestEffort(ctx, entry)
	}
	return entry, nil
}

// Reindex rebuilds the chunk set for one entry: fetch, chunk the combined
// question and answer text, embed every chunk in one batch call, then
// atomically replace the stored chunks.
func (s *Service) Reindex(ctx context.Context, p domain.Partition, id uuid.UUID) error {
	if s.embed == nil {
		return fmt.Errorf("reindex %s/%s: %w", p, id, domain.ErrEmbeddingUnavailable)
	}

	entry, err := s.repo.GetByID(ctx, p, id)
	if err != nil {
		return fmt.Errorf("reindex %s/%s: %w", p, id, err)
	}

	pieces := splitChunks(entry.Question + "\n" + entry.Content)
	if len(pieces) == 0 {
		// Entry text too short to chunk; clear any stale chunks.
		return s.repo.ReplaceChunks(ctx, p, id, entry.Brand, entry.Tag, nil)
	}

	batch, err := s.embed.BatchEmbed(ctx, pieces)
	if err != nil {
		return fmt.Errorf("embed chunks for %s/%s: %w", p, id, err)
	}

	chunks := make([]domain.ChunkPayload, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.ChunkPayload{Content: piece, Embedding: batch.Embeddings[i]}
	}

	if err := s.repo.ReplaceChunks(ctx, p, id, entry.Brand, entry.Tag, chunks); err != nil {
		return fmt.Errorf("replace chunks for %s/%s: %w", p, id, err)
	}
	return nil
}

func (s *Service) reindexBestEffort(ctx context.Context, entry domain.Entry) {
	if s.embed == nil {
		return
	}
	if err := s.Reindex(ctx, entry.Partition, entry.ID); err != nil {
		logger.FromContext(ctx).Warn("chunk reindex failed, entry stays keyword-only",
			zap.String("partition", string(entry.Partition)),
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err))
	}
}
