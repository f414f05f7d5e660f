package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/coursedesk/faqsearch/internal/domain"
)

// Repository defines the storage contract for retrieval operations.
type Repository interface {
	SearchKeyword(
		ctx context.Context, p domain.Partition,
		query string, tokens []string, limit int,
	) ([]domain.Entry, error)

	GetByIDs(ctx context.Context, p domain.Partition, ids []uuid.UUID) ([]domain.Entry, error)

	GetByTag(ctx context.Context, tag string, limit int) ([]domain.Entry, error)

	SearchChunks(
		ctx context.Context, embedding []float32, pool int, includeInternal bool,
	) ([]domain.ChunkHit, error)
}

// Embedder vectorizes query text. A nil Embedder disables the vector path.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
