package retrieval

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursedesk/faqsearch/internal/domain"
	"github.com/coursedesk/faqsearch/internal/logger"
	"github.com/coursedesk/faqsearch/internal/metrics"
)

// searchVector finds the FAQ entries whose chunks are nearest to the query
// embedding. Any failure along the way degrades to an empty result; vector
// search is an enhancement, never a hard dependency.
func (s *Service) searchVector(
	ctx context.Context, embedding []float32, includeInternal bool, limit int,
) []domain.Candidate {
	if len(embedding) == 0 {
		return nil
	}

	pool := limit * s.cfg.ChunkPoolMultiplier

	hits, err := s.repo.SearchChunks(ctx, embedding, pool, includeInternal)
	if err != nil {
		logger.FromContext(ctx).Warn("chunk search failed, falling back to keyword",
			zap.Error(err))
		metrics.RetrievalFallbacksTotal.Inc()
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	// Hits arrive sorted by distance, so the first hit per source is that
	// source's best-matching chunk. Keep winners in distance order.
	winners := make([]domain.ChunkHit, 0, len(hits))
	seen := make(map[domain.SourceKey]struct{}, len(hits))
	for _, h := range hits {
		key := domain.SourceKey{Partition: h.Partition, ID: h.SourceID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		winners = append(winners, h)
	}

	entries, err := s.fetchWinners(ctx, winners)
	if err != nil {
		logger.FromContext(ctx).Warn("entry fetch after chunk search failed, falling back to keyword",
			zap.Error(err))
		metrics.RetrievalFallbacksTotal.Inc()
		return nil
	}

	// A chunk can outlive its source entry between reindex runs; skip
	// winners whose entry is gone.
	candidates := make([]domain.Candidate, 0, len(winners))
	for _, w := range winners {
		entry, ok := entries[domain.SourceKey{Partition: w.Partition, ID: w.SourceID}]
		if !ok {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Entry:    entry,
			Score:    s.cfg.Policy.scoreDistance(w.Distance),
			Strategy: domain.StrategyVector,
		})
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// fetchWinners bulk-loads the full entries behind winning chunk hits, one
// concurrent lookup per partition.
func (s *Service) fetchWinners(
	ctx context.Context, winners []domain.ChunkHit,
) (map[domain.SourceKey]domain.Entry, error) {
	byPartition := make(map[domain.Partition][]uuid.UUID)
	for _, w := range winners {
		byPartition[w.Partition] = append(byPartition[w.Partition], w.SourceID)
	}

	var mu sync.Mutex
	entries := make(map[domain.SourceKey]domain.Entry, len(winners))

	g, gctx := errgroup.WithContext(ctx)
	for p, ids := range byPartition {
		p, ids := p, ids
		g.Go(func() error {
			fetched, err := s.repo.GetByIDs(gctx, p, ids)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, e := range fetched {
				entries[e.Key()] = e
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
