package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursedesk/faqsearch/internal/domain"
	"github.com/coursedesk/faqsearch/internal/logger"
	"github.com/coursedesk/faqsearch/internal/metrics"
)

// searchKeyword queries the public partition, and optionally the internal
// partition, for substring matches. The two partition reads are independent
// and run concurrently. An internal-partition failure degrades to
// public-only results; a public-partition failure is a real error.
func (s *Service) searchKeyword(
	ctx context.Context, query string, includeInternal bool, limit int,
) ([]domain.Candidate, error) {
	tokens := tokenize(query)

	var public, internal []domain.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.repo.SearchKeyword(
			gctx, domain.PartitionPublic, query, tokens, s.cfg.KeywordRowsPerPartition,
		)
		if err != nil {
			return fmt.Errorf("public keyword search: %w", err)
		}
		public = entries
		return nil
	})
	if includeInternal {
		g.Go(func() error {
			entries, err := s.repo.SearchKeyword(
				gctx, domain.PartitionInternal, query, tokens, s.cfg.KeywordRowsPerPartition,
			)
			if err != nil {
				logger.FromContext(ctx).Warn("internal keyword search failed, continuing public-only",
					zap.Error(err))
				metrics.RetrievalFallbacksTotal.Inc()
				return nil
			}
			internal = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	loweredQuery := strings.ToLower(strings.TrimSpace(query))

	candidates := make([]domain.Candidate, 0, len(public)+len(internal))
	for _, e := range append(public, internal...) {
		candidates = append(candidates, domain.Candidate{
			Entry:    e,
			Score:    s.cfg.Policy.scoreKeyword(e, loweredQuery, tokens),
			Strategy: domain.StrategyKeyword,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
