package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/domain"
	"github.com/coursedesk/faqsearch/internal/logger"
	"github.com/coursedesk/faqsearch/internal/metrics"
)

// Config holds retrieval limits and the scoring policy.
type Config struct {
	Policy                  Policy
	DefaultLimit            int
	KeywordRowsPerPartition int
	ChunkPoolMultiplier     int
	DirectSearchLimit       int
	TagBrowseLimit          int
	Timeout                 time.Duration
}

// Service runs hybrid FAQ retrieval: vector search first when available,
// keyword search as a recall supplement, merged into one ranked list.
type Service struct {
	repo  Repository
	embed Embedder
	cfg   Config
}

// New creates a retrieval service. A nil embedder disables the vector path
// for every call.
func New(repo Repository, embed Embedder, cfg Config) *Service {
	return &Service{repo: repo, embed: embed, cfg: cfg}
}

// Retrieve runs one hybrid retrieval call. useVector toggles the vector
// path per call; limit <= 0 falls back to the configured default. The
// returned set carries a method label naming which strategies contributed.
//
// Degradation contract: embedding or vector-store failures fall back to
// keyword search silently. Only an empty query, an empty merged result, or
// an unreachable store surface as errors.
func (s *Service) Retrieve(
	ctx context.Context, query string, useVector bool, limit int,
) (domain.RankedSet, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		metrics.RetrievalsTotal.WithLabelValues(string(domain.MethodError)).Inc()
		return domain.RankedSet{Method: domain.MethodError}, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var vecResults []domain.Candidate
	if useVector && s.embed != nil {
		vecResults = s.retrieveVector(ctx, query, limit)
	}

	var kwResults []domain.Candidate
	if len(vecResults) < limit {
		var err error
		kwResults, err = s.searchKeyword(ctx, query, true, limit)
		if err != nil {
			if len(vecResults) == 0 {
				metrics.RetrievalsTotal.WithLabelValues(string(domain.MethodError)).Inc()
				return domain.RankedSet{Method: domain.MethodError},
					fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
			}
			// Vector already produced something; serve that rather than fail.
			logger.FromContext(ctx).Warn("keyword supplement failed, serving vector-only results",
				zap.Error(err))
			metrics.RetrievalFallbacksTotal.Inc()
		}
	}

	set := merge(vecResults, kwResults, limit)

	metrics.RetrievalsTotal.WithLabelValues(string(set.Method)).Inc()
	metrics.RetrievalDuration.WithLabelValues(string(set.Method)).Observe(time.Since(start).Seconds())

	if len(set.Candidates) == 0 {
		return set, domain.ErrNoResults
	}
	return set, nil
}

// retrieveVector embeds the query and runs the vector path. Returns nil on
// any failure; the caller supplements with keyword search.
func (s *Service) retrieveVector(ctx context.Context, query string, limit int) []domain.Candidate {
	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Warn("query embedding failed, falling back to keyword",
			zap.Error(err))
		metrics.RetrievalFallbacksTotal.Inc()
		return nil
	}
	return s.searchVector(ctx, emb.Embedding, true, limit)
}

// merge combines vector and keyword candidates into one deduplicated,
// score-ordered list. Vector candidates are preferred on identity
// collisions: the entry keeps the vector copy, takes the higher of the two
// scores, and is marked as found by both strategies. The merged list is
// re-sorted so a late keyword hit with a higher score still ranks above
// earlier vector hits.
func merge(vecResults, kwResults []domain.Candidate, limit int) domain.RankedSet {
	merged := make([]domain.Candidate, 0, len(vecResults)+len(kwResults))
	index := make(map[domain.SourceKey]int, len(vecResults)+len(kwResults))

	var vectorUsed, keywordUsed bool

	for _, c := range vecResults {
		index[c.Entry.Key()] = len(merged)
		merged = append(merged, c)
		vectorUsed = true
	}
	for _, c := range kwResults {
		if i, ok := index[c.Entry.Key()]; ok {
			if c.Score > merged[i].Score {
				merged[i].Score = c.Score
			}
			merged[i].Strategy = domain.StrategyBoth
			continue
		}
		index[c.Entry.Key()] = len(merged)
		merged = append(merged, c)
		keywordUsed = true
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	method := domain.MethodNone
	switch {
	case vectorUsed && keywordUsed:
		method = domain.MethodHybrid
	case vectorUsed:
		method = domain.MethodVector
	case keywordUsed:
		method = domain.MethodKeyword
	}

	return domain.RankedSet{Candidates: merged, Method: method}
}

// SearchPublic serves the unauthenticated help-center search endpoint:
// keyword-only over the public partition, scores included in the set but
// meant to be stripped by the transport layer.
func (s *Service) SearchPublic(ctx context.Context, query string) (domain.RankedSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RankedSet{Method: domain.MethodError}, domain.ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	candidates, err := s.searchKeyword(ctx, query, false, s.cfg.DirectSearchLimit)
	if err != nil {
		return domain.RankedSet{Method: domain.MethodError},
			fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if len(candidates) == 0 {
		return domain.RankedSet{Method: domain.MethodNone}, domain.ErrNoResults
	}
	return domain.RankedSet{Candidates: candidates, Method: domain.MethodKeyword}, nil
}

// BrowseTag lists public entries exactly matching a category tag, newest
// first. No ranking involved.
func (s *Service) BrowseTag(ctx context.Context, tag string) ([]domain.Entry, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	entries, err := s.repo.GetByTag(ctx, tag, s.cfg.TagBrowseLimit)
	if err != nil {
		return nil, fmt.Errorf("browse tag %q: %w", tag, err)
	}
	return entries, nil
}
