package faqsearch

import "github.com/coursedesk/faqsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrEmptyQuery           = domain.ErrEmptyQuery
	ErrNoResults            = domain.ErrNoResults
	ErrNotFound             = domain.ErrNotFound
	ErrStoreUnavailable     = domain.ErrStoreUnavailable
	ErrEmbeddingUnavailable = domain.ErrEmbeddingUnavailable
)
