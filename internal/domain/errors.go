package domain

import "errors"

var (
	// ErrEmptyQuery signals an empty or whitespace-only query. No retrieval
	// work is attempted.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNoResults signals that no strategy produced any candidate.
	ErrNoResults = errors.New("no matching entries")
	// ErrNotFound signals a missing FAQ entry.
	ErrNotFound = errors.New("entry not found")
	// ErrStoreUnavailable signals that the storage backend cannot be reached.
	// This is a fatal misconfiguration, never swallowed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEmbeddingUnavailable signals that no query vector could be produced.
	// The retrieval path treats it as a degradation, not a failure.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)
