// Package postgres provides the shared database handle for the FAQ store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// database/sql driver
	_ "github.com/lib/pq"

	"github.com/coursedesk/faqsearch/internal/domain"
)

// Config holds Postgres connection settings.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store wraps a long-lived *sql.DB pool. It is injected into the
// repositories at construction time; nothing opens a connection per call.
type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool. The pool is lazy; use WaitForReady to
// verify connectivity.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres url required: %w", domain.ErrStoreUnavailable)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// DB exposes the underlying pool to the repositories.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// WaitForReady polls the database until it responds or the timeout elapses.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	var lastErr error
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		lastErr = s.db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("database not ready after %s: %v: %w", timeout, lastErr, domain.ErrStoreUnavailable)
}

// Close releases the pool.
func (s *Store) Close() {
	_ = s.db.Close()
}
