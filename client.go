// Package faqsearch provides an in-process client for the hybrid FAQ
// retrieval engine: keyword plus vector search over public and internal
// FAQ partitions, merged into one ranked result list.
//
// The client wires the same storage and retrieval stack the HTTP server runs,
// for callers living in the same process (the chat orchestration layer).
package faqsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/db/postgres"
	"github.com/coursedesk/faqsearch/internal/domain"
	faqrepo "github.com/coursedesk/faqsearch/internal/repository/faq"
	openaiEmb "github.com/coursedesk/faqsearch/internal/transport/openai"
	healthuc "github.com/coursedesk/faqsearch/internal/usecase/health"
	ingestuc "github.com/coursedesk/faqsearch/internal/usecase/ingest"
	retrievaluc "github.com/coursedesk/faqsearch/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces so tests can substitute the use case services.
type retrievalUseCase interface {
	Retrieve(ctx context.Context, query string, useVector bool, limit int) (domain.RankedSet, error)
	SearchPublic(ctx context.Context, query string) (domain.RankedSet, error)
	BrowseTag(ctx context.Context, tag string) ([]domain.Entry, error)
}

type ingestUseCase interface {
	CreateInternal(ctx context.Context, req ingestuc.CreateRequest) (domain.Entry, error)
	UpdateInternal(ctx context.Context, id uuid.UUID, patch domain.EntryPatch) (domain.Entry, error)
	Reindex(ctx context.Context, p domain.Partition, id uuid.UUID) error
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the faqsearch SDK entry point.
type Client struct {
	store     *postgres.Store
	retrieval retrievalUseCase
	ingest    ingestUseCase
	health    healthUseCase
}

// New creates a faqsearch Client and connects to Postgres. The provided
// context bounds the initial readiness check and schema bootstrap.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.databaseURL == "" {
		return nil, errors.New("faqsearch: database URL required (use WithPostgres)")
	}

	store, err := postgres.NewStore(postgres.Config{URL: cfg.databaseURL})
	if err != nil {
		return nil, fmt.Errorf("faqsearch: create store: %w", err)
	}

	if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("faqsearch: database not ready: %w", err)
	}
	if err := store.EnsureSchema(ctx, cfg.dimensions); err != nil {
		store.Close()
		return nil, fmt.Errorf("faqsearch: schema bootstrap: %w", err)
	}

	repo := faqrepo.New(store.DB())

	var queryEmbedder retrievaluc.Embedder
	var batchEmbedder domain.BatchEmbedder
	var embChecker healthuc.EmbeddingChecker
	if cfg.openaiAPIKey != "" {
		emb := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:        cfg.openaiAPIKey,
			BaseURL:       cfg.openaiBaseURL,
			Model:         cfg.model,
			Dimensions:    cfg.dimensions,
			MaxInputChars: cfg.maxInputChars,
			Logger:        cfg.logger,
		})
		queryEmbedder = emb
		batchEmbedder = emb
		embChecker = emb
	}

	return &Client{
		store:     store,
		retrieval: retrievaluc.New(repo, queryEmbedder, cfg.retrieval),
		ingest:    ingestuc.New(repo, batchEmbedder),
		health:    healthuc.New(store, embChecker),
	}, nil
}

// Retrieve runs one hybrid retrieval call: vector search first when
// enabled, keyword search as a supplement, one deduplicated ranked list.
// limit <= 0 uses the configured default.
func (c *Client) Retrieve(
	ctx context.Context, query string, useVector bool, limit int,
) (domain.RankedSet, error) {
	return c.retrieval.Retrieve(ctx, query, useVector, limit)
}

// Search runs a keyword-only search over the public partition, the shape
// served to unauthenticated help-center callers.
func (c *Client) Search(ctx context.Context, query string) (domain.RankedSet, error) {
	return c.retrieval.SearchPublic(ctx, query)
}

// BrowseTag lists public entries exactly matching a category tag,
// newest first.
func (c *Client) BrowseTag(ctx context.Context, tag string) ([]domain.Entry, error) {
	return c.retrieval.BrowseTag(ctx, tag)
}

// CreateInternal stores a new internal FAQ entry and rebuilds its chunks.
func (c *Client) CreateInternal(
	ctx context.Context, brand, tag, question, content string,
) (domain.Entry, error) {
	return c.ingest.CreateInternal(ctx, ingestuc.CreateRequest{
		Brand: brand, Tag: tag, Question: question, Content: content,
	})
}

// UpdateInternal patches an internal entry; nil patch fields are left
// unchanged. A question or content change rebuilds the entry's chunks.
func (c *Client) UpdateInternal(
	ctx context.Context, id uuid.UUID, patch domain.EntryPatch,
) (domain.Entry, error) {
	return c.ingest.UpdateInternal(ctx, id, patch)
}

// Reindex rebuilds the chunk set for one entry.
func (c *Client) Reindex(ctx context.Context, p domain.Partition, id uuid.UUID) error {
	return c.ingest.Reindex(ctx, p, id)
}

// Health reports store and embedding provider availability.
func (c *Client) Health(ctx context.Context) healthuc.Report {
	return c.health.Check(ctx)
}

// Close releases the database connection pool.
func (c *Client) Close() {
	c.store.Close()
}

// clientConfig is assembled by Options.
type clientConfig struct {
	databaseURL      string
	readinessTimeout time.Duration

	openaiAPIKey  string
	openaiBaseURL string
	model         string
	dimensions    int
	maxInputChars int

	retrieval retrievaluc.Config
	logger    *zap.Logger
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		readinessTimeout: defaultReadinessTimeout,
		model:            "text-embedding-3-small",
		dimensions:       1536,
		maxInputChars:    7500,
		retrieval: retrievaluc.Config{
			Policy: retrievaluc.Policy{
				PublicBase:         0.6,
				InternalBase:       0.9,
				QuestionMatchBonus: 0.4,
				QuestionTokenBonus: 0.2,
				ContentTokenBonus:  0.1,
				VectorScoreFloor:   0.4,
				VectorScoreCeiling: 0.99,
			},
			DefaultLimit:            5,
			KeywordRowsPerPartition: 10,
			ChunkPoolMultiplier:     3,
			DirectSearchLimit:       8,
			TagBrowseLimit:          20,
			Timeout:                 5 * time.Second,
		},
		logger: zap.NewNop(),
	}
}

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// WithPostgres sets the Postgres connection string. Required.
func WithPostgres(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.databaseURL = url
	})
}

// WithOpenAI enables vector search with the given API key. Without it the
// client runs keyword-only.
func WithOpenAI(apiKey string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openaiAPIKey = apiKey
	})
}

// WithEmbeddingModel overrides the embedding model and vector dimensions.
// Defaults: text-embedding-3-small, 1536.
func WithEmbeddingModel(model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
		c.dimensions = dimensions
	})
}

// WithEmbeddingBaseURL points the embedder at an OpenAI-compatible
// endpoint other than the default.
func WithEmbeddingBaseURL(baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openaiBaseURL = baseURL
	})
}

// WithRetrievalConfig replaces the whole retrieval configuration,
// scoring policy included.
func WithRetrievalConfig(cfg retrievaluc.Config) Option {
	return optionFunc(func(c *clientConfig) {
		c.retrieval = cfg
	})
}

// WithReadinessTimeout bounds how long New waits for Postgres.
// Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithLogger enables structured logging for client operations.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
