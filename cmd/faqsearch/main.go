package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/config"
	"github.com/coursedesk/faqsearch/internal/db/postgres"
	"github.com/coursedesk/faqsearch/internal/domain"
	logpkg "github.com/coursedesk/faqsearch/internal/logger"
	"github.com/coursedesk/faqsearch/internal/metrics"
	faqrepo "github.com/coursedesk/faqsearch/internal/repository/faq"
	chiTransport "github.com/coursedesk/faqsearch/internal/transport/chi"
	openaiEmb "github.com/coursedesk/faqsearch/internal/transport/openai"
	healthuc "github.com/coursedesk/faqsearch/internal/usecase/health"
	ingestuc "github.com/coursedesk/faqsearch/internal/usecase/ingest"
	retrievaluc "github.com/coursedesk/faqsearch/internal/usecase/retrieval"
	"github.com/coursedesk/faqsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting faqsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	store, err := postgres.NewStore(postgres.Config{
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx, cfg.Embedding.Dimensions); err != nil {
		logger.Fatal("Schema bootstrap failed", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	// Embedding is optional: without an API key the service runs
	// keyword-only and vector search is skipped everywhere.
	// Pass nil interfaces (not typed nil pointers!) when disabled.
	var queryEmbedder retrievaluc.Embedder
	var batchEmbedder domain.BatchEmbedder
	var embChecker healthuc.EmbeddingChecker
	if cfg.Embedding.APIKey != "" {
		emb := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:        cfg.Embedding.APIKey,
			BaseURL:       cfg.Embedding.BaseURL,
			Model:         cfg.Embedding.Model,
			Dimensions:    cfg.Embedding.Dimensions,
			MaxInputChars: cfg.Embedding.MaxInputChars,
			Logger:        logger,
		})
		queryEmbedder = emb
		batchEmbedder = emb
		embChecker = emb
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("No embedding API key configured, running keyword-only")
	}

	repo := faqrepo.New(store.DB())

	retrievalSvc := retrievaluc.New(repo, queryEmbedder, retrievaluc.Config{
		Policy: retrievaluc.Policy{
			PublicBase:         cfg.Search.PublicBaseScore,
			InternalBase:       cfg.Search.InternalBaseScore,
			QuestionMatchBonus: cfg.Search.QuestionMatchBonus,
			QuestionTokenBonus: cfg.Search.QuestionTokenBonus,
			ContentTokenBonus:  cfg.Search.ContentTokenBonus,
			VectorScoreFloor:   cfg.Search.VectorScoreFloor,
			VectorScoreCeiling: cfg.Search.VectorScoreCeiling,
		},
		DefaultLimit:            cfg.Search.DefaultLimit,
		KeywordRowsPerPartition: cfg.Search.KeywordRowsPerPartition,
		ChunkPoolMultiplier:     cfg.Search.ChunkPoolMultiplier,
		DirectSearchLimit:       cfg.Search.DirectSearchLimit,
		TagBrowseLimit:          cfg.Search.TagBrowseLimit,
		Timeout:                 time.Duration(cfg.Search.TimeoutSec) * time.Second,
	})
	ingestSvc := ingestuc.New(repo, batchEmbedder)
	healthSvc := healthuc.New(store, embChecker)

	server := chiTransport.NewServer(retrievalSvc, ingestSvc, healthSvc, cfg.Auth.APIKeys, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
