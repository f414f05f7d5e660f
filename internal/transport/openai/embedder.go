// Package openai wraps the OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/domain"
	"github.com/coursedesk/faqsearch/internal/metrics"
)

// Embedder turns text into embedding vectors via the OpenAI-compatible API.
// One outbound call per invocation; no caching, no retry.
type Embedder struct {
	client        *openai.Client
	model         openai.EmbeddingModel
	dimensions    int
	maxInputChars int
	logger        *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Dimensions    int
	MaxInputChars int
	Logger        *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding client.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         openai.EmbeddingModel(cfg.Model),
		dimensions:    cfg.Dimensions,
		maxInputChars: cfg.MaxInputChars,
		logger:        cfg.Logger,
	}
}

// truncate trims the text and cuts it to the provider's input budget.
// Rune-based so a multi-byte character is never split.
func (e *Embedder) truncate(text string) string {
	text = strings.TrimSpace(text)
	if e.maxInputChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= e.maxInputChars {
		return text
	}
	return string(runes[:e.maxInputChars])
}

// requestDimensions returns the dimensions parameter to send, or 0 to omit
// it. Legacy ada models reject the parameter; for them the configured value
// must match the model's fixed output size.
func (e *Embedder) requestDimensions() int {
	if e.model == openai.AdaEmbeddingV2 {
		return 0
	}
	return e.dimensions
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{e.truncate(text)},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.requestDimensions(),
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingUnavailable)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model)).Observe(duration.Seconds())
	recordTokens(string(e.model), resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// BatchEmbed vectorizes several texts in one API call, reassembling vectors
// by response index. Used by the chunk reindex pipeline.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = e.truncate(t)
	}

	req := openai.EmbeddingRequest{
		Input:          inputs,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.requestDimensions(),
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "api_error").Inc()
		return domain.BatchEmbeddingResult{}, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingErrorsTotal.WithLabelValues(string(e.model), "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embedding count mismatch: sent %d, got %d: %w",
			len(texts), len(resp.Data), domain.ErrEmbeddingUnavailable,
		)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = d.Embedding
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
	recordTokens(string(e.model), resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func recordTokens(model string, prompt, total int) {
	if total > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(model, "prompt").Add(float64(prompt))
		metrics.EmbeddingTokensTotal.WithLabelValues(model, "total").Add(float64(total))
	}
}

// parseAPIError extracts a human-readable error from the API response.
// Everything is wrapped with domain.ErrEmbeddingUnavailable so the ranker
// can treat any embedding failure as a degradation.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingUnavailable

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractMessage(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w", reqErr.HTTPStatusCode, detail, wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractMessage pulls the error message out of a JSON error body.
func extractMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Error.Message
	}
	return ""
}
