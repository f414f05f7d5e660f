package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/domain"
)

// embeddingResponse mirrors the OpenAI-compatible embeddings response.
type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestEmbedder(baseURL string, maxChars int) *Embedder {
	return NewEmbedder(&Config{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "test-model",
		MaxInputChars: maxChars,
		Logger:        zap.NewNop(),
	})
}

func TestEmbed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Object: "embedding", Embedding: expectedVec})
		resp.Usage.PromptTokens = 7
		resp.Usage.TotalTokens = 7

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 7500)

	result, err := emb.Embed(context.Background(), "환불 신청 방법")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, expected 7", result.TotalTokens)
	}
}

func TestEmbed_TruncatesInput(t *testing.T) {
	var received string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) > 0 {
			received = req.Input[0]
		}

		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.1}})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 10)

	// Multi-byte input longer than the budget: must cut on rune boundaries.
	_, err := emb.Embed(context.Background(), strings.Repeat("환", 25))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if got := len([]rune(received)); got != 10 {
		t.Errorf("sent %d runes, expected 10", got)
	}
}

func TestEmbed_UpstreamErrorWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 7500)

	_, err := emb.Embed(context.Background(), "query")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("error %v should wrap ErrEmbeddingUnavailable", err)
	}
}

func TestBatchEmbed_ReordersByIndex(t *testing.T) {
	vec1 := []float32{0.1, 0.2}
	vec2 := []float32{0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Return vectors out of order; the client must restore input order.
		var resp embeddingResponse
		resp.Data = append(resp.Data,
			struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec2, Index: 1},
			struct {
				Object    string    `json:"object"`
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec1, Index: 0},
		)
		resp.Usage.TotalTokens = 20

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 7500)

	result, err := emb.BatchEmbed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}

	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 {
		t.Errorf("first vec[0] = %f, expected 0.1", result.Embeddings[0][0])
	}
	if result.Embeddings[1][0] != 0.3 {
		t.Errorf("second vec[0] = %f, expected 0.3", result.Embeddings[1][0])
	}
	if result.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d, expected 20", result.TotalTokens)
	}
}

func TestBatchEmbed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.1}})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 7500)

	_, err := emb.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected count mismatch error")
	}
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("error %v should wrap ErrEmbeddingUnavailable", err)
	}
}

func TestEmbed_SendsConfiguredDimensions(t *testing.T) {
	var gotDims int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Dimensions int `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		gotDims = req.Dimensions

		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Object: "embedding", Embedding: []float32{0.1, 0.2, 0.3}})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Logger:     zap.NewNop(),
	})

	if _, err := emb.Embed(context.Background(), "환불"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if gotDims != 3 {
		t.Errorf("request dimensions = %d, want 3", gotDims)
	}
}

func TestEmbed_OmitsDimensionsForAdaModel(t *testing.T) {
	var sawDimensionsKey bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		_, sawDimensionsKey = req["dimensions"]

		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Object: "embedding", Embedding: []float32{0.1}})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	emb := NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
		Logger:     zap.NewNop(),
	})

	if _, err := emb.Embed(context.Background(), "환불"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if sawDimensionsKey {
		t.Error("ada request must not carry the dimensions parameter")
	}
}
