package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	chiv5 "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coursedesk/faqsearch/internal/domain"
	healthuc "github.com/coursedesk/faqsearch/internal/usecase/health"
	ingestuc "github.com/coursedesk/faqsearch/internal/usecase/ingest"
	retrievaluc "github.com/coursedesk/faqsearch/internal/usecase/retrieval"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the FAQ retrieval engine over HTTP. The public surface
// (search, category browse) is unauthenticated; the operator surface
// (retrieve, internal authoring, reindex) sits behind bearer auth.
type Server struct {
	retrieval     *retrievaluc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	apiKeys       []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	apiKeys []string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		ingest:    ingest,
		health:    health,
		apiKeys:   apiKeys,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable),
	}
	return s
}

// Routes mounts all handlers on a router.
func (s *Server) Routes(r chiv5.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/faq", func(r chiv5.Router) {
		r.Post("/search", s.Search)
		r.Get("/category/{tag}", s.Category)

		r.Group(func(r chiv5.Router) {
			r.Use(BearerAuthMiddleware(s.apiKeys))
			r.Post("/retrieve", s.Retrieve)
			r.Post("/internal", s.CreateInternal)
			r.Patch("/internal/{id}", s.UpdateInternal)
			r.Post("/{partition}/{id}/reindex", s.Reindex)
		})
	})
}

// searchRequest is the body of POST /api/faq/search and /api/faq/retrieve.
type searchRequest struct {
	Query           string `json:"query"`
	UseVectorSearch bool   `json:"useVectorSearch"`
	Limit           int    `json:"limit,omitempty"`
}

// resultItem is one serialized candidate. Score and isInternal are present
// only on the authenticated retrieve shape.
type resultItem struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Brand      string   `json:"brand"`
	Tag        string   `json:"tag"`
	Question   string   `json:"question"`
	Content    string   `json:"content"`
	Score      *float64 `json:"score,omitempty"`
	IsInternal *bool    `json:"isInternal,omitempty"`
}

type searchResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Results      []resultItem `json:"results"`
	SearchMethod string       `json:"searchMethod,omitempty"`
}

// Search handles POST /api/faq/search: the unauthenticated help-center
// endpoint. Keyword-only, public partition only, scores stripped.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "query is required")
		return
	}

	set, err := s.retrieval.SearchPublic(r.Context(), req.Query)
	if errors.Is(err, domain.ErrEmptyQuery) {
		writeFailure(w, http.StatusBadRequest, "query is required")
		return
	}
	if errors.Is(err, domain.ErrNoResults) {
		writeJSON(w, http.StatusOK, searchResponse{
			Message: "no matching FAQ entries", Results: []resultItem{},
		})
		return
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]resultItem, len(set.Candidates))
	for i, c := range set.Candidates {
		items[i] = publicItem(c.Entry)
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Message: "ok", Results: items})
}

// Category handles GET /api/faq/category/{tag}: public entries with an
// exact tag match, newest first.
func (s *Server) Category(w http.ResponseWriter, r *http.Request) {
	tag := chiv5.URLParam(r, "tag")

	entries, err := s.retrieval.BrowseTag(r.Context(), tag)
	if errors.Is(err, domain.ErrEmptyQuery) {
		writeFailure(w, http.StatusBadRequest, "tag is required")
		return
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]resultItem, len(entries))
	for i, e := range entries {
		items[i] = publicItem(e)
	}
	writeJSON(w, http.StatusOK, searchResponse{Success: true, Message: "ok", Results: items})
}

// Retrieve handles POST /api/faq/retrieve: the tool-call shape consumed by
// the chat orchestration layer. Full candidates with scores, internal
// entries included, and the search method that produced them.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, searchResponse{
			Message: "query is required", Results: []resultItem{},
			SearchMethod: string(domain.MethodError),
		})
		return
	}

	set, err := s.retrieval.Retrieve(r.Context(), req.Query, req.UseVectorSearch, req.Limit)
	if errors.Is(err, domain.ErrEmptyQuery) {
		writeJSON(w, http.StatusBadRequest, searchResponse{
			Message: "query is required", Results: []resultItem{},
			SearchMethod: string(set.Method),
		})
		return
	}
	if errors.Is(err, domain.ErrNoResults) {
		writeJSON(w, http.StatusOK, searchResponse{
			Message: "no matching FAQ entries", Results: []resultItem{},
			SearchMethod: string(set.Method),
		})
		return
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]resultItem, len(set.Candidates))
	for i, c := range set.Candidates {
		items[i] = scoredItem(c)
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Success: true, Message: "ok", Results: items,
		SearchMethod: string(set.Method),
	})
}

// createInternalRequest is the body of POST /api/faq/internal.
type createInternalRequest struct {
	Brand    string `json:"brand"`
	Tag      string `json:"tag"`
	Question string `json:"question"`
	Content  string `json:"content"`
}

type entryResponse struct {
	Success bool       `json:"success"`
	Entry   resultItem `json:"entry"`
}

// CreateInternal handles POST /api/faq/internal.
func (s *Server) CreateInternal(w http.ResponseWriter, r *http.Request) {
	var req createInternalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.ingest.CreateInternal(r.Context(), ingestuc.CreateRequest{
		Brand: req.Brand, Tag: req.Tag, Question: req.Question, Content: req.Content,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entryResponse{Success: true, Entry: entryItem(entry)})
}

// patchInternalRequest is the body of PATCH /api/faq/internal/{id}.
// Absent fields are left unchanged.
type patchInternalRequest struct {
	Brand    *string `json:"brand"`
	Tag      *string `json:"tag"`
	Question *string `json:"question"`
	Content  *string `json:"content"`
}

// UpdateInternal handles PATCH /api/faq/internal/{id}.
func (s *Server) UpdateInternal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chiv5.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req patchInternalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.ingest.UpdateInternal(r.Context(), id, domain.EntryPatch{
		Brand: req.Brand, Tag: req.Tag, Question: req.Question, Content: req.Content,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entryResponse{Success: true, Entry: entryItem(entry)})
}

// Reindex handles POST /api/faq/{partition}/{id}/reindex: rebuilds the
// chunk set for one entry.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	p, err := domain.ParsePartition(chiv5.URLParam(r, "partition"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "partition must be public or internal")
		return
	}
	id, err := uuid.Parse(chiv5.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if err := s.ingest.Reindex(r.Context(), p, id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func publicItem(e domain.Entry) resultItem {
	return resultItem{
		ID:       e.ID.String(),
		Kind:     string(e.Partition),
		Brand:    e.Brand,
		Tag:      e.Tag,
		Question: e.Question,
		Content:  e.Content,
	}
}

func entryItem(e domain.Entry) resultItem {
	item := publicItem(e)
	internal := e.Partition == domain.PartitionInternal
	item.IsInternal = &internal
	return item
}

func scoredItem(c domain.Candidate) resultItem {
	item := entryItem(c.Entry)
	score := c.Score
	item.Score = &score
	return item
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeFailure(w, http.StatusInternalServerError, "internal error")
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeFailure(w, status, msg)
		return true
	}
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrNoResults,
		domain.ErrNotFound,
		domain.ErrStoreUnavailable,
		domain.ErrEmbeddingUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, searchResponse{Message: message, Results: []resultItem{}})
}
