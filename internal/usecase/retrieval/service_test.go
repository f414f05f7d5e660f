package retrieval

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coursedesk/faqsearch/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	mu           sync.Mutex
	keyword      map[domain.Partition][]domain.Entry
	keywordErr   map[domain.Partition]error
	keywordCalls map[domain.Partition]int
	hits         []domain.ChunkHit
	hitsErr      error
	chunkCalls   int
	store        map[domain.SourceKey]domain.Entry
	byIDsErr     error
	tagged       []domain.Entry
	tagErr       error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		keyword:      make(map[domain.Partition][]domain.Entry),
		keywordErr:   make(map[domain.Partition]error),
		keywordCalls: make(map[domain.Partition]int),
		store:        make(map[domain.SourceKey]domain.Entry),
	}
}

func (m *mockRepo) SearchKeyword(
	_ context.Context, p domain.Partition, _ string, _ []string, _ int,
) ([]domain.Entry, error) {
	m.mu.Lock()
	m.keywordCalls[p]++
	m.mu.Unlock()
	if err := m.keywordErr[p]; err != nil {
		return nil, err
	}
	return m.keyword[p], nil
}

func (m *mockRepo) GetByIDs(
	_ context.Context, p domain.Partition, ids []uuid.UUID,
) ([]domain.Entry, error) {
	if m.byIDsErr != nil {
		return nil, m.byIDsErr
	}
	var entries []domain.Entry
	for _, id := range ids {
		if e, ok := m.store[domain.SourceKey{Partition: p, ID: id}]; ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *mockRepo) GetByTag(_ context.Context, _ string, _ int) ([]domain.Entry, error) {
	return m.tagged, m.tagErr
}

func (m *mockRepo) SearchChunks(
	_ context.Context, _ []float32, _ int, _ bool,
) ([]domain.ChunkHit, error) {
	m.mu.Lock()
	m.chunkCalls++
	m.mu.Unlock()
	return m.hits, m.hitsErr
}

// addVectorEntry registers an entry plus a chunk hit pointing at it.
func (m *mockRepo) addVectorEntry(e domain.Entry, distance float64) {
	m.store[e.Key()] = e
	m.hits = append(m.hits, domain.ChunkHit{
		Partition: e.Partition, SourceID: e.ID, Distance: distance,
	})
}

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

// --- Helpers ---

func testConfig() Config {
	return Config{
		Policy:                  testPolicy(),
		DefaultLimit:            5,
		KeywordRowsPerPartition: 10,
		ChunkPoolMultiplier:     3,
		DirectSearchLimit:       8,
		TagBrowseLimit:          20,
		Timeout:                 5 * time.Second,
	}
}

func publicEntry(question, content string) domain.Entry {
	return domain.Entry{
		ID:        uuid.New(),
		Partition: domain.PartitionPublic,
		Brand:     "coursedesk",
		Tag:       "환불",
		Question:  question,
		Content:   content,
	}
}

func internalEntry(question, content string) domain.Entry {
	e := publicEntry(question, content)
	e.Partition = domain.PartitionInternal
	return e
}

// --- Tests ---

func TestRetrieve_EmptyQuery(t *testing.T) {
	repo := newMockRepo()
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "   ", true, 5)
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if set.Method != domain.MethodError {
		t.Errorf("method = %s, want error", set.Method)
	}
	if embed.called {
		t.Error("embedder must not be called for an empty query")
	}
	if repo.chunkCalls != 0 || len(repo.keywordCalls) != 0 {
		t.Error("storage must not be called for an empty query")
	}
}

func TestRetrieve_VectorDisabled(t *testing.T) {
	repo := newMockRepo()
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "주문 내역에서 신청")}
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", false, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embed.called {
		t.Error("embedder must not be called when vector search is disabled")
	}
	if set.Method != domain.MethodKeyword {
		t.Errorf("method = %s, want keyword", set.Method)
	}
}

func TestRetrieve_VectorFillsLimit(t *testing.T) {
	repo := newMockRepo()
	for i := 0; i < 5; i++ {
		repo.addVectorEntry(publicEntry("질문", "내용"), 0.1*float64(i+1))
	}
	embed := &mockEmbedder{vec: []float32{0.1, 0.2}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Method != domain.MethodVector {
		t.Errorf("method = %s, want vector", set.Method)
	}
	if len(set.Candidates) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(set.Candidates))
	}
	if calls := repo.keywordCalls[domain.PartitionPublic]; calls != 0 {
		t.Error("keyword search must be skipped when vector search fills the limit")
	}
}

func TestRetrieve_HybridSupplement(t *testing.T) {
	repo := newMockRepo()
	repo.addVectorEntry(publicEntry("비슷한 질문", "비슷한 내용"), 0.2)
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "주문 내역에서")}

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Method != domain.MethodHybrid {
		t.Errorf("method = %s, want hybrid", set.Method)
	}
	if len(set.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(set.Candidates))
	}
}

func TestRetrieve_DedupKeepsHigherScore(t *testing.T) {
	repo := newMockRepo()

	// Same entry found by both paths. Keyword scores it 0.6+0.4+0.2 = 1.2;
	// vector distance 0.5 scores 1/1.5 ~= 0.667. The merged entry must
	// appear once, with the keyword score and the "both" strategy mark.
	shared := publicEntry("환불 신청 방법", "주문 내역에서")
	repo.addVectorEntry(shared, 0.5)
	repo.keyword[domain.PartitionPublic] = []domain.Entry{shared}

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Candidates) != 1 {
		t.Fatalf("expected 1 deduplicated candidate, got %d", len(set.Candidates))
	}
	c := set.Candidates[0]
	if c.Strategy != domain.StrategyBoth {
		t.Errorf("strategy = %s, want both", c.Strategy)
	}
	if !almostEqual(c.Score, 1.2) {
		t.Errorf("score = %f, want the higher keyword score 1.2", c.Score)
	}
	if set.Method != domain.MethodVector {
		t.Errorf("method = %s, want vector (keyword contributed no new entry)", set.Method)
	}
}

func TestRetrieve_MergedListSortedByScore(t *testing.T) {
	repo := newMockRepo()

	// A distant vector hit (score 0.5) and a strong keyword hit (1.2):
	// merge order is vector-first but the final list must be score-sorted.
	repo.addVectorEntry(publicEntry("관련 질문", "관련 내용"), 1.0)
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "주문 내역에서")}

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(set.Candidates))
	}
	if set.Candidates[0].Strategy != domain.StrategyKeyword {
		t.Errorf("higher-scored keyword hit must rank first, got %s", set.Candidates[0].Strategy)
	}
	if set.Candidates[0].Score < set.Candidates[1].Score {
		t.Error("candidates must be sorted descending by score")
	}
}

func TestRetrieve_EmbedFailureFallsBackToKeyword(t *testing.T) {
	repo := newMockRepo()
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "내용")}

	embed := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("embedding failure must not surface: %v", err)
	}
	if set.Method != domain.MethodKeyword {
		t.Errorf("method = %s, want keyword", set.Method)
	}
	if repo.chunkCalls != 0 {
		t.Error("chunk search must be skipped when embedding fails")
	}
}

func TestRetrieve_ChunkSearchFailureFallsBackToKeyword(t *testing.T) {
	repo := newMockRepo()
	repo.hitsErr = errors.New("pgvector down")
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "내용")}

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("chunk search failure must not surface: %v", err)
	}
	if set.Method != domain.MethodKeyword {
		t.Errorf("method = %s, want keyword", set.Method)
	}
}

func TestRetrieve_InternalPartitionFailureDegrades(t *testing.T) {
	repo := newMockRepo()
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "내용")}
	repo.keywordErr[domain.PartitionInternal] = errors.New("internal table gone")

	svc := New(repo, nil, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", false, 5)
	if err != nil {
		t.Fatalf("internal partition failure must not surface: %v", err)
	}
	if len(set.Candidates) != 1 {
		t.Fatalf("expected public-only result, got %d candidates", len(set.Candidates))
	}
	if set.Candidates[0].Entry.Partition != domain.PartitionPublic {
		t.Error("surviving candidate should come from the public partition")
	}
}

func TestRetrieve_PublicPartitionFailureIsFatal(t *testing.T) {
	repo := newMockRepo()
	repo.keywordErr[domain.PartitionPublic] = errors.New("connection refused")

	svc := New(repo, nil, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", false, 5)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if set.Method != domain.MethodError {
		t.Errorf("method = %s, want error", set.Method)
	}
}

func TestRetrieve_NoResults(t *testing.T) {
	repo := newMockRepo()
	svc := New(repo, nil, testConfig())

	set, err := svc.Retrieve(context.Background(), "없는 질문", false, 5)
	if !errors.Is(err, domain.ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got %v", err)
	}
	if set.Method != domain.MethodNone {
		t.Errorf("method = %s, want none", set.Method)
	}
}

func TestRetrieve_TruncatesToLimit(t *testing.T) {
	repo := newMockRepo()
	for i := 0; i < 3; i++ {
		repo.addVectorEntry(publicEntry("질문", "내용"), 0.1*float64(i+1))
	}
	for i := 0; i < 5; i++ {
		repo.keyword[domain.PartitionPublic] = append(
			repo.keyword[domain.PartitionPublic], publicEntry("환불 질문", "내용"),
		)
	}
	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Candidates) != 5 {
		t.Fatalf("expected exactly 5 of 8 candidates, got %d", len(set.Candidates))
	}
	for i := 1; i < len(set.Candidates); i++ {
		if set.Candidates[i-1].Score < set.Candidates[i].Score {
			t.Fatal("truncated output must stay sorted descending by score")
		}
	}
}

func TestRetrieve_SkipsDeletedSources(t *testing.T) {
	repo := newMockRepo()
	repo.addVectorEntry(publicEntry("살아있는 질문", "내용"), 0.1)

	// A chunk whose source entry was deleted after indexing.
	repo.hits = append(repo.hits, domain.ChunkHit{
		Partition: domain.PartitionPublic, SourceID: uuid.New(), Distance: 0.05,
	})

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	set, err := svc.Retrieve(context.Background(), "환불", true, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(set.Candidates))
	}
	if set.Candidates[0].Entry.Question != "살아있는 질문" {
		t.Error("orphan chunk hit must be skipped in favor of a live entry")
	}
}

func TestRetrieve_Idempotent(t *testing.T) {
	repo := newMockRepo()
	repo.addVectorEntry(publicEntry("비슷한 질문", "내용"), 0.3)
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "내용")}
	repo.keyword[domain.PartitionInternal] = []domain.Entry{internalEntry("내부 환불 절차", "절차 내용")}

	embed := &mockEmbedder{vec: []float32{0.1}}
	svc := New(repo, embed, testConfig())

	first, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Retrieve(context.Background(), "환불", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical calls over unchanged data must return identical sets")
	}
}

func TestSearchPublic_NeverTouchesInternal(t *testing.T) {
	repo := newMockRepo()
	repo.keyword[domain.PartitionPublic] = []domain.Entry{publicEntry("환불 신청 방법", "내용")}
	repo.keyword[domain.PartitionInternal] = []domain.Entry{internalEntry("내부 절차", "내용")}

	svc := New(repo, nil, testConfig())

	set, err := svc.SearchPublic(context.Background(), "환불")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := repo.keywordCalls[domain.PartitionInternal]; calls != 0 {
		t.Error("direct search must never query the internal partition")
	}
	for _, c := range set.Candidates {
		if c.Entry.Partition == domain.PartitionInternal {
			t.Error("direct search must never return internal entries")
		}
	}
}

func TestSearchPublic_EmptyQuery(t *testing.T) {
	svc := New(newMockRepo(), nil, testConfig())

	_, err := svc.SearchPublic(context.Background(), "")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestBrowseTag(t *testing.T) {
	repo := newMockRepo()
	repo.tagged = []domain.Entry{publicEntry("환불 신청 방법", "내용")}

	svc := New(repo, nil, testConfig())

	entries, err := svc.BrowseTag(context.Background(), "환불")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestBrowseTag_EmptyTag(t *testing.T) {
	svc := New(newMockRepo(), nil, testConfig())

	_, err := svc.BrowseTag(context.Background(), "  ")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}
