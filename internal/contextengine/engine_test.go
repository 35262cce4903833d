package contextengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/embedder"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/graphstore"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

// fakeStore is an in-memory vectorstore.Store for engine tests.
type fakeStore struct {
	docs            map[string]vectorstore.Record
	upsertCalls     int
	searchCalls     int
	incrementCalls  [][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]vectorstore.Record{}}
}

func (f *fakeStore) Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]any) error {
	f.upsertCalls++
	f.docs[id] = vectorstore.Record{ID: id, Content: content, Metadata: metadata, Similarity: 1}
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]vectorstore.Record, error) {
	f.searchCalls++
	var out []vectorstore.Record
	for _, d := range f.docs {
		match := true
		for k, v := range filter {
			if mv, _ := d.Metadata[k].(string); mv != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, d)
		}
		if len(out) >= topK {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeStore) IncrementCounter(ctx context.Context, ids []string) error {
	f.incrementCalls = append(f.incrementCalls, ids)
	return nil
}

func (f *fakeStore) CleanupOldFacts(ctx context.Context, days int, minImportance float64) (int64, error) {
	return 0, nil
}

func (f *fakeStore) StoreProposal(ctx context.Context, p vectorstore.ProposalRecord) error { return nil }

func (f *fakeStore) UpdateFeedback(ctx context.Context, id string, accepted bool, perf map[string]any) (bool, error) {
	return false, nil
}

func (f *fakeStore) GetStats(ctx context.Context, tenant string) (vectorstore.Stats, error) {
	return vectorstore.Stats{}, nil
}

func (f *fakeStore) GetProposalsHistory(ctx context.Context, tenant string, limit, offset int) ([]vectorstore.ProposalRecord, error) {
	return nil, nil
}

// stubLLM is a minimal llmclient.Client double, in the teacher's stubLLM
// style (internal/agent/memory/manager_test.go).
type stubLLM struct {
	chatResponse string
	jsonResponse map[string]any
	chatCalls    int
	jsonCalls    int
}

func (s *stubLLM) Chat(ctx context.Context, system, user string) (string, error) {
	s.chatCalls++
	return s.chatResponse, nil
}

func (s *stubLLM) ChatJSON(ctx context.Context, system, user string) (map[string]any, error) {
	s.jsonCalls++
	return s.jsonResponse, nil
}

func TestLearn_UpsertsOneDocWithMergedMetadata(t *testing.T) {
	store := newFakeStore()
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)))

	id, err := e.Learn(context.Background(), "hello world", "tenant-a", "user-1", "notes", map[string]any{"source": "manual"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, store.upsertCalls)

	doc := store.docs[id]
	require.Equal(t, "tenant-a", doc.Metadata["tenant_id"])
	require.Equal(t, "notes", doc.Metadata["category"])
	require.Equal(t, "user-1", doc.Metadata["user_id"])
	require.Equal(t, "manual", doc.Metadata["source"])
	require.Equal(t, 0, doc.Metadata["access_count"])
	require.Equal(t, 1.0, doc.Metadata["importance_score"])
}

func TestLearn_NoGraphStore_SkipsEnrichmentSilently(t *testing.T) {
	store := newFakeStore()
	llm := &stubLLM{}
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm))

	_, err := e.Learn(context.Background(), "hello", "t1", "", "cat", nil)
	require.NoError(t, err)
	require.Equal(t, 0, llm.jsonCalls) // graphstore.Noop short-circuits enrichment
}

// S6 — search on empty store.
func TestSearch_S6_EmptyStoreYieldsNoResultsOneHydeOneSearch(t *testing.T) {
	store := newFakeStore()
	llm := &stubLLM{chatResponse: "hypothetical answer", jsonResponse: map[string]any{}}
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm))

	docs, err := e.Search(context.Background(), "what is the weather", "t1", "")
	require.NoError(t, err)
	require.Empty(t, docs)
	require.Equal(t, 1, llm.chatCalls) // exactly one HyDE call
	require.Equal(t, 1, store.searchCalls)
}

func TestSearch_TenantIsolation_NeverCrossesTenants(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-a"] = vectorstore.Record{ID: "doc-a", Content: "a", Metadata: map[string]any{"tenant_id": "tenant-a"}}
	store.docs["doc-b"] = vectorstore.Record{ID: "doc-b", Content: "b", Metadata: map[string]any{"tenant_id": "tenant-b"}}
	llm := &stubLLM{chatResponse: "hyde", jsonResponse: map[string]any{}}
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm))

	docs, err := e.Search(context.Background(), "q", "tenant-a", "")
	require.NoError(t, err)
	for _, d := range docs {
		require.Equal(t, "tenant-a", d.Metadata["tenant_id"])
	}
}

func TestSearch_HopLimiting_AtMostOnePlusMaxHopsVectorSearches(t *testing.T) {
	store := newFakeStore()
	store.docs["doc-a"] = vectorstore.Record{ID: "doc-a", Content: "alice works at acme corp", Metadata: map[string]any{"tenant_id": "t1"}}
	llm := &stubLLM{chatResponse: "hyde", jsonResponse: map[string]any{"entities": []any{"alice"}}}
	g := graphstore.Noop{} // neighbors always empty, so no secondary search happens regardless of hop count
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm), WithGraphStore(g), WithConfig(Config{MaxHops: 3, RAGTopK: 5, RerankCandidatesMax: 50, RerankFinalLimit: 20, ContextMaxChars: 2500}))

	_, err := e.Search(context.Background(), "q", "t1", "")
	require.NoError(t, err)
	require.LessOrEqual(t, store.searchCalls, 1+3)
}

func TestPropose_UnknownDomain_AuditValidNoRules(t *testing.T) {
	store := newFakeStore()
	llm := &stubLLM{chatResponse: "hyde", jsonResponse: map[string]any{"recommendations": []any{map[string]any{"type": "x"}}}}
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm))

	result, err := e.Propose(context.Background(), map[string]any{"x": 1}, "t1", "custom", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.ProposalID)
	require.True(t, result.Audit.IsValid)
}

func TestPropose_EmptyContext_UsesFallbackText(t *testing.T) {
	require.Equal(t, noContextFallback, buildContextText(nil, 2500))
}

func TestSerializeUserData_SortedAndTruncated(t *testing.T) {
	s := serializeUserData(map[string]any{"b": 2, "a": 1}, 1000)
	require.Equal(t, "a: 1 b: 2", s)

	long := serializeUserData(map[string]any{"a": "x"}, 3)
	require.LessOrEqual(t, len(long), 3)
}

func TestWithClock_OverridesTimestamp(t *testing.T) {
	store := newFakeStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithClock(fixedClock{fixed}))
	id, err := e.Learn(context.Background(), "c", "t1", "", "cat", nil)
	require.NoError(t, err)
	require.Equal(t, fixed.Unix(), store.docs[id].Metadata["timestamp"])
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// Within the cache's TTL, repeated identical HyDE queries issue exactly
// one LLM call — spec.md §8's cache-determinism property.
func TestSearch_RepeatedQuery_HydeCachedWithinTTL(t *testing.T) {
	store := newFakeStore()
	llm := &stubLLM{chatResponse: "hyde", jsonResponse: map[string]any{}}
	e := New(store, WithEmbedder(embedder.NewDeterministic(8, false, 0)), WithLLM(llm))

	_, err := e.Search(context.Background(), "same query", "t1", "")
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "same query", "t1", "")
	require.NoError(t, err)

	require.Equal(t, 1, llm.chatCalls)
}
