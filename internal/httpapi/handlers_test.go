package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/authjwt"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/config"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/contextengine"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/domains"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/embedder"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

// fakeStore is a minimal in-memory vectorstore.Store for handler tests.
type fakeStore struct {
	docs      map[string]vectorstore.Record
	proposals map[string]vectorstore.ProposalRecord
	filter    map[string]string // last filter passed to Search
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]vectorstore.Record{}, proposals: map[string]vectorstore.ProposalRecord{}}
}

func (f *fakeStore) Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]any) error {
	f.docs[id] = vectorstore.Record{ID: id, Content: content, Metadata: metadata, Similarity: 1}
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]vectorstore.Record, error) {
	f.filter = filter
	return nil, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error { delete(f.docs, id); return nil }

func (f *fakeStore) IncrementCounter(ctx context.Context, ids []string) error { return nil }

func (f *fakeStore) CleanupOldFacts(ctx context.Context, days int, minImportance float64) (int64, error) {
	return 3, nil
}

func (f *fakeStore) StoreProposal(ctx context.Context, p vectorstore.ProposalRecord) error {
	f.proposals[p.ID] = p
	return nil
}

func (f *fakeStore) UpdateFeedback(ctx context.Context, id string, accepted bool, perf map[string]any) (bool, error) {
	p, ok := f.proposals[id]
	if !ok {
		return false, nil
	}
	p.Accepted = &accepted
	f.proposals[id] = p
	return true, nil
}

func (f *fakeStore) GetStats(ctx context.Context, tenant string) (vectorstore.Stats, error) {
	return vectorstore.Stats{TotalFacts: int64(len(f.docs)), TotalProposals: int64(len(f.proposals))}, nil
}

func (f *fakeStore) GetProposalsHistory(ctx context.Context, tenant string, limit, offset int) ([]vectorstore.ProposalRecord, error) {
	var out []vectorstore.ProposalRecord
	for _, p := range f.proposals {
		out = append(out, p)
	}
	return out, nil
}

// stubLLM satisfies llmclient.Client with canned responses.
type stubLLM struct {
	chatResponse string
	jsonResponse map[string]any
}

func (s *stubLLM) Chat(ctx context.Context, system, user string) (string, error) {
	return s.chatResponse, nil
}

func (s *stubLLM) ChatJSON(ctx context.Context, system, user string) (map[string]any, error) {
	return s.jsonResponse, nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	llm := &stubLLM{chatResponse: "hyde", jsonResponse: map[string]any{
		"recommendations": []any{map[string]any{"type": "x", "action": "y"}},
	}}
	eng := contextengine.New(store, contextengine.WithEmbedder(embedder.NewDeterministic(8, false, 0)), contextengine.WithLLM(llm))
	reg := domains.NewRegistry()
	auth := authjwt.New("test-secret", time.Hour)
	cfg := config.Config{AdminPassword: "hunter2"}

	srv := NewServer(eng, store, reg, auth, cfg, nil, nil)
	return srv, store
}

func TestHandleToken_CorrectCredentialsReturnsToken(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/token?username=admin&password=hunter2", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["access_token"])
	require.Equal(t, "bearer", resp["token_type"])
}

func TestHandleToken_WrongPasswordReturns401(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/token?username=admin&password=wrong", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLearn_ReturnsDocID(t *testing.T) {
	srv, store := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"content": "hello", "category": "notes"})
	req := httptest.NewRequest(http.MethodPost, "/v1/learn", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["doc_id"])
	require.Len(t, store.docs, 1)
}

func TestHandleQuery_TenantHeaderDefaultsToDefault(t *testing.T) {
	srv, store := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"query": "what"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(0), resp["count"])
	require.Equal(t, "default", store.filter["tenant_id"])
}

func TestHandlePropose_ArchivesAndReturnsSuccess(t *testing.T) {
	srv, store := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"user_data": map[string]any{"spend": 100}, "domain": "ad_optimization"})
	req := httptest.NewRequest(http.MethodPost, "/v1/propose", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.Len(t, store.proposals, 1)
}

func TestHandleFeedback_UnknownProposalReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"proposal_id": "missing", "accepted": true})
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleFeedback_KnownProposalUpdates(t *testing.T) {
	srv, store := newTestServer(t)
	store.proposals["p1"] = vectorstore.ProposalRecord{ID: "p1", TenantID: "default"}

	body, _ := json.Marshal(map[string]any{"proposal_id": "p1", "accepted": true})
	req := httptest.NewRequest(http.MethodPost, "/v1/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *store.proposals["p1"].Accepted)
}

func TestHandleDomains_ListsFourBuiltins(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/domains", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Domains []domains.Info `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Domains, 4)
}

func TestHandleAdminCleanup_NonAdminReturns403(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleAdminCleanup_AdminTokenSucceeds(t *testing.T) {
	srv, _ := newTestServer(t)
	auth := authjwt.New("test-secret", time.Hour)
	token, err := auth.IssueToken(authjwt.AdminUser)
	require.NoError(t, err)
	srv.auth = auth

	req := httptest.NewRequest(http.MethodPost, "/admin/cleanup", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, float64(3), resp["deleted"])
}

func TestHandleHealth_DefaultsToOK(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}
