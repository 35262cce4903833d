package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
)

// PostgresStore implements Store over Postgres + pgvector. Grounded on
// internal/persistence/databases/postgres_vector.go for the vector
// literal/search-operator shape and on
// original_source/adapters/pgvector.py for the full contract
// (increment_counter's jsonb_set patch, cleanup, proposal archive,
// malformed-JSON-tolerant history).
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
	log        obs.Logger
	metrics    obs.Metrics
}

// NewPostgresStore creates the documents/proposals tables if absent and
// returns a ready Store. HNSW/GIN index creation is left to migration
// tooling (spec.md §6 storage layout), not issued here on every boot.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, dimensions int, log obs.Logger, metrics obs.Metrics) (*PostgresStore, error) {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
  id UUID PRIMARY KEY,
  content TEXT NOT NULL,
  vector %s,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS proposals (
  id UUID PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  domain TEXT NOT NULL,
  user_data JSONB NOT NULL DEFAULT '{}'::jsonb,
  proposal JSONB NOT NULL DEFAULT '{}'::jsonb,
  audit_result JSONB NOT NULL DEFAULT '{}'::jsonb,
  accepted BOOLEAN,
  performance_after JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  feedback_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_proposals_tenant_created ON proposals (tenant_id, created_at DESC);
`, vecType)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &PostgresStore{pool: pool, dimensions: dimensions, log: log, metrics: metrics}, nil
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (s *PostgresStore) Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]any) error {
	vecLit := toVectorLiteral(vector)
	md, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (id, content, vector, metadata)
VALUES ($1::uuid, $2, $3::vector, $4::jsonb)
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    vector = EXCLUDED.vector,
    metadata = EXCLUDED.metadata
`, id, content, vecLit, md)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	s.metrics.IncCounter("vector_upsert_total", nil)
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Record, error) {
	if topK <= 0 {
		topK = 5
	}
	vecLit := toVectorLiteral(vector)
	args := []any{vecLit, topK}
	var whereClauses []string
	for key, val := range filter {
		args = append(args, val)
		whereClauses = append(whereClauses, fmt.Sprintf("metadata->>'%s' = $%d", key, len(args)))
	}
	where := ""
	if len(whereClauses) > 0 {
		where = "WHERE " + strings.Join(whereClauses, " AND ")
	}
	query := fmt.Sprintf(`
SELECT id::text, content, metadata::text, 1 - (vector <=> $1::vector) AS similarity
FROM documents
%s
ORDER BY vector <=> $1::vector
LIMIT $2
`, where)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	tenant := filter["tenant_id"]
	if tenant == "" {
		tenant = "unknown"
	}
	defer func() {
		s.metrics.IncCounter("vector_search_total", map[string]string{"tenant": tenant})
		s.metrics.ObserveHistogram("vector_search_duration_seconds", time.Since(start).Seconds(), nil)
	}()

	var out []Record
	for rows.Next() {
		var id, content, mdText string
		var similarity float64
		if err := rows.Scan(&id, &content, &mdText, &similarity); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		out = append(out, Record{
			ID:         id,
			Content:    content,
			Metadata:   safeLoadObject(mdText, s.log),
			Similarity: similarity,
		})
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

// IncrementCounter issues a single statement over the whole id list, a
// JSON-field patch (not a full-row replace) so concurrent callers'
// updates interleave safely, per spec.md §5.
func (s *PostgresStore) IncrementCounter(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
UPDATE documents
SET metadata = jsonb_set(
    jsonb_set(
        metadata,
        '{access_count}',
        (COALESCE(metadata->>'access_count', '0')::int + 1)::text::jsonb
    ),
    '{last_accessed}',
    to_jsonb(extract(epoch from now()))
)
WHERE id = ANY($1::uuid[])
`, ids)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) CleanupOldFacts(ctx context.Context, days int, minImportance float64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM documents
WHERE metadata->>'user_id' IS NOT NULL
  AND (metadata->>'last_accessed')::float < extract(epoch from now()) - ($1::float * 86400)
  AND (metadata->>'importance_score')::float < $2
`, days, minImportance)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	deleted := tag.RowsAffected()
	s.log.Info("cleanup_completed", map[string]any{"deleted": deleted})
	return deleted, nil
}

func (s *PostgresStore) StoreProposal(ctx context.Context, p ProposalRecord) error {
	userData, err := json.Marshal(p.UserData)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	proposal, err := json.Marshal(p.Proposal)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	audit, err := json.Marshal(p.AuditResult)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO proposals (id, tenant_id, domain, user_data, proposal, audit_result)
VALUES ($1::uuid, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb)
ON CONFLICT (id) DO UPDATE SET
    proposal = EXCLUDED.proposal,
    audit_result = EXCLUDED.audit_result
`, p.ID, p.TenantID, p.Domain, userData, proposal, audit)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) UpdateFeedback(ctx context.Context, id string, accepted bool, perf map[string]any) (bool, error) {
	if perf == nil {
		perf = map[string]any{}
	}
	perfJSON, err := json.Marshal(perf)
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE proposals
SET accepted = $2, performance_after = $3::jsonb, feedback_at = NOW()
WHERE id = $1::uuid
`, id, accepted, perfJSON)
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetStats(ctx context.Context, tenant string) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE metadata->>'tenant_id' = $1`, tenant).Scan(&stats.TotalFacts)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM proposals WHERE tenant_id = $1`, tenant).Scan(&stats.TotalProposals)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return stats, nil
}

func (s *PostgresStore) GetProposalsHistory(ctx context.Context, tenant string, limit, offset int) ([]ProposalRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT id::text, domain, user_data::text, proposal::text, audit_result::text,
       accepted, extract(epoch from created_at), feedback_at
FROM proposals
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`, tenant, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []ProposalRecord
	for rows.Next() {
		var id, domain, userDataText, proposalText, auditText string
		var accepted *bool
		var createdAt float64
		var feedbackAt *time.Time
		if err := rows.Scan(&id, &domain, &userDataText, &proposalText, &auditText, &accepted, &createdAt, &feedbackAt); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		rec := ProposalRecord{
			ID:          id,
			TenantID:    tenant,
			Domain:      domain,
			UserData:    safeLoadObject(userDataText, s.log),
			Proposal:    safeLoadObject(proposalText, s.log),
			AuditResult: safeLoadObject(auditText, s.log),
			Accepted:    accepted,
			CreatedAt:   int64(createdAt),
		}
		if feedbackAt != nil {
			ts := feedbackAt.Unix()
			rec.FeedbackAt = &ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// safeLoadObject decodes a JSON object, logging and returning an empty
// object on decode failure rather than faulting the caller — the history
// viewer resilience spec.md §4.1 requires, grounded on
// original_source/adapters/pgvector.py's _safe_load.
func safeLoadObject(text string, log obs.Logger) map[string]any {
	if text == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		log.Error("proposal_history_json_decode", map[string]any{"error": err.Error()})
		return map[string]any{}
	}
	return out
}
