package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
)

// qdrantPayloadIDField mirrors
// internal/persistence/databases/qdrant_vector.go's PAYLOAD_ID_FIELD:
// Qdrant only accepts UUIDs/integers as point ids, so non-UUID ids are
// mapped through a deterministic UUIDv5 and the original id is kept in
// the payload.
const qdrantPayloadIDField = "_original_id"

// qdrantMetadataField stores the full metadata object as a JSON string so
// arbitrary (non-string) metadata values round-trip exactly; individual
// top-level keys are duplicated as flattened strings for filter matching
// (spec.md's filter semantics are string equality on the stringified
// value).
const qdrantMetadataField = "_metadata_json"

// QdrantStore implements the search/upsert/delete half of Store over
// Qdrant, grounded on
// internal/persistence/databases/qdrant_vector.go. Qdrant has no native
// JSONB proposal archive or atomic counter patch, so the proposal/
// counter/cleanup/stats/history methods delegate to an embedded
// Postgres-backed Store — spec.md §4.1's store_proposal/get_stats/etc.
// contract is preserved, only the vector-search engine differs.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	archive    Store // Postgres-backed; required for proposal/stats/history
	log        obs.Logger
	metrics    obs.Metrics
}

// NewQdrantStore connects to Qdrant over gRPC and ensures the collection
// exists. archive must be a Store (normally *PostgresStore) backing the
// proposal/counter/cleanup/stats/history half of the contract.
func NewQdrantStore(dsn, collection string, dimensions int, archive Store, log obs.Logger, metrics obs.Metrics) (*QdrantStore, error) {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection name is required", apperrors.ErrValidation)
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse qdrant dsn: %v", apperrors.ErrStorageUnavailable, err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid qdrant port: %v", apperrors.ErrValidation, err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", apperrors.ErrStorageUnavailable, err)
	}
	q := &QdrantStore{client: client, collection: collection, dimension: dimensions, archive: archive, log: log, metrics: metrics}
	if err := q.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection exists: %v", apperrors.ErrStorageUnavailable, err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return fmt.Errorf("%w: qdrant requires dimensions > 0", apperrors.ErrValidation)
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func pointIDFor(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantStore) Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]any) error {
	pointID := pointIDFor(id)
	mdJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	payloadMap := map[string]any{
		"content":           content,
		qdrantMetadataField: string(mdJSON),
	}
	for k, v := range metadata {
		payloadMap[k] = fmt.Sprint(v)
	}
	if pointID != id {
		payloadMap[qdrantPayloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(pointID),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(payloadMap),
	}}
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	q.metrics.IncCounter("vector_upsert_total", nil)
	return nil
}

func (q *QdrantStore) Delete(ctx context.Context, id string) error {
	pointID := qdrant.NewIDUUID(pointIDFor(id))
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointID),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Record, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(topK)
	start := time.Now()
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	tenant := filter["tenant_id"]
	if tenant == "" {
		tenant = "unknown"
	}
	q.metrics.IncCounter("vector_search_total", map[string]string{"tenant": tenant})
	q.metrics.ObserveHistogram("vector_search_duration_seconds", time.Since(start).Seconds(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}

	out := make([]Record, 0, len(hits))
	for _, hit := range hits {
		var originalID, content string
		var metadata map[string]any
		if hit.Payload != nil {
			if v, ok := hit.Payload[qdrantPayloadIDField]; ok {
				originalID = v.GetStringValue()
			}
			if v, ok := hit.Payload["content"]; ok {
				content = v.GetStringValue()
			}
			if v, ok := hit.Payload[qdrantMetadataField]; ok {
				metadata = safeLoadObject(v.GetStringValue(), q.log)
			}
		}
		id := originalID
		if id == "" {
			uuidStr := hit.Id.GetUuid()
			if uuidStr == "" {
				uuidStr = hit.Id.String()
			}
			id = uuidStr
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		out = append(out, Record{ID: id, Content: content, Metadata: metadata, Similarity: float64(hit.Score)})
	}
	return out, nil
}

func (q *QdrantStore) IncrementCounter(ctx context.Context, ids []string) error {
	return q.archive.IncrementCounter(ctx, ids)
}

func (q *QdrantStore) CleanupOldFacts(ctx context.Context, days int, minImportance float64) (int64, error) {
	return q.archive.CleanupOldFacts(ctx, days, minImportance)
}

func (q *QdrantStore) StoreProposal(ctx context.Context, p ProposalRecord) error {
	return q.archive.StoreProposal(ctx, p)
}

func (q *QdrantStore) UpdateFeedback(ctx context.Context, id string, accepted bool, perf map[string]any) (bool, error) {
	return q.archive.UpdateFeedback(ctx, id, accepted, perf)
}

func (q *QdrantStore) GetStats(ctx context.Context, tenant string) (Stats, error) {
	return q.archive.GetStats(ctx, tenant)
}

func (q *QdrantStore) GetProposalsHistory(ctx context.Context, tenant string, limit, offset int) ([]ProposalRecord, error) {
	return q.archive.GetProposalsHistory(ctx, tenant, limit, offset)
}

func (q *QdrantStore) Close() error {
	return q.client.Close()
}
