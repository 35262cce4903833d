// Package vectorstore implements the Fact-level vector store contract
// from spec.md §4.1: dense k-NN search, metadata filtering, access
// counters, and the proposal archive. Grounded on
// internal/persistence/databases/{postgres_vector,qdrant_vector}.go for
// the similarity-search shape, extended with the counter/cleanup/
// proposal-archive methods those interfaces lack but spec.md requires.
package vectorstore

import "context"

// Record is a stored Fact as returned by Search.
type Record struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// ProposalRecord is the archival entity from spec.md §3.
type ProposalRecord struct {
	ID               string
	TenantID         string
	Domain           string
	UserData         map[string]any
	Proposal         map[string]any
	AuditResult      map[string]any
	Accepted         *bool
	PerformanceAfter map[string]any
	CreatedAt        int64
	FeedbackAt       *int64
}

// Stats is the shape returned by GetStats.
type Stats struct {
	TotalFacts     int64 `json:"total_facts"`
	TotalProposals int64 `json:"total_proposals"`
}

// Store is the full vector-store contract: upsert, similarity search,
// delete, counter increment, cleanup, and the proposal archive.
type Store interface {
	// Upsert replaces content/vector/metadata on duplicate id.
	Upsert(ctx context.Context, id, content string, vector []float32, metadata map[string]any) error

	// Search returns up to topK records ordered by descending cosine
	// similarity, restricted to records whose metadata matches every
	// key/value pair in filter (string-equality on the stringified
	// value, conjunctive).
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Record, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error

	// IncrementCounter atomically increments metadata.access_count and
	// sets metadata.last_accessed=now() for each id. No-op on empty ids.
	IncrementCounter(ctx context.Context, ids []string) error

	// CleanupOldFacts deletes personal facts (user_id set) whose
	// last_accessed is older than days and whose importance_score is
	// below minImportance. Returns the number of rows deleted.
	CleanupOldFacts(ctx context.Context, days int, minImportance float64) (int64, error)

	// StoreProposal archives a newly created proposal in the PENDING
	// state (Accepted == nil).
	StoreProposal(ctx context.Context, p ProposalRecord) error

	// UpdateFeedback sets accepted/performance_after once. found is
	// false (not an error) if id does not exist.
	UpdateFeedback(ctx context.Context, id string, accepted bool, perf map[string]any) (found bool, err error)

	// GetStats returns counts scoped to tenant.
	GetStats(ctx context.Context, tenant string) (Stats, error)

	// GetProposalsHistory returns a paginated slice of proposals for
	// tenant, most recent first. Malformed stored JSON is logged and
	// treated as an empty object rather than faulting the call.
	GetProposalsHistory(ctx context.Context, tenant string, limit, offset int) ([]ProposalRecord, error)
}
