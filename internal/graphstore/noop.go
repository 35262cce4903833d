package graphstore

import "context"

// Noop backs a configuration with no graph store configured, grounded on
// internal/persistence/databases/factory.go's noopGraph: entity/relation
// upserts are silently discarded and Expand always returns no neighbors,
// so Search/Learn degrade to vector-only retrieval rather than erroring.
type Noop struct{}

func (Noop) UpsertEntities(ctx context.Context, entities []Entity) error   { return nil }
func (Noop) UpsertRelations(ctx context.Context, relations []Relation) error { return nil }
func (Noop) Expand(ctx context.Context, seeds []string, depth int) ([]string, error) {
	return []string{}, nil
}
