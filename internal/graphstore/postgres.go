package graphstore

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
)

var relSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeRelation(rel string) string {
	return relSanitizer.ReplaceAllString(rel, "_")
}

// PostgresStore implements Store over plain nodes/edges tables, grounded
// on internal/persistence/databases/postgres_graph.go.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the nodes/edges tables if absent.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS graph_nodes (
  name TEXT PRIMARY KEY,
  type TEXT NOT NULL DEFAULT 'unknown',
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS graph_edges (
  id BIGSERIAL PRIMARY KEY,
  source TEXT NOT NULL,
  rel TEXT NOT NULL,
  target TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (source, rel, target)
);
CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges (source);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges (target);
`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}
	batch := &pgxBatcher{}
	for _, e := range entities {
		typ := e.Type
		if typ == "" {
			typ = "unknown"
		}
		batch.queue(`
INSERT INTO graph_nodes (name, type, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET type = EXCLUDED.type, updated_at = now()
`, e.Name, typ)
	}
	if err := batch.send(ctx, s.pool); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) UpsertRelations(ctx context.Context, relations []Relation) error {
	if len(relations) == 0 {
		return nil
	}
	batch := &pgxBatcher{}
	for _, r := range relations {
		// Endpoints must already exist as nodes — original_source/adapters/
		// neo4j_graph.py MATCHes both before MERGE; skip silently rather
		// than create phantom nodes.
		batch.queue(`
INSERT INTO graph_edges (source, rel, target, updated_at)
SELECT $1, $2, $3, now()
WHERE EXISTS (SELECT 1 FROM graph_nodes WHERE name = $1)
  AND EXISTS (SELECT 1 FROM graph_nodes WHERE name = $3)
ON CONFLICT (source, rel, target) DO UPDATE SET updated_at = now()
`, r.Source, sanitizeRelation(r.Type), r.Target)
	}
	if err := batch.send(ctx, s.pool); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

// Expand mirrors original_source/adapters/neo4j_graph.py's expand(): an
// undirected, depth-capped BFS from seeds over graph_edges, returning up
// to 50 distinct neighbor names with the seeds excluded. The teacher's
// Neighbors is single-hop and directional only, so this walks both
// source->target and target->source edges per hop.
func (s *PostgresStore) Expand(ctx context.Context, seeds []string, depth int) ([]string, error) {
	if len(seeds) == 0 {
		return []string{}, nil
	}
	depth = clampDepth(depth)

	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}
	frontier := append([]string{}, seeds...)
	var result []string

	for hop := 0; hop < depth && len(result) < maxExpandResult; hop++ {
		if len(frontier) == 0 {
			break
		}
		rows, err := s.pool.Query(ctx, `
SELECT target FROM graph_edges WHERE source = ANY($1)
UNION
SELECT source FROM graph_edges WHERE target = ANY($1)
`, frontier)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		var next []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
			}
			if !seen[name] {
				seen[name] = true
				next = append(next, name)
				result = append(result, name)
				if len(result) >= maxExpandResult {
					break
				}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageUnavailable, err)
		}
		frontier = next
	}
	if len(result) > maxExpandResult {
		result = result[:maxExpandResult]
	}
	if result == nil {
		result = []string{}
	}
	return result, nil
}

// pgxBatcher is a small helper over pgx.Batch so Upsert* methods read as
// a flat sequence of statements without threading *pgx.Batch calls by
// hand at each call site.
type pgxBatcher struct {
	batch pgx.Batch
	n     int
}

func (b *pgxBatcher) queue(sql string, args ...any) {
	b.batch.Queue(sql, args...)
	b.n++
}

func (b *pgxBatcher) send(ctx context.Context, pool *pgxpool.Pool) error {
	br := pool.SendBatch(ctx, &b.batch)
	defer br.Close()
	for i := 0; i < b.n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
