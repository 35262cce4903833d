package contextengine

import (
	"context"
	"strings"
	"time"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/graphstore"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/ttlcache"
)

const relNamespaceTTL = 24 * time.Hour

const extractRelationsPrompt = `You extract factual relation triples from text for a knowledge graph.
Return a JSON object {"triples": [["subject", "relation", "object"], ...]}.
Use short, specific entity and relation names. If no clear relations exist, return {"triples": []}.`

// Learn implements spec.md §4.7.1: embed content, assemble metadata,
// upsert into the vector store, then best-effort extract and upsert
// graph relations. Embedding failure is fatal; graph enrichment failure
// is logged and swallowed.
func (e *Engine) Learn(ctx context.Context, content, tenant, user, category string, metadata map[string]any) (string, error) {
	id := newID()

	vectors, err := e.emb.EmbedBatch(ctx, []string{content})
	if err != nil {
		return "", err
	}

	// Reserved fields first, user-supplied metadata last — last writer
	// wins on key collision, matching original_source/engine/context.py's
	// {**reserved, **(metadata or {})} merge order.
	merged := map[string]any{
		"tenant_id":        tenant,
		"category":         category,
		"timestamp":        e.clock.Now().Unix(),
		"access_count":     0,
		"importance_score": 1.0,
	}
	if user != "" {
		merged["user_id"] = user
	}
	for k, v := range metadata {
		merged[k] = v
	}

	if err := e.vector.Upsert(ctx, id, content, vectors[0], merged); err != nil {
		return "", err
	}

	e.enrichGraph(ctx, id, content)

	return id, nil
}

func (e *Engine) enrichGraph(ctx context.Context, docID, content string) {
	if _, ok := e.graph.(graphstore.Noop); ok {
		return
	}
	if e.llm == nil {
		return
	}

	triples, err := e.extractRelations(ctx, content)
	if err != nil {
		e.log.Error("graph_enrichment_failed", map[string]any{"doc_id": docID, "error": err.Error()})
		return
	}
	if len(triples) == 0 {
		return
	}

	seen := map[string]bool{}
	var entities []graphstore.Entity
	var relations []graphstore.Relation
	for _, t := range triples {
		if !seen[t.Subject] {
			seen[t.Subject] = true
			entities = append(entities, graphstore.Entity{Name: t.Subject, Type: "unknown"})
		}
		if !seen[t.Object] {
			seen[t.Object] = true
			entities = append(entities, graphstore.Entity{Name: t.Object, Type: "unknown"})
		}
		relations = append(relations, graphstore.Relation{Source: t.Subject, Type: t.Relation, Target: t.Object})
	}

	if err := e.graph.UpsertEntities(ctx, entities); err != nil {
		e.log.Error("graph_entity_upsert_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := e.graph.UpsertRelations(ctx, relations); err != nil {
		e.log.Error("graph_relation_upsert_failed", map[string]any{"error": err.Error()})
	}
}

type triple struct {
	Subject  string
	Relation string
	Object   string
}

// extractRelations calls LLM.chat_json under the "rel" cache namespace
// (24h TTL) and keeps at most 5 well-formed (s, r, o) triples, per
// spec.md §4.7.1.
func (e *Engine) extractRelations(ctx context.Context, content string) ([]triple, error) {
	fp := ttlcache.Fingerprint(content)
	raw, err := e.cache.GetOrCompute("rel", fp, relNamespaceTTL, func() (any, error) {
		return e.llm.ChatJSON(ctx, extractRelationsPrompt, content)
	})
	if err != nil {
		return nil, err
	}
	obj, _ := raw.(map[string]any)
	rawTriples, _ := obj["triples"].([]any)

	var out []triple
	for _, rt := range rawTriples {
		arr, ok := rt.([]any)
		if !ok || len(arr) != 3 {
			continue
		}
		s, sOk := arr[0].(string)
		r, rOk := arr[1].(string)
		o, oOk := arr[2].(string)
		if !sOk || !rOk || !oOk {
			continue
		}
		s, r, o = strings.TrimSpace(s), strings.TrimSpace(r), strings.TrimSpace(o)
		if s == "" || r == "" || o == "" {
			continue
		}
		out = append(out, triple{Subject: s, Relation: r, Object: o})
		if len(out) >= 5 {
			break
		}
	}
	return out, nil
}
