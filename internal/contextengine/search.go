package contextengine

import (
	"context"
	"strings"
	"time"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/graphstore"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/ttlcache"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

const (
	hydeNamespaceTTL   = 30 * time.Minute
	entityNamespaceTTL = time.Hour

	hydePrompt = `Write the kind of answer that would exist in the knowledge base for the following query. Be concrete and specific, as if quoting a stored fact.`

	extractEntitiesPrompt = `Extract up to 5 distinct named entities (people, organizations, products, concepts) mentioned in the text.
Return a JSON object {"entities": ["name1", "name2", ...]}.`
)

// Search implements spec.md §4.7.2: HyDE-seeded vector search followed
// by up to MaxHops rounds of entity extraction + graph expansion +
// secondary vector search, accumulated into an id-keyed set, optionally
// reranked by the LLM.
func (e *Engine) Search(ctx context.Context, query, tenant, user string) ([]vectorstore.Record, error) {
	filter := map[string]string{"tenant_id": tenant}
	if user != "" {
		filter["user_id"] = user
	}

	hyde, err := e.hyde(ctx, query)
	if err != nil {
		return nil, err
	}

	vectors, err := e.emb.EmbedBatch(ctx, []string{hyde})
	if err != nil {
		return nil, err
	}

	hits, err := e.vector.Search(ctx, vectors[0], e.cfg.RAGTopK, filter)
	if err != nil {
		return nil, err
	}

	accIDs := make([]string, 0, len(hits))
	acc := make(map[string]vectorstore.Record, len(hits))
	for _, h := range hits {
		if _, ok := acc[h.ID]; !ok {
			acc[h.ID] = h
			accIDs = append(accIDs, h.ID)
		}
	}

	for hop := 0; hop < e.cfg.MaxHops; hop++ {
		if len(acc) == 0 {
			break
		}
		if len(acc) >= e.cfg.RerankCandidatesMax {
			break
		}

		blob := contentBlob(acc, accIDs, 200)
		entities, err := e.extractEntities(ctx, blob)
		if err != nil {
			e.log.Error("entity_extraction_failed", map[string]any{"error": err.Error()})
			continue
		}
		if len(entities) == 0 {
			continue
		}
		if _, isNoop := e.graph.(graphstore.Noop); isNoop {
			continue
		}

		neighbors, err := e.graph.Expand(ctx, entities, 1)
		if err != nil {
			e.log.Error("graph_expand_failed", map[string]any{"error": err.Error()})
			continue
		}
		if len(neighbors) == 0 {
			continue
		}

		vn, err := e.emb.EmbedBatch(ctx, []string{strings.Join(neighbors, " ")})
		if err != nil {
			return nil, err
		}
		more, err := e.vector.Search(ctx, vn[0], 3, filter)
		if err != nil {
			return nil, err
		}
		for _, m := range more {
			if _, ok := acc[m.ID]; !ok {
				acc[m.ID] = m
				accIDs = append(accIDs, m.ID)
			}
		}
	}

	docs := make([]vectorstore.Record, len(accIDs))
	for i, id := range accIDs {
		docs[i] = acc[id]
	}

	if len(docs) > e.cfg.RerankFinalLimit {
		docs = e.rerank(ctx, query, docs)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	if len(ids) > 0 {
		if err := e.vector.IncrementCounter(ctx, ids); err != nil {
			e.log.Error("increment_counter_failed", map[string]any{"error": err.Error()})
		}
	}

	return docs, nil
}

func (e *Engine) hyde(ctx context.Context, query string) (string, error) {
	fp := ttlcache.Fingerprint(query)
	raw, err := e.cache.GetOrCompute("hyde", fp, hydeNamespaceTTL, func() (any, error) {
		return e.llm.Chat(ctx, hydePrompt, query)
	})
	if err != nil {
		return "", err
	}
	return raw.(string), nil
}

func (e *Engine) extractEntities(ctx context.Context, blob string) ([]string, error) {
	fp := ttlcache.Fingerprint(blob)
	raw, err := e.cache.GetOrCompute("ent", fp, entityNamespaceTTL, func() (any, error) {
		return e.llm.ChatJSON(ctx, extractEntitiesPrompt, blob)
	})
	if err != nil {
		return nil, err
	}
	obj, _ := raw.(map[string]any)
	rawEntities, _ := obj["entities"].([]any)
	var out []string
	for _, re := range rawEntities {
		if s, ok := re.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
		if len(out) >= 5 {
			break
		}
	}
	return out, nil
}

func contentBlob(acc map[string]vectorstore.Record, ids []string, perDocChars int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		c := acc[id].Content
		if len(c) > perDocChars {
			c = c[:perDocChars]
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " ")
}
