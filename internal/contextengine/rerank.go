package contextengine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

const rerankSystemPrompt = `You rerank knowledge-base search results by relevance to a query.
Given a numbered list of document summaries, return a JSON object
{"order": [<index>, <index>, ...]} listing every index in best-first order.
Indices refer to the numbers shown in the list, not array positions.`

// rerank implements spec.md §4.7.3. On any LLM failure, empty, or
// malformed response it falls back to the first RerankFinalLimit docs
// in accumulator order rather than propagating an error — reranking is
// a quality improvement, not a correctness requirement.
func (e *Engine) rerank(ctx context.Context, query string, docs []vectorstore.Record) []vectorstore.Record {
	limit := e.cfg.RerankFinalLimit
	fallback := func() []vectorstore.Record {
		if len(docs) > limit {
			return docs[:limit]
		}
		return docs
	}

	if e.llm == nil {
		return fallback()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, d := range docs {
		summary := d.Content
		if len(summary) > 150 {
			summary = summary[:150]
		}
		fmt.Fprintf(&b, "%d. %s\n", i, summary)
	}

	resp, err := e.llm.ChatJSON(ctx, rerankSystemPrompt, b.String())
	if err != nil {
		e.log.Error("rerank_failed", map[string]any{"error": err.Error()})
		return fallback()
	}

	rawOrder, _ := resp["order"].([]any)
	if len(rawOrder) == 0 {
		return fallback()
	}

	out := make([]vectorstore.Record, 0, limit)
	for _, v := range rawOrder {
		idx, ok := asIndex(v)
		if !ok || idx < 0 || idx >= len(docs) {
			continue
		}
		out = append(out, docs[idx])
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return fallback()
	}
	return out
}

func asIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
