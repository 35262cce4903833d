package contextengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/domains"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

const (
	userDataQueryMaxChars = 1000
	contextDocMaxChars    = 300
	contextDocMaxCount    = 10
	userDataJSONMaxChars  = 2000
	historyJSONMaxChars   = 1000

	noContextFallback = "(no related knowledge — generate from general analysis)"
)

// Result is the response shape for Propose.
type Result struct {
	ProposalID      string
	Proposal        map[string]any
	Audit           domains.AuditResult
	ContextDocsUsed int
}

// Propose implements spec.md §4.7.4. Archival of the resulting proposal
// is the HTTP layer's responsibility, not the engine's — the engine
// stays side-effect-free with respect to the proposal store.
func (e *Engine) Propose(ctx context.Context, userData map[string]any, tenant, domain string, accountHistory map[string]any) (Result, error) {
	query := serializeUserData(userData, userDataQueryMaxChars)

	ctxDocs, err := e.Search(ctx, query, tenant, "")
	if err != nil {
		return Result{}, err
	}

	ctxText := buildContextText(ctxDocs, e.cfg.ContextMaxChars)

	system := e.domains.GetPrompt(domain)
	user := buildProposalUserBlock(ctxText, userData, accountHistory)

	proposal, err := e.llm.ChatJSON(ctx, system, user)
	if err != nil {
		return Result{}, err
	}

	audit := e.domains.Audit(proposal, domain)

	return Result{
		ProposalID:      newID(),
		Proposal:        proposal,
		Audit:           audit,
		ContextDocsUsed: len(ctxDocs),
	}, nil
}

// serializeUserData joins k: v pairs space-separated in sorted key order
// for determinism, then truncates — grounded on spec.md §4.7.4 step 1.
func serializeUserData(userData map[string]any, maxChars int) string {
	keys := make([]string, 0, len(userData))
	for k := range userData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, userData[k]))
	}
	return truncateRunes(strings.Join(parts, " "), maxChars)
}

// truncateRunes truncates by rune count, not byte count, so multi-byte
// UTF-8 text (e.g. Japanese content) is never split mid-character.
func truncateRunes(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}

// buildContextText implements spec.md §4.7.4 step 3: first 10 docs,
// each truncated to 300 chars, newline-joined, then truncated as a
// whole to maxChars. Falls back to a fixed sentinel when ctxDocs is
// empty.
func buildContextText(ctxDocs []vectorstore.Record, maxChars int) string {
	if len(ctxDocs) == 0 {
		return noContextFallback
	}
	n := len(ctxDocs)
	if n > contextDocMaxCount {
		n = contextDocMaxCount
	}
	lines := make([]string, n)
	for i := 0; i < n; i++ {
		lines[i] = truncateRunes(ctxDocs[i].Content, contextDocMaxChars)
	}
	return truncateRunes(strings.Join(lines, "\n"), maxChars)
}

// buildProposalUserBlock assembles the structured instruction block from
// spec.md §4.7.4 step 5: context text, JSON-pretty user_data (≤2000
// chars) and account_history (≤1000 chars), with an instruction to
// return JSON.
func buildProposalUserBlock(ctxText string, userData, accountHistory map[string]any) string {
	userDataJSON := prettyJSONTruncated(userData, userDataJSONMaxChars)
	historyJSON := prettyJSONTruncated(accountHistory, historyJSONMaxChars)

	var b strings.Builder
	b.WriteString("Related knowledge:\n")
	b.WriteString(ctxText)
	b.WriteString("\n\nUser data:\n")
	b.WriteString(userDataJSON)
	b.WriteString("\n\nAccount history:\n")
	b.WriteString(historyJSON)
	b.WriteString("\n\nRespond with a single JSON object only.")
	return b.String()
}

func prettyJSONTruncated(v map[string]any, maxChars int) string {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return truncateRunes(string(b), maxChars)
}
