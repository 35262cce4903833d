// Package domains implements the per-domain system prompt + rule-based
// audit registry (spec.md §4.6). It is a static compile-time table —
// Go has no dynamic module discovery, so NewRegistry builds it from a
// fixed list, per DESIGN NOTES §9 ("discovery can be a static
// compile-time list if dynamic loading is unavailable").
package domains

import "fmt"

// AuditResult classifies a generated proposal's validity.
// Invariant: IsValid ⇔ len(Errors) == 0.
type AuditResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newResult(errs, warns []string) AuditResult {
	if errs == nil {
		errs = []string{}
	}
	if warns == nil {
		warns = []string{}
	}
	return AuditResult{IsValid: len(errs) == 0, Errors: errs, Warnings: warns}
}

func emptyProposal() AuditResult {
	return AuditResult{IsValid: false, Errors: []string{"提案が空です"}, Warnings: []string{}}
}

// Module is a pluggable domain: a human label, the system prompt that
// dictates the proposal's JSON schema, and a pure audit function.
type Module struct {
	Description  string
	SystemPrompt string
	Audit        func(proposal map[string]any) AuditResult
}

// Info is the id/description pair returned by GET /v1/domains.
type Info struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

const defaultPrompt = `あなたは分析エキスパートです。` +
	`データに基づいた具体的な提案をJSON形式で生成してください。` +
	`出力形式: {"recommendations": [{"type": str, "action": str, ` +
	`"reason": str, "expected_impact": str, "priority": "high|medium|low", ` +
	`"specific_values": {}}], "summary": str, "risk_assessment": str}`

// Registry holds the fixed set of discovered domain modules.
type Registry struct {
	modules map[string]Module
}

// NewRegistry builds the registry with the four built-in domains
// (ad_optimization, music_production, sales, customer_support), grounded
// on original_source/domains/__init__.py's _REGISTRY.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{
		"ad_optimization":   adOptimizationModule(),
		"music_production":  musicProductionModule(),
		"sales":             salesModule(),
		"customer_support":  customerSupportModule(),
	}}
}

// GetPrompt returns the domain's SYSTEM_PROMPT, or the generic fallback
// for an unknown domain.
func (r *Registry) GetPrompt(domain string) string {
	if m, ok := r.modules[domain]; ok {
		return m.SystemPrompt
	}
	return defaultPrompt
}

// Audit runs the domain's rule-based audit. Every domain's audit starts
// with the empty-recommendations check; unknown domains fall back to
// "non-empty recommendations only" (scenario S7).
func (r *Registry) Audit(proposal map[string]any, domain string) AuditResult {
	recs, _ := proposal["recommendations"].([]any)
	if len(recs) == 0 {
		return emptyProposal()
	}
	if m, ok := r.modules[domain]; ok {
		return m.Audit(proposal)
	}
	return newResult(nil, nil)
}

// List returns every registered domain's id/description, for
// GET /v1/domains.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.modules))
	for id, m := range r.modules {
		out = append(out, Info{ID: id, Description: m.Description})
	}
	return out
}

// --- shared helpers used by the per-domain rule files ---

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func recommendations(proposal map[string]any) []map[string]any {
	raw, _ := proposal["recommendations"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m := asMap(r); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func specificValues(rec map[string]any) map[string]any {
	return asMap(rec["specific_values"])
}

func fmtPercent(v float64) string {
	return fmt.Sprintf("%g", v)
}
