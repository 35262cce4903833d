package domains

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_List_ReturnsAllFourDomains(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	require.Len(t, list, 4)

	ids := map[string]bool{}
	for _, info := range list {
		ids[info.ID] = true
		require.NotEmpty(t, info.Description)
	}
	require.True(t, ids["ad_optimization"])
	require.True(t, ids["music_production"])
	require.True(t, ids["sales"])
	require.True(t, ids["customer_support"])
}

func TestRegistry_GetPrompt_UnknownDomainFallsBackToGeneric(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, defaultPrompt, r.GetPrompt("custom"))
	require.NotEqual(t, defaultPrompt, r.GetPrompt("sales"))
}

// S1 — empty proposal, any domain.
func TestAudit_S1_EmptyProposalAnyDomain(t *testing.T) {
	r := NewRegistry()
	result := r.Audit(map[string]any{}, "ad_optimization")
	require.False(t, result.IsValid)
	require.Equal(t, []string{"提案が空です"}, result.Errors)
	require.Empty(t, result.Warnings)
}

// S2 — valid ad proposal.
func TestAudit_S2_ValidAdProposal(t *testing.T) {
	r := NewRegistry()
	proposal := map[string]any{
		"recommendations": []any{
			map[string]any{
				"type":   "bid_adjustment",
				"action": "raise bid by 15%",
				"specific_values": map[string]any{
					"bid_change_percent": 15.0,
				},
				"priority": "high",
			},
		},
	}
	result := r.Audit(proposal, "ad_optimization")
	require.True(t, result.IsValid)
	require.Empty(t, result.Errors)
}

// S3 — extreme bid.
func TestAudit_S3_ExtremeBid(t *testing.T) {
	r := NewRegistry()
	proposal := map[string]any{
		"recommendations": []any{
			map[string]any{
				"type":   "bid_adjustment",
				"action": "raise bid by 80%",
				"specific_values": map[string]any{
					"bid_change_percent": 80.0,
				},
			},
		},
	}
	result := r.Audit(proposal, "ad_optimization")
	require.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "80")
}

// S4 — music production valid.
func TestAudit_S4_MusicProductionValid(t *testing.T) {
	r := NewRegistry()
	proposal := map[string]any{
		"recommendations": []any{
			map[string]any{
				"type": "synth_patch",
				"specific_values": map[string]any{
					"filter_cutoff":    0.35,
					"filter_resonance": 0.6,
				},
			},
		},
		"track_structure": map[string]any{
			"bpm":      145.0,
			"sections": []any{"intro", "drop"},
			"channels": []any{"kick", "bass", "lead"},
		},
	}
	result := r.Audit(proposal, "music_production")
	require.True(t, result.IsValid)
}

// S5 — music production invalid BPM.
func TestAudit_S5_MusicProductionInvalidBPM(t *testing.T) {
	r := NewRegistry()
	proposal := map[string]any{
		"recommendations": []any{
			map[string]any{"type": "synth_patch"},
		},
		"track_structure": map[string]any{"bpm": 999.0},
	}
	result := r.Audit(proposal, "music_production")
	require.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "BPM")
}

// S7 — propose with unknown domain: audit passes with no rules applied.
func TestAudit_S7_UnknownDomainNoRules(t *testing.T) {
	r := NewRegistry()
	proposal := map[string]any{
		"recommendations": []any{
			map[string]any{"type": "whatever"},
		},
	}
	result := r.Audit(proposal, "custom")
	require.True(t, result.IsValid)
	require.Empty(t, result.Errors)
}

func TestAudit_EmptyRecommendations_AlwaysFailsRegardlessOfDomain(t *testing.T) {
	r := NewRegistry()
	for _, domain := range []string{"ad_optimization", "music_production", "sales", "customer_support", "custom"} {
		result := r.Audit(map[string]any{"recommendations": []any{}}, domain)
		require.False(t, result.IsValid, "domain %s", domain)
	}
}

func TestAudit_BoundaryValues(t *testing.T) {
	r := NewRegistry()

	t.Run("BPM 30 and 300 pass, 29 and 301 fail", func(t *testing.T) {
		for _, tc := range []struct {
			bpm     float64
			isValid bool
		}{
			{30, true}, {300, true}, {29, false}, {301, false},
		} {
			proposal := map[string]any{
				"recommendations": []any{map[string]any{"type": "x"}},
				"track_structure": map[string]any{"bpm": tc.bpm},
			}
			result := r.Audit(proposal, "music_production")
			require.Equal(t, tc.isValid, result.IsValid, "bpm=%v", tc.bpm)
		}
	})

	t.Run("bid_change_percent 50 passes, 50.01 and -50.01 fail", func(t *testing.T) {
		for _, tc := range []struct {
			pct     float64
			isValid bool
		}{
			{50, true}, {-50, true}, {50.01, false}, {-50.01, false},
		} {
			proposal := map[string]any{
				"recommendations": []any{
					map[string]any{"specific_values": map[string]any{"bid_change_percent": tc.pct}},
				},
			}
			result := r.Audit(proposal, "ad_optimization")
			require.Equal(t, tc.isValid, result.IsValid, "pct=%v", tc.pct)
		}
	})

	t.Run("discount_max_percent 40 passes, 41 fails", func(t *testing.T) {
		for _, tc := range []struct {
			pct     float64
			isValid bool
		}{
			{40, true}, {41, false},
		} {
			proposal := map[string]any{
				"recommendations": []any{
					map[string]any{"specific_values": map[string]any{"discount_max_percent": tc.pct, "win_probability_percent": 50.0}},
				},
			}
			result := r.Audit(proposal, "sales")
			require.Equal(t, tc.isValid, result.IsValid, "pct=%v", tc.pct)
		}
	})

	t.Run("escalation_level 0 and 3 pass, -1 and 4 fail", func(t *testing.T) {
		for _, tc := range []struct {
			level   float64
			isValid bool
		}{
			{0, true}, {3, true}, {-1, false}, {4, false},
		} {
			proposal := map[string]any{
				"recommendations": []any{
					map[string]any{"specific_values": map[string]any{"escalation_level": tc.level}},
				},
			}
			result := r.Audit(proposal, "customer_support")
			require.Equal(t, tc.isValid, result.IsValid, "level=%v", tc.level)
		}
	})
}

func TestAuditResult_IsValidIffNoErrors(t *testing.T) {
	r := NewRegistry()
	cases := []map[string]any{
		{"recommendations": []any{}},
		{"recommendations": []any{map[string]any{"specific_values": map[string]any{"bid_change_percent": 999.0}}}},
		{"recommendations": []any{map[string]any{"type": "bid_adjustment", "action": "raise"}}},
	}
	for _, proposal := range cases {
		result := r.Audit(proposal, "ad_optimization")
		require.Equal(t, len(result.Errors) == 0, result.IsValid)
	}
}
