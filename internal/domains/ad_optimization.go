package domains

import (
	"fmt"
	"strings"
)

const adOptimizationPrompt = `あなたは広告運用の上級コンサルタントです。
以下のルールに従って提案を生成してください：

1. 「守り」だけでなく「攻め」の提案を必ず含める（入札引き上げ、新KW追加等）
2. 具体的な数値（入札額、予算額、想定CPA）を含める
3. 季節・天候・地域の特性を考慮する
4. 過去の成功パターンがあれば必ず参照する

出力形式（JSON）:
{
  "recommendations": [
    {
      "type": "bid_adjustment|keyword_add|keyword_exclude|budget_change|targeting",
      "action": "具体的なアクション",
      "reason": "根拠",
      "expected_impact": "想定効果",
      "priority": "high|medium|low",
      "specific_values": {}
    }
  ],
  "summary": "全体の方針要約",
  "risk_assessment": "リスク評価"
}`

func adOptimizationModule() Module {
	return Module{
		Description:  "広告運用の最適化提案（入札、KW、予算、ターゲティング）",
		SystemPrompt: adOptimizationPrompt,
		Audit:        auditAdOptimization,
	}
}

// auditAdOptimization mirrors original_source/domains/ad_optimization.py's
// audit() rule-for-rule: offensive-recommendation check, missing
// specific_values count, bid/budget change bounds.
func auditAdOptimization(proposal map[string]any) AuditResult {
	recs := recommendations(proposal)
	if len(recs) == 0 {
		return emptyProposal()
	}

	var errors, warnings []string

	hasOffensive := false
	for _, r := range recs {
		t := asString(r["type"])
		action := asString(r["action"])
		switch t {
		case "bid_adjustment", "keyword_add", "targeting", "budget_change":
			if !strings.Contains(action, "引き下げ") && !strings.Contains(action, "削減") {
				hasOffensive = true
			}
		}
	}
	if !hasOffensive {
		warnings = append(warnings, "全ての提案が守備的です。攻めの提案を追加してください。")
	}

	missing := 0
	for _, r := range recs {
		if len(specificValues(r)) == 0 {
			missing++
		}
	}
	if missing > 0 {
		warnings = append(warnings, fmt.Sprintf("%d件の提案に具体的な数値がありません", missing))
	}

	for _, r := range recs {
		vals := specificValues(r)
		if bidChange, ok := asFloat(vals["bid_change_percent"]); ok {
			if bidChange > 50 || bidChange < -50 {
				errors = append(errors, fmt.Sprintf("入札変更率が%s%%は極端すぎます（上限±50%%）", fmtPercent(bidChange)))
			}
		}
	}

	for _, r := range recs {
		vals := specificValues(r)
		if budgetChange, ok := asFloat(vals["budget_change_percent"]); ok {
			if budgetChange > 30 || budgetChange < -30 {
				warnings = append(warnings, fmt.Sprintf("予算変更率%s%%は急激です（推奨±30%%以内）", fmtPercent(budgetChange)))
			}
		}
	}

	return newResult(errors, warnings)
}
