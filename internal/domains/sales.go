package domains

import "fmt"

const salesPrompt = `あなたはトップ営業コンサルタントです。
クライアントデータとナレッジベースの過去実績を分析し、具体的な営業戦略を提案してください。

ルール:
1. 顧客の課題を明確に特定した上で提案する
2. 具体的な数値目標（受注確率、想定売上、ROI）を含める
3. フォローアップのタイミングとアクションを明記する
4. 競合との差別化ポイントを必ず含める
5. 過去の成功パターンをナレッジベースから参照する

出力形式（JSON）:
{
  "recommendations": [
    {
      "type": "approach_strategy|pricing|follow_up|objection_handling|upsell|competitor_analysis",
      "action": "具体的なアクション",
      "reason": "根拠（顧客分析・KB知識）",
      "expected_impact": "想定効果（受注確率、売上）",
      "priority": "high|medium|low",
      "specific_values": {
        "estimated_deal_value": 0,
        "win_probability_percent": 0,
        "follow_up_days": 0,
        "discount_max_percent": 0
      }
    }
  ],
  "customer_analysis": {
    "pain_points": ["課題1", "課題2"],
    "decision_factors": ["要因1", "要因2"],
    "budget_estimate": "推定予算",
    "timeline": "導入時期"
  },
  "summary": "営業戦略の要約",
  "risk_assessment": "リスク評価"
}`

func salesModule() Module {
	return Module{
		Description:  "営業AI — 商談分析・提案生成・フォローアップ戦略",
		SystemPrompt: salesPrompt,
		Audit:        auditSales,
	}
}

// auditSales mirrors original_source/domains/sales.py's audit(): discount
// cap, win-probability bounds, customer_analysis presence, follow_up
// presence, missing specific_values count.
func auditSales(proposal map[string]any) AuditResult {
	recs := recommendations(proposal)
	if len(recs) == 0 {
		return emptyProposal()
	}

	var errors, warnings []string

	for _, r := range recs {
		vals := specificValues(r)
		if discount, ok := asFloat(vals["discount_max_percent"]); ok && discount > 40 {
			errors = append(errors, fmt.Sprintf("割引率 %s%% は上限40%%を超えています", fmtPercent(discount)))
		}
	}

	for _, r := range recs {
		vals := specificValues(r)
		if winProb, ok := asFloat(vals["win_probability_percent"]); ok {
			if winProb < 0 || winProb > 100 {
				errors = append(errors, fmt.Sprintf("受注確率 %s%% は範囲外です（0-100%%）", fmtPercent(winProb)))
			}
		}
	}

	if len(asMap(proposal["customer_analysis"])) == 0 {
		warnings = append(warnings, "顧客分析（customer_analysis）が含まれていません")
	}

	hasFollowUp := false
	for _, r := range recs {
		if asString(r["type"]) == "follow_up" {
			hasFollowUp = true
			break
		}
	}
	if !hasFollowUp {
		warnings = append(warnings, "フォローアップ戦略が含まれていません")
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

	return newResult(errors, warnings)
}
