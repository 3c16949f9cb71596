package triggers

import (
	"fmt"
	"math"
	"strings"

	"github.com/tradefork/engine/pkg/models"
)

// MatchCondition checks a trigger against the current hot snapshot,
// keyed "{stream_type}/{symbol|all}". Pure code, no model calls.
// A missing or non-numeric current value is a non-match, not an error.
func MatchCondition(trigger *models.UserTrigger, snapshot map[string]models.JSONMap) bool {
	if len(trigger.Condition) == 0 {
		if trigger.CompositeLogic != nil {
			return matchComposite(trigger, snapshot)
		}
		return false
	}
	return matchLeaf(trigger.Condition, snapshot)
}

func matchLeaf(cond models.JSONMap, snapshot map[string]models.JSONMap) bool {
	condType, _ := cond.String("type")
	symbol, _ := cond.String("symbol")

	// news_keyword is the only condition without a numeric value
	if condType == models.CondNewsKeyword {
		keyword, ok := cond.String("keyword")
		if !ok || keyword == "" {
			return false
		}
		return headlinesContain(snapshot["news/all"], keyword)
	}

	value, ok := cond.Float("value")
	if !ok {
		return false
	}

	priceData := snapshot["price/"+symbol]

	switch condType {
	case models.CondPriceAbove:
		last, ok := priceData.Float("last")
		return ok && last >= value
	case models.CondPriceBelow:
		last, ok := priceData.Float("last")
		return ok && last <= value
	case models.CondFundingAbove:
		rate, ok := snapshot["funding/"+symbol].Float("rate")
		return ok && rate >= value
	case models.CondFundingBelow:
		rate, ok := snapshot["funding/"+symbol].Float("rate")
		return ok && rate <= value
	case models.CondVolumeSpike:
		ratio, ok := priceData.Float("volume_ratio")
		return ok && ratio >= value
	case models.CondOIChange:
		change, ok := snapshot["oi/"+symbol].Float("change_pct")
		return ok && math.Abs(change) >= value
	case models.CondKimchiPremium:
		premium, ok := snapshot["spread/kimchi"].Float("premium_pct")
		return ok && premium >= value
	}

	return false
}

func headlinesContain(newsData models.JSONMap, keyword string) bool {
	raw, ok := newsData["headlines"]
	if !ok {
		return false
	}
	headlines, ok := raw.([]interface{})
	if !ok {
		return false
	}

	needle := strings.ToLower(keyword)
	for _, h := range headlines {
		headline, ok := h.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(headline), needle) {
			return true
		}
	}
	return false
}

// matchComposite evaluates "<lhs> <op> <rhs>" where both sides are
// variables bound from base_streams_needed as "{stream_type}_{key}".
// Any missing binding means no match. The expression is never
// executed as code.
func matchComposite(trigger *models.UserTrigger, snapshot map[string]models.JSONMap) bool {
	logic := strings.TrimSpace(*trigger.CompositeLogic)
	if logic == "" {
		return false
	}

	variables := bindVariables(trigger.BaseStreamsNeeded, snapshot)
	if len(variables) == 0 {
		return false
	}

	parts := strings.Fields(logic)
	if len(parts) != 3 {
		return false
	}

	left, leftOK := variables[parts[0]]
	right, rightOK := variables[parts[2]]
	if !leftOK || !rightOK {
		return false
	}

	switch parts[1] {
	case ">":
		return left > right
	case "<":
		return left < right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	case "==":
		return left == right
	}
	return false
}

// bindVariables flattens each needed stream's current value into
// numeric variables named "{stream_type}_{field}"
func bindVariables(needed models.JSONList, snapshot map[string]models.JSONMap) map[string]float64 {
	variables := make(map[string]float64)

	for _, entry := range needed {
		info, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		spec := models.JSONMap(info)

		streamType, _ := spec.String("stream_type")
		symbol, ok := spec.String("symbol")
		if !ok || symbol == "" {
			symbol, _ = spec.String("source")
		}

		data := snapshot[streamType+"/"+symbol]
		for field := range data {
			if v, ok := data.Float(field); ok {
				variables[streamType+"_"+field] = v
			}
		}
	}
	return variables
}

// conditionLabel renders a leaf condition type for alert text
func conditionLabel(cond models.JSONMap) string {
	condType, _ := cond.String("type")
	switch condType {
	case models.CondPriceAbove:
		return "가격 도달"
	case models.CondPriceBelow:
		return "가격 이하"
	case models.CondFundingAbove:
		return "펀딩비 이상"
	case models.CondFundingBelow:
		return "펀딩비 이하"
	case models.CondVolumeSpike:
		return "거래대금 급증"
	case models.CondOIChange:
		return "OI 변화"
	case models.CondKimchiPremium:
		return "김프 도달"
	case models.CondNewsKeyword:
		return "뉴스 키워드"
	}
	return "조건 충족"
}

// ConditionSymbol extracts the symbol a trigger watches, if any
func ConditionSymbol(trigger *models.UserTrigger) string {
	if trigger.Condition == nil {
		return ""
	}
	symbol, _ := trigger.Condition.String("symbol")
	return symbol
}

func formatValue(v interface{}) string {
	if f, ok := models.JSONMap{"v": v}.Float("v"); ok {
		if f == math.Trunc(f) {
			return fmt.Sprintf("%.0f", f)
		}
		return fmt.Sprintf("%g", f)
	}
	return fmt.Sprintf("%v", v)
}
