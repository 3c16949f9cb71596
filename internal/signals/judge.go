package signals

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/pkg/models"
)

// judgeSystemPrompt is the static persona block, identical across
// users so the provider can cache it
const judgeSystemPrompt = `너는 FORKER — 유저의 투자 분신이야. 시그널 트리거가 발동했고, 수집된 데이터를 바탕으로 판단해야 해.

## 판단 규칙
1. "FORKER 추천"이 아닌 "너처럼 봤을 때" 관점으로 판단
2. 유저의 매매 패턴, 원칙, 스타일을 반영
3. 반대 근거를 반드시 포함 (한쪽으로 치우치지 않기)
4. 손절 기준은 유저 원칙에서 가져오기
5. 확신도 3축 각각 솔직하게 (데이터 부족하면 낮게)

## 확신도 3축
- style_match: 이 시그널이 유저 매매 스타일/패턴에 얼마나 부합하는지 (0.0~1.0)
- historical_similar: 과거 유사 상황에서의 성과 (0.0~1.0, 데이터 부족하면 0.5)
- market_context: 현재 시장 맥락의 적합성 (0.0~1.0)

## 출력 형식
반드시 아래 JSON 블록을 응답에 포함해:

` + "```json" + `
{
  "signal_type": "trade_signal" 또는 "briefing",
  "direction": "long" | "short" | "exit" | "watch",
  "reasoning": "판단 근거 (2~4문장, '너처럼 봤을 때' 어투)",
  "counter_argument": "반대 근거 (1~2문장)",
  "confidence": {
    "style_match": 0.0~1.0,
    "historical_similar": 0.0~1.0,
    "market_context": 0.0~1.0
  },
  "stop_loss": "손절 기준 (예: '-5%' 또는 '95,000')"
}
` + "```" + `

JSON 블록 앞에 유저에게 보여줄 자연어 설명을 먼저 작성해.`

// Judged is the structured result of one judge call
type Judged struct {
	Kind              string
	Direction         string
	Reasoning         string
	CounterArgument   *string
	StopLoss          *string
	Confidence        float64
	ConfidenceStyle   *float64
	ConfidenceHistory *float64
	ConfidenceMarket  *float64
	Content           string
}

var (
	confidencePattern = regexp.MustCompile(`확신도[:\s]*(\d+)`)
	counterPattern    = regexp.MustCompile(`(?s)(?:반대|⚠️).*?[:：]\s*(.+?)(?:\n\n|$)`)
	stopLossPattern   = regexp.MustCompile(`손절[:\s]*(.+?)(?:\n|$)`)
)

var directionKeywords = []struct {
	direction string
	keywords  []string
}{
	{models.DirectionLong, []string{"롱", "long", "buy", "매수", "진입"}},
	{models.DirectionShort, []string{"숏", "short", "sell", "매도"}},
	{models.DirectionExit, []string{"청산", "exit", "탈출"}},
}

// ParseJudgeResponse structures a judge reply. The model is asked for
// a JSON block but may answer in prose; both forms are handled.
func ParseJudgeResponse(raw string) *Judged {
	if data, err := ai.ExtractJSON(raw); err == nil {
		if judged := fromJSON(data, raw); judged != nil {
			return judged
		}
	}
	return fromProse(raw)
}

func fromJSON(data models.JSONMap, raw string) *Judged {
	reasoning, ok := data.String("reasoning")
	if !ok || reasoning == "" {
		return nil
	}

	judged := &Judged{
		Kind:      models.SignalTrade,
		Direction: models.DirectionWatch,
		Reasoning: reasoning,
	}
	if kind, ok := data.String("signal_type"); ok && kind != "" {
		judged.Kind = kind
	}
	if direction, ok := data.String("direction"); ok && direction != "" {
		judged.Direction = direction
	}
	if counter, ok := data.String("counter_argument"); ok && counter != "" {
		judged.CounterArgument = &counter
	}
	if stop, ok := data.String("stop_loss"); ok && stop != "" {
		judged.StopLoss = &stop
	}

	applyConfidence(judged, data["confidence"])

	var parts []string
	parts = append(parts, reasoning)
	if judged.CounterArgument != nil {
		parts = append(parts, "반대 근거: "+*judged.CounterArgument)
	}
	judged.Content = strings.Join(parts, "\n\n")
	return judged
}

// applyConfidence handles both the three-axis object and a single
// scalar. Scalars above 1 are read as percentages.
func applyConfidence(judged *Judged, raw interface{}) {
	if axes, ok := raw.(map[string]interface{}); ok {
		m := models.JSONMap(axes)
		style := axisOrDefault(m, "style_match")
		history := axisOrDefault(m, "historical_similar")
		market := axisOrDefault(m, "market_context")
		judged.ConfidenceStyle = &style
		judged.ConfidenceHistory = &history
		judged.ConfidenceMarket = &market
		judged.Confidence = models.CombineConfidence(style, history, market)
		return
	}

	value := 0.5
	if f, ok := (models.JSONMap{"v": raw}).Float("v"); ok {
		value = f
	}
	if value > 1 {
		value = value / 100
	}
	judged.Confidence = clamp01(value)
}

func axisOrDefault(m models.JSONMap, key string) float64 {
	if v, ok := m.Float(key); ok {
		return clamp01(v)
	}
	return 0.5
}

func fromProse(raw string) *Judged {
	lower := strings.ToLower(raw)

	direction := models.DirectionWatch
	for _, entry := range directionKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				direction = entry.direction
				break
			}
		}
		if direction != models.DirectionWatch {
			break
		}
	}

	confidence := 0.5
	if m := confidencePattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			confidence = v
			if confidence > 1 {
				confidence = confidence / 100
			}
			confidence = clamp01(confidence)
		}
	}

	var counter *string
	if m := counterPattern.FindStringSubmatch(raw); m != nil {
		text := truncateRunes(strings.TrimSpace(m[1]), 500)
		counter = &text
	}

	var stopLoss *string
	if m := stopLossPattern.FindStringSubmatch(raw); m != nil {
		text := strings.TrimSpace(m[1])
		stopLoss = &text
	}

	kind := models.SignalTrade
	for _, kw := range []string{"브리핑", "briefing", "참고"} {
		if strings.Contains(lower, kw) {
			kind = models.SignalBriefing
			break
		}
	}

	return &Judged{
		Kind:            kind,
		Direction:       direction,
		Reasoning:       truncateRunes(raw, 1000),
		CounterArgument: counter,
		StopLoss:        stopLoss,
		Confidence:      confidence,
		Content:         truncateRunes(raw, 2000),
	}
}

// FormatSignalMessage renders the delivered advisory with the
// three-axis confidence bars when available
func FormatSignalMessage(judged *Judged, symbol string) string {
	dirLabel := map[string]string{
		models.DirectionLong:  "🟢 롱",
		models.DirectionShort: "🔴 숏",
		models.DirectionExit:  "🚪 청산",
		models.DirectionWatch: "👀 관망",
	}[judged.Direction]
	if dirLabel == "" {
		dirLabel = "👀 관망"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 %s %s 상황\n\n", symbol, dirLabel)
	fmt.Fprintf(&b, "📊 판단 근거:\n%s\n", truncateRunes(judged.Reasoning, 800))

	counter := "반대 시나리오도 항상 존재해. 리스크 관리 필수."
	if judged.CounterArgument != nil && *judged.CounterArgument != "" {
		counter = truncateRunes(*judged.CounterArgument, 400)
	}
	fmt.Fprintf(&b, "\n⚠️ 반대 근거:\n%s\n", counter)

	fmt.Fprintf(&b, "\n📍 확신도: %.0f%%\n", judged.Confidence*100)
	if judged.ConfidenceStyle != nil && judged.ConfidenceHistory != nil && judged.ConfidenceMarket != nil {
		b.WriteString(confidenceBar("스타일 매칭", *judged.ConfidenceStyle) + "\n")
		b.WriteString(confidenceBar("유사 과거 ", *judged.ConfidenceHistory) + "\n")
		b.WriteString(confidenceBar("시장 맥락 ", *judged.ConfidenceMarket) + "\n")
	}

	if judged.StopLoss != nil && *judged.StopLoss != "" {
		fmt.Fprintf(&b, "\n🛑 손절: %s\n", *judged.StopLoss)
	}

	b.WriteString("\n어떻게 생각해?\n")
	b.WriteString("\n⚠️ TRADEFORK는 매매를 대행하지 않습니다. 최종 판단은 본인의 몫입니다.")
	return b.String()
}

func confidenceBar(label string, value float64) string {
	filled := int(clamp01(value)*10 + 0.5)
	return fmt.Sprintf("  %s  %s%s  %.0f%%",
		label,
		strings.Repeat("█", filled),
		strings.Repeat("░", 10-filled),
		value*100,
	)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncateRunes(s string, max int) string {
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max])
	}
	return s
}
