package intel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tradefork/engine/pkg/models"
)

// Habit detection kicks in once the ratio clears this share
const habitRatioThreshold = 0.3

// Trading-hour buckets, UTC
var hourBuckets = []string{"00-06", "06-12", "12-18", "18-24"}

// SymbolCount is one entry of the most-traded list
type SymbolCount struct {
	Symbol string
	Count  int
}

// Patterns summarizes a user's trading history for the judge context
type Patterns struct {
	TotalTrades      int
	TopSymbols       []SymbolCount
	FuturesRatio     float64
	WinRate          float64
	AvgWin           float64
	AvgLoss          float64
	MaxWin           float64
	MaxLoss          float64
	AvgHoldHours     float64
	TimeDistribution map[string]int
	LateStopRatio    float64
	EarlyTakeRatio   float64
}

// AnalyzePatterns derives the pattern summary from the user's trades.
// Closed trades with a recorded pnl drive the outcome stats; every
// trade counts toward symbols, leverage use, and timing.
func AnalyzePatterns(trades []models.Trade) *Patterns {
	p := &Patterns{TimeDistribution: emptyBuckets()}
	if len(trades) == 0 {
		return p
	}
	p.TotalTrades = len(trades)

	p.TopSymbols = topSymbols(trades, 5)

	futures := 0
	for i := range trades {
		t := &trades[i]
		side := strings.ToLower(t.Side)
		if side == models.SideLong || side == models.SideShort || t.Leverage > 1 {
			futures++
		}
		p.TimeDistribution[hourBucket(t.OpenedAt.Hour())]++
	}
	p.FuturesRatio = float64(futures) / float64(len(trades))

	var wins, losses []float64
	var holdHours float64
	held := 0
	for i := range trades {
		t := &trades[i]
		if t.Status != models.TradeClosed || t.PnlPercent == nil {
			continue
		}
		pnl := *t.PnlPercent
		if pnl > 0 {
			wins = append(wins, pnl)
			if pnl > p.MaxWin {
				p.MaxWin = pnl
			}
		} else if pnl < 0 {
			losses = append(losses, pnl)
			if pnl < p.MaxLoss {
				p.MaxLoss = pnl
			}
		}
		if t.ClosedAt != nil {
			holdHours += t.ClosedAt.Sub(t.OpenedAt).Hours()
			held++
		}
	}

	closed := len(wins) + len(losses)
	if closed > 0 {
		p.WinRate = float64(len(wins)) / float64(closed)
	}
	p.AvgWin = mean(wins)
	p.AvgLoss = mean(losses)
	if held > 0 {
		p.AvgHoldHours = holdHours / float64(held)
	}

	// Habit ratios: losses cut far past the usual stop, wins taken
	// well short of the usual target
	if p.AvgLoss < 0 && len(losses) > 0 {
		late := 0
		for _, pnl := range losses {
			if pnl < 2*p.AvgLoss {
				late++
			}
		}
		p.LateStopRatio = float64(late) / float64(len(losses))
	}
	if p.AvgWin > 0 && len(wins) > 0 {
		early := 0
		for _, pnl := range wins {
			if pnl < 0.5*p.AvgWin {
				early++
			}
		}
		p.EarlyTakeRatio = float64(early) / float64(len(wins))
	}

	return p
}

// FormatContext renders the pattern summary as judge prompt lines
func (p *Patterns) FormatContext() string {
	if p.TotalTrades == 0 {
		return "매매 이력 없음"
	}

	var lines []string

	if len(p.TopSymbols) > 0 {
		parts := make([]string, len(p.TopSymbols))
		for i, sc := range p.TopSymbols {
			parts[i] = fmt.Sprintf("%s(%d건)", sc.Symbol, sc.Count)
		}
		lines = append(lines, "주 종목: "+strings.Join(parts, ", "))
	}

	lines = append(lines, fmt.Sprintf("선물 비율: %.0f%%", p.FuturesRatio*100))

	if p.AvgHoldHours > 0 {
		switch {
		case p.AvgHoldHours < 1:
			lines = append(lines, fmt.Sprintf("평균 보유: %.0f분 (스캘핑)", p.AvgHoldHours*60))
		case p.AvgHoldHours < 24:
			lines = append(lines, fmt.Sprintf("평균 보유: %.1f시간 (데이트레이딩)", p.AvgHoldHours))
		default:
			lines = append(lines, fmt.Sprintf("평균 보유: %.1f일 (스윙)", p.AvgHoldHours/24))
		}
	}

	lines = append(lines, fmt.Sprintf("승률: %.0f%%, 평균 익절: %+.1f%%, 평균 손절: %.1f%%",
		p.WinRate*100, p.AvgWin, p.AvgLoss))
	lines = append(lines, fmt.Sprintf("최대: %+.1f%% / %.1f%%", p.MaxWin, p.MaxLoss))

	if bucket, count := p.peakBucket(); count > 0 {
		lines = append(lines, fmt.Sprintf("주 매매 시간대: %s (%d건)", bucket, count))
	}

	var habits []string
	if p.LateStopRatio > habitRatioThreshold {
		habits = append(habits, fmt.Sprintf("늦은 손절 경향 (%.0f%%)", p.LateStopRatio*100))
	}
	if p.EarlyTakeRatio > habitRatioThreshold {
		habits = append(habits, fmt.Sprintf("빠른 익절 경향 (%.0f%%)", p.EarlyTakeRatio*100))
	}
	if len(habits) > 0 {
		lines = append(lines, "습관: "+strings.Join(habits, ", "))
	}

	return strings.Join(lines, "\n")
}

func (p *Patterns) peakBucket() (string, int) {
	peak, count := "", 0
	for _, bucket := range hourBuckets {
		if p.TimeDistribution[bucket] > count {
			peak, count = bucket, p.TimeDistribution[bucket]
		}
	}
	return peak, count
}

// topSymbols counts full symbols and keeps the most traded, ties
// broken by first appearance
func topSymbols(trades []models.Trade, limit int) []SymbolCount {
	counts := make(map[string]int)
	order := make(map[string]int)
	for i := range trades {
		sym := trades[i].Symbol
		if _, seen := counts[sym]; !seen {
			order[sym] = len(order)
		}
		counts[sym]++
	}

	ranked := make([]SymbolCount, 0, len(counts))
	for sym, n := range counts {
		ranked = append(ranked, SymbolCount{Symbol: sym, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return order[ranked[i].Symbol] < order[ranked[j].Symbol]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func hourBucket(hour int) string {
	return hourBuckets[hour/6]
}

func emptyBuckets() map[string]int {
	buckets := make(map[string]int, len(hourBuckets))
	for _, b := range hourBuckets {
		buckets[b] = 0
	}
	return buckets
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
