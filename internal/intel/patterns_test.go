package intel

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefork/engine/pkg/models"
)

func closedAt(opened time.Time, hold time.Duration) *time.Time {
	closed := opened.Add(hold)
	return &closed
}

func floatPtr(v float64) *float64 { return &v }

func closedTrade(symbol, side string, pnl float64, opened time.Time, hold time.Duration) models.Trade {
	return models.Trade{
		UserID:     1,
		Symbol:     symbol,
		Side:       side,
		EntryPrice: decimal.NewFromInt(100),
		Size:       decimal.NewFromInt(1),
		Leverage:   1,
		Status:     models.TradeClosed,
		PnlPercent: floatPtr(pnl),
		OpenedAt:   opened,
		ClosedAt:   closedAt(opened, hold),
	}
}

func TestAnalyzePatternsEmpty(t *testing.T) {
	p := AnalyzePatterns(nil)
	if p.TotalTrades != 0 {
		t.Errorf("total = %d, want 0", p.TotalTrades)
	}
	if got := p.FormatContext(); got != "매매 이력 없음" {
		t.Errorf("context = %q", got)
	}
	for _, bucket := range hourBuckets {
		if _, ok := p.TimeDistribution[bucket]; !ok {
			t.Errorf("bucket %q missing from empty distribution", bucket)
		}
	}
}

func TestAnalyzePatternsOutcomes(t *testing.T) {
	opened := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		closedTrade("BTC/USDT", models.SideLong, 10, opened, 2*time.Hour),
		closedTrade("BTC/USDT", models.SideBuy, 2, opened, 4*time.Hour),
		closedTrade("ETH/USDT", models.SideShort, -4, opened, 2*time.Hour),
		closedTrade("BTC/USDT", models.SideSell, -12, opened, 4*time.Hour),
	}

	p := AnalyzePatterns(trades)
	if p.TotalTrades != 4 {
		t.Fatalf("total = %d, want 4", p.TotalTrades)
	}
	if p.WinRate != 0.5 {
		t.Errorf("win rate = %v, want 0.5", p.WinRate)
	}
	if p.AvgWin != 6 || p.AvgLoss != -8 {
		t.Errorf("avg win/loss = %v/%v, want 6/-8", p.AvgWin, p.AvgLoss)
	}
	if p.MaxWin != 10 || p.MaxLoss != -12 {
		t.Errorf("max win/loss = %v/%v, want 10/-12", p.MaxWin, p.MaxLoss)
	}
	if p.AvgHoldHours != 3 {
		t.Errorf("avg hold = %v, want 3", p.AvgHoldHours)
	}
	// long and short sides count as futures, plain buy/sell at 1x do not
	if p.FuturesRatio != 0.5 {
		t.Errorf("futures ratio = %v, want 0.5", p.FuturesRatio)
	}
	if p.TimeDistribution["12-18"] != 4 {
		t.Errorf("time distribution = %v, want all in 12-18", p.TimeDistribution)
	}
}

func TestAnalyzePatternsHabitRatios(t *testing.T) {
	opened := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		// avg win 6: the +2 exit is under half the average
		closedTrade("BTC/USDT", models.SideLong, 10, opened, time.Hour),
		closedTrade("BTC/USDT", models.SideLong, 2, opened, time.Hour),
		// avg loss -8: the -20 exit runs past twice the average
		closedTrade("BTC/USDT", models.SideLong, -20, opened, time.Hour),
		closedTrade("BTC/USDT", models.SideLong, 4, opened, time.Hour),
	}

	p := AnalyzePatterns(trades)
	if p.LateStopRatio != 1 {
		t.Errorf("late stop ratio = %v, want 1", p.LateStopRatio)
	}
	want := 1.0 / 3.0
	if diff := p.EarlyTakeRatio - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("early take ratio = %v, want %v", p.EarlyTakeRatio, want)
	}

	context := p.FormatContext()
	if !strings.Contains(context, "늦은 손절 경향 (100%)") {
		t.Errorf("context = %q, want late stop habit", context)
	}
	if !strings.Contains(context, "빠른 익절 경향 (33%)") {
		t.Errorf("context = %q, want early take habit", context)
	}
}

func TestTopSymbolsTieOrder(t *testing.T) {
	opened := time.Now().UTC()
	trades := []models.Trade{
		closedTrade("SOL/USDT", models.SideLong, 1, opened, time.Hour),
		closedTrade("BTC/USDT", models.SideLong, 1, opened, time.Hour),
		closedTrade("BTC/USDT", models.SideLong, 1, opened, time.Hour),
		closedTrade("ETH/USDT", models.SideLong, 1, opened, time.Hour),
	}

	top := topSymbols(trades, 5)
	if len(top) != 3 {
		t.Fatalf("symbols = %v, want 3", top)
	}
	if top[0].Symbol != "BTC/USDT" || top[0].Count != 2 {
		t.Errorf("top = %+v, want BTC/USDT x2", top[0])
	}
	// first seen wins the tie
	if top[1].Symbol != "SOL/USDT" || top[2].Symbol != "ETH/USDT" {
		t.Errorf("tie order = %v, %v", top[1].Symbol, top[2].Symbol)
	}
}

func TestFormatContextHoldLabels(t *testing.T) {
	opened := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	cases := []struct {
		hold time.Duration
		want string
	}{
		{30 * time.Minute, "평균 보유: 30분 (스캘핑)"},
		{5 * time.Hour, "평균 보유: 5.0시간 (데이트레이딩)"},
		{72 * time.Hour, "평균 보유: 3.0일 (스윙)"},
	}
	for _, tc := range cases {
		p := AnalyzePatterns([]models.Trade{closedTrade("BTC/USDT", models.SideLong, 5, opened, tc.hold)})
		if got := p.FormatContext(); !strings.Contains(got, tc.want) {
			t.Errorf("context for hold %v = %q, want %q", tc.hold, got, tc.want)
		}
	}
}

func TestFormatContextCoreLines(t *testing.T) {
	opened := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		closedTrade("BTC/USDT", models.SideLong, 10, opened, 2*time.Hour),
		closedTrade("BTC/USDT", models.SideLong, -5, opened, 2*time.Hour),
	}

	got := AnalyzePatterns(trades).FormatContext()
	for _, want := range []string{
		"주 종목: BTC/USDT(2건)",
		"선물 비율: 100%",
		"승률: 50%, 평균 익절: +10.0%, 평균 손절: -5.0%",
		"최대: +10.0% / -5.0%",
		"주 매매 시간대: 18-24 (2건)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("context = %q, want %q", got, want)
		}
	}
}
