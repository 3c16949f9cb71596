package briefing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/pkg/models"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func testUser() *models.User {
	return &models.User{ID: 1, TelegramID: 777, BriefingHour: intPtr(8)}
}

type fakeMarket struct {
	values map[string]models.JSONMap
	errs   map[string]error
}

func (f *fakeMarket) Fetch(ctx context.Context, streamType, symbol string, streamConfig models.JSONMap) (models.JSONMap, error) {
	key := streamType + "/" + symbol
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.values[key], nil
}

type fakeTrades struct {
	open []models.Trade
	all  []models.Trade
}

func (f *fakeTrades) ListOpen(ctx context.Context, userID int64) ([]models.Trade, error) {
	return f.open, nil
}

func (f *fakeTrades) ListAll(ctx context.Context, userID int64) ([]models.Trade, error) {
	return f.all, nil
}

type fakeTriggers struct{ active []models.UserTrigger }

func (f *fakeTriggers) GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error) {
	return f.active, nil
}

type fakeSnapshots struct{ hot map[string]models.JSONMap }

func (f *fakeSnapshots) HotSnapshot(ctx context.Context, userID int64) (map[string]models.JSONMap, error) {
	return f.hot, nil
}

type fakeContext struct{}

func (f *fakeContext) JudgeContext(ctx context.Context, user *models.User) (*signals.JudgeContext, error) {
	return &signals.JudgeContext{Intelligence: "intel", Principles: "원칙 없음"}, nil
}

type fakeLLM struct {
	response string
	err      error
	requests []*ai.Request
}

func (f *fakeLLM) Fast(ctx context.Context, req *ai.Request) (*models.LLMResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &models.LLMResponse{Text: f.response, Model: "fast"}, nil
}

func (f *fakeLLM) Deep(ctx context.Context, req *ai.Request) (*models.LLMResponse, error) {
	return f.Fast(ctx, req)
}

type fakeMessages struct{ saved []*models.ChatMessage }

func (f *fakeMessages) Save(ctx context.Context, msg *models.ChatMessage) error {
	f.saved = append(f.saved, msg)
	return nil
}

type fakeMessenger struct{ texts []string }

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	f.texts = append(f.texts, text)
	return len(f.texts), nil
}

func (f *fakeMessenger) SendWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]telegram.Button) (int, error) {
	f.texts = append(f.texts, text)
	return len(f.texts), nil
}

func (f *fakeMessenger) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	return nil
}

type briefingFixture struct {
	market    *fakeMarket
	trades    *fakeTrades
	triggers  *fakeTriggers
	snapshots *fakeSnapshots
	llm       *fakeLLM
	messages  *fakeMessages
	messenger *fakeMessenger
	service   *Service
}

func newBriefingFixture() *briefingFixture {
	closedAt := time.Now().UTC()
	win, loss := 10.0, -4.0

	f := &briefingFixture{
		market: &fakeMarket{values: map[string]models.JSONMap{
			"price/BTC": {
				"last":           113000.0,
				"change_24h_pct": 2.5,
				"volume_24h":     32.1e9,
			},
			"price/ETH": {
				"last":           3500.0,
				"change_24h_pct": -1.2,
			},
			"funding/BTC":          {"rate": 0.0001, "rate_pct": 0.01},
			"indicator/fear_greed": {"value": 72.0, "classification": "Greed"},
			"spread/kimchi":        {"premium_pct": 1.25},
			"news/": {
				"headlines": []interface{}{"Bitcoin ETF inflows hit record", "Fed holds rates"},
			},
		}},
		trades: &fakeTrades{
			open: []models.Trade{{
				Symbol:     "ETH/USDT",
				Side:       models.SideShort,
				EntryPrice: decimal.NewFromInt(3600),
				Leverage:   3,
				Status:     models.TradeOpen,
			}},
			all: []models.Trade{
				{
					Symbol: "BTC/USDT", Side: models.SideLong,
					EntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(1),
					Status: models.TradeClosed, PnlPercent: floatPtr(win),
					OpenedAt: closedAt.Add(-2 * time.Hour), ClosedAt: &closedAt,
				},
				{
					Symbol: "BTC/USDT", Side: models.SideLong,
					EntryPrice: decimal.NewFromInt(100), Size: decimal.NewFromInt(1),
					Status: models.TradeClosed, PnlPercent: floatPtr(loss),
					OpenedAt: closedAt.Add(-2 * time.Hour), ClosedAt: &closedAt,
				},
			},
		},
		triggers: &fakeTriggers{active: []models.UserTrigger{{
			Description: "BTC 116k 돌파 알림",
			Condition: models.JSONMap{
				"type":   models.CondPriceAbove,
				"symbol": "BTC",
				"value":  116000.0,
			},
		}}},
		snapshots: &fakeSnapshots{hot: map[string]models.JSONMap{
			"price/BTC": {"last": 113000.0},
		}},
		llm:       &fakeLLM{response: "오늘은 관망이 맞아 보여."},
		messages:  &fakeMessages{},
		messenger: &fakeMessenger{},
	}
	f.service = NewService(f.market, f.trades, f.triggers, f.snapshots,
		&fakeContext{}, f.llm, f.messages, f.messenger, nil)
	return f
}

func TestShouldSend(t *testing.T) {
	// 23:02 UTC is 08:02 KST
	inWindow := time.Date(2026, 8, 23, 23, 2, 0, 0, time.UTC)

	cases := []struct {
		name string
		user *models.User
		now  time.Time
		want bool
	}{
		{"in window", testUser(), inWindow, true},
		{"late in the hour", testUser(), inWindow.Add(20 * time.Minute), false},
		{"wrong hour", testUser(), inWindow.Add(3 * time.Hour), false},
		{"no briefing hour", &models.User{ID: 1}, inWindow, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSend(tc.user, tc.now); got != tc.want {
				t.Errorf("ShouldSend = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendFormatsBriefing(t *testing.T) {
	f := newBriefingFixture()

	if err := f.service.Send(context.Background(), testUser()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(f.messenger.texts) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(f.messenger.texts))
	}

	text := f.messenger.texts[0]
	for _, want := range []string{
		"📰 데일리 브리핑",
		"📈 시장 개요",
		"BTC $113,000 (+2.5%) Vol $32.1B",
		"ETH $3,500 (-1.2%)",
		"Fear&Greed: 72 (Greed)",
		"BTC 펀딩비: 0.010%",
		"김프: +1.25%",
		"💼 보유 포지션",
		"ETH/USDT short @ 3600 (x3)",
		"(평균 익절 +10.0% / 손절 -4.0%)",
		"📰 주요 뉴스",
		"· Bitcoin ETF inflows hit record",
		"🔔 활성 알림",
		"· BTC 116k 돌파 알림 (현재 $113,000, -2.6%)",
		"💬 FORKER:",
		"오늘은 관망이 맞아 보여.",
		disclaimer,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("briefing = %q, want %q", text, want)
		}
	}
}

func TestSendLogsChatMessage(t *testing.T) {
	f := newBriefingFixture()

	if err := f.service.Send(context.Background(), testUser()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(f.messages.saved) != 1 {
		t.Fatalf("saved messages = %d, want 1", len(f.messages.saved))
	}

	msg := f.messages.saved[0]
	if msg.Role != models.RoleAssistant {
		t.Errorf("role = %q", msg.Role)
	}
	if msg.Metadata["type"] != "daily_briefing" {
		t.Errorf("metadata = %v, want daily_briefing marker", msg.Metadata)
	}
	if msg.Intent == nil || *msg.Intent != "general" {
		t.Errorf("intent = %v, want general", msg.Intent)
	}
}

func TestSendCommentaryIncludesMarketData(t *testing.T) {
	f := newBriefingFixture()

	if err := f.service.Send(context.Background(), testUser()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(f.llm.requests) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(f.llm.requests))
	}

	req := f.llm.requests[0]
	content := req.Messages[0].Content
	for _, want := range []string{
		"BTC: $113,000 (+2.5%)",
		"포지션:",
		"패턴: 승률 50%, avg익절 +10.0%, avg손절 -4.0%",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("commentary input = %q, want %q", content, want)
		}
	}
	if !strings.Contains(req.DynamicSystem, "## 원칙\n원칙 없음") {
		t.Errorf("system = %q, want principles section", req.DynamicSystem)
	}
}

func TestSendCommentaryFallback(t *testing.T) {
	f := newBriefingFixture()
	f.llm.err = errors.New("model down")

	if err := f.service.Send(context.Background(), testUser()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !strings.Contains(f.messenger.texts[0], commentaryFallback) {
		t.Errorf("briefing = %q, want fallback commentary", f.messenger.texts[0])
	}
}

func TestSendToleratesMarketOutage(t *testing.T) {
	f := newBriefingFixture()
	f.market.errs = map[string]error{
		"price/BTC":            errors.New("down"),
		"price/ETH":            errors.New("down"),
		"funding/BTC":          errors.New("down"),
		"indicator/fear_greed": errors.New("down"),
		"spread/kimchi":        errors.New("down"),
		"news/":                errors.New("down"),
	}

	if err := f.service.Send(context.Background(), testUser()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	text := f.messenger.texts[0]
	if !strings.Contains(text, "📈 시장 개요") {
		t.Errorf("briefing = %q, want overview header even when empty", text)
	}
	if strings.Contains(text, "BTC $") {
		t.Errorf("briefing = %q, must not fabricate prices", text)
	}
}

func TestProximityHintSkipsNonPriceTriggers(t *testing.T) {
	hint := proximityHint(&models.UserTrigger{
		Condition: models.JSONMap{"type": models.CondFundingAbove, "value": 0.05},
	}, map[string]models.JSONMap{"price/BTC": {"last": 113000.0}})
	if hint != "" {
		t.Errorf("hint = %q, want empty", hint)
	}
}

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{113000, "113,000"},
		{950, "950"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}
	for _, tc := range cases {
		if got := formatUSD(tc.in); got != tc.want {
			t.Errorf("formatUSD(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
