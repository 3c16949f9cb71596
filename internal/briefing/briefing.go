package briefing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/internal/intel"
	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Briefing hours are the user's local wall clock
var kst = time.FixedZone("KST", 9*60*60)

// Delivery fires in the first minutes of the configured hour; the
// sweep runs every five minutes so the window covers one sweep.
const deliveryWindowMinutes = 4

const commentaryFallback = "오늘도 시장 잘 지켜보자!"

const disclaimer = "⚠️ TRADEFORK는 매매를 대행하지 않습니다. 최종 판단은 본인의 몫입니다."

const commentarySystem = `너는 FORKER — 유저의 투자 분신이야. 데일리 브리핑 코멘터리를 3~5문장으로 작성해.
유저의 스타일/원칙/패턴을 반영해 '너처럼 봤을 때' 관점으로.
오늘 주목할 점, 포지션 코멘트, 주의사항을 간결하게.`

// MarketFetcher reads public market quantities
type MarketFetcher interface {
	Fetch(ctx context.Context, streamType, symbol string, streamConfig models.JSONMap) (models.JSONMap, error)
}

// TradeLister supplies positions and trade history
type TradeLister interface {
	ListOpen(ctx context.Context, userID int64) ([]models.Trade, error)
	ListAll(ctx context.Context, userID int64) ([]models.Trade, error)
}

// TriggerLister supplies the user's active triggers
type TriggerLister interface {
	GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error)
}

// SnapshotSource supplies the hot stream snapshot for proximity hints
type SnapshotSource interface {
	HotSnapshot(ctx context.Context, userID int64) (map[string]models.JSONMap, error)
}

// ContextSource supplies the personalization block of the commentary
type ContextSource interface {
	JudgeContext(ctx context.Context, user *models.User) (*signals.JudgeContext, error)
}

// MessageLog records emitted messages in the conversational log
type MessageLog interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// Service assembles and delivers the daily briefing
type Service struct {
	market    MarketFetcher
	trades    TradeLister
	triggers  TriggerLister
	snapshots SnapshotSource
	intel     ContextSource
	llm       ai.Client
	messages  MessageLog
	messenger telegram.Messenger
	usage     *clickhouse.UsageWriter
}

// NewService creates the briefing service
func NewService(
	market MarketFetcher,
	trades TradeLister,
	triggers TriggerLister,
	snapshots SnapshotSource,
	intelSource ContextSource,
	llm ai.Client,
	messages MessageLog,
	messenger telegram.Messenger,
	usage *clickhouse.UsageWriter,
) *Service {
	return &Service{
		market:    market,
		trades:    trades,
		triggers:  triggers,
		snapshots: snapshots,
		intel:     intelSource,
		llm:       llm,
		messages:  messages,
		messenger: messenger,
		usage:     usage,
	}
}

// ShouldSend reports whether now falls inside the user's delivery
// window
func ShouldSend(user *models.User, now time.Time) bool {
	if user.BriefingHour == nil {
		return false
	}
	local := now.In(kst)
	return local.Hour() == *user.BriefingHour && local.Minute() <= deliveryWindowMinutes
}

// Send builds and delivers one briefing
func (s *Service) Send(ctx context.Context, user *models.User) error {
	data := s.gather(ctx, user)
	commentary := s.commentary(ctx, user, data)
	text := formatBriefing(data, commentary)

	if _, err := s.messenger.SendText(ctx, user.TelegramID, text); err != nil {
		return fmt.Errorf("failed to send briefing: %w", err)
	}

	intent := "general"
	if err := s.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
		Metadata:    models.JSONMap{"type": "daily_briefing"},
	}); err != nil {
		logger.Warn("failed to log briefing message", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	logger.Info("daily briefing sent", zap.Int64("user_id", user.ID))
	return nil
}

// sections holds everything one briefing renders. Each field fills
// best-effort; a missing section is simply omitted.
type sections struct {
	btc       models.JSONMap
	eth       models.JSONMap
	funding   models.JSONMap
	fearGreed models.JSONMap
	kimchi    models.JSONMap
	positions []models.Trade
	patterns  *intel.Patterns
	headlines []string
	triggers  []models.UserTrigger
	hot       map[string]models.JSONMap
}

func (s *Service) gather(ctx context.Context, user *models.User) *sections {
	data := &sections{}

	data.btc = s.fetch(ctx, models.StreamPrice, "BTC")
	data.eth = s.fetch(ctx, models.StreamPrice, "ETH")
	data.funding = s.fetch(ctx, models.StreamFunding, "BTC")
	data.fearGreed = s.fetch(ctx, models.StreamIndicator, "fear_greed")
	data.kimchi = s.fetch(ctx, models.StreamSpread, "kimchi")

	positions, err := s.trades.ListOpen(ctx, user.ID)
	if err != nil {
		logger.Warn("briefing positions unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	data.positions = positions

	all, err := s.trades.ListAll(ctx, user.ID)
	if err != nil {
		logger.Warn("briefing trade history unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	data.patterns = intel.AnalyzePatterns(all)

	if news := s.fetch(ctx, models.StreamNews, ""); news != nil {
		if raw, ok := news["headlines"].([]interface{}); ok {
			for _, item := range raw {
				if headline, ok := item.(string); ok {
					data.headlines = append(data.headlines, headline)
				}
			}
		}
	}

	triggers, err := s.triggers.GetActive(ctx, user.ID)
	if err != nil {
		logger.Warn("briefing triggers unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	data.triggers = triggers

	hot, err := s.snapshots.HotSnapshot(ctx, user.ID)
	if err != nil {
		logger.Warn("briefing snapshot unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	data.hot = hot

	return data
}

func (s *Service) fetch(ctx context.Context, streamType, symbol string) models.JSONMap {
	value, err := s.market.Fetch(ctx, streamType, symbol, nil)
	if err != nil {
		logger.Warn("briefing market fetch failed",
			zap.String("stream_type", streamType),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}
	return value
}

// commentary asks the fast model for the personalized closing note
func (s *Service) commentary(ctx context.Context, user *models.User, data *sections) string {
	judgeCtx, err := s.intel.JudgeContext(ctx, user)
	if err != nil || judgeCtx == nil {
		logger.Warn("briefing context unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
		judgeCtx = &signals.JudgeContext{}
	}

	var parts []string

	btcLast, _ := data.btc.Float("last")
	btcChg, _ := data.btc.Float("change_24h_pct")
	ethLast, _ := data.eth.Float("last")
	ethChg, _ := data.eth.Float("change_24h_pct")
	fgValue := "?"
	if v, ok := data.fearGreed.Float("value"); ok {
		fgValue = fmt.Sprintf("%.0f", v)
	}
	fgClass, _ := data.fearGreed.String("classification")
	if fgClass == "" {
		fgClass = "?"
	}
	parts = append(parts, fmt.Sprintf("BTC: $%s (%+.1f%%)\nETH: $%s (%+.1f%%)\nFear&Greed: %s (%s)",
		formatUSD(btcLast), btcChg, formatUSD(ethLast), ethChg, fgValue, fgClass))

	if len(data.positions) > 0 {
		lines := make([]string, len(data.positions))
		for i := range data.positions {
			t := &data.positions[i]
			lines[i] = fmt.Sprintf("- %s %s @ %s (x%d)", t.Symbol, t.Side, t.EntryPrice.String(), t.Leverage)
		}
		parts = append(parts, "포지션:\n"+strings.Join(lines, "\n"))
	}

	if data.patterns != nil && data.patterns.TotalTrades > 0 {
		parts = append(parts, fmt.Sprintf("패턴: 승률 %.0f%%, avg익절 %+.1f%%, avg손절 %.1f%%",
			data.patterns.WinRate*100, data.patterns.AvgWin, data.patterns.AvgLoss))
	}

	started := time.Now()
	resp, err := s.llm.Fast(ctx, &ai.Request{
		StaticSystem: commentarySystem,
		DynamicSystem: fmt.Sprintf("## Intelligence\n%s\n\n## 원칙\n%s",
			judgeCtx.Intelligence, judgeCtx.Principles),
		Messages: []models.LLMMessage{{
			Role:    "user",
			Content: "오늘 시장 데이터:\n" + strings.Join(parts, "\n\n"),
		}},
		MaxTokens: 500,
	})
	if err != nil {
		logger.Error("briefing commentary failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return commentaryFallback
	}

	s.usage.AddUsage(clickhouse.LLMUsageRecord{
		Timestamp:    time.Now().UTC(),
		UserID:       user.ID,
		Component:    "briefing_commentary",
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CacheRead:    resp.Usage.CacheRead,
		LatencyMs:    time.Since(started).Milliseconds(),
	})

	text, _ := ai.SplitMeta(resp.Text)
	if text == ai.FallbackReply {
		return commentaryFallback
	}
	return text
}

func formatBriefing(data *sections, commentary string) string {
	lines := []string{"📰 데일리 브리핑", ""}

	lines = append(lines, "📈 시장 개요")
	if data.btc != nil {
		last, _ := data.btc.Float("last")
		chg, _ := data.btc.Float("change_24h_pct")
		vol, _ := data.btc.Float("volume_24h")
		lines = append(lines, fmt.Sprintf("  BTC $%s (%+.1f%%) Vol $%.1fB", formatUSD(last), chg, vol/1e9))
	}
	if data.eth != nil {
		last, _ := data.eth.Float("last")
		chg, _ := data.eth.Float("change_24h_pct")
		lines = append(lines, fmt.Sprintf("  ETH $%s (%+.1f%%)", formatUSD(last), chg))
	}
	if data.fearGreed != nil {
		value, _ := data.fearGreed.Float("value")
		class, _ := data.fearGreed.String("classification")
		lines = append(lines, fmt.Sprintf("  Fear&Greed: %.0f (%s)", value, class))
	}
	if ratePct, ok := data.funding.Float("rate_pct"); ok {
		lines = append(lines, fmt.Sprintf("  BTC 펀딩비: %.3f%%", ratePct))
	}
	if premium, ok := data.kimchi.Float("premium_pct"); ok {
		lines = append(lines, fmt.Sprintf("  김프: %+.2f%%", premium))
	}

	if len(data.positions) > 0 {
		lines = append(lines, "", "💼 보유 포지션")
		for i := range data.positions {
			t := &data.positions[i]
			lines = append(lines, fmt.Sprintf("  %s %s @ %s (x%d)", t.Symbol, t.Side, t.EntryPrice.String(), t.Leverage))
		}
		if data.patterns != nil && (data.patterns.AvgWin != 0 || data.patterns.AvgLoss != 0) {
			lines = append(lines, fmt.Sprintf("  (평균 익절 %+.1f%% / 손절 %.1f%%)", data.patterns.AvgWin, data.patterns.AvgLoss))
		}
	}

	if len(data.headlines) > 0 {
		lines = append(lines, "", "📰 주요 뉴스")
		for i, headline := range data.headlines {
			if i >= 5 {
				break
			}
			lines = append(lines, "  · "+truncateRunes(headline, 80))
		}
	}

	if len(data.triggers) > 0 {
		lines = append(lines, "", "🔔 활성 알림")
		for i := range data.triggers {
			if i >= 5 {
				break
			}
			trigger := &data.triggers[i]
			lines = append(lines, "  · "+trigger.Description+proximityHint(trigger, data.hot))
		}
	}

	lines = append(lines, "", "💬 FORKER:", commentary)
	lines = append(lines, "", disclaimer)
	return strings.Join(lines, "\n")
}

// proximityHint shows how far the market sits from a price trigger
func proximityHint(trigger *models.UserTrigger, hot map[string]models.JSONMap) string {
	if trigger.Condition == nil {
		return ""
	}
	condType, _ := trigger.Condition.String("type")
	if condType != models.CondPriceAbove && condType != models.CondPriceBelow {
		return ""
	}
	target, ok := trigger.Condition.Float("value")
	if !ok || target == 0 {
		return ""
	}
	symbol, _ := trigger.Condition.String("symbol")
	current, ok := hot["price/"+symbol].Float("last")
	if !ok || current == 0 {
		return ""
	}

	diffPct := (current/target - 1) * 100
	return fmt.Sprintf(" (현재 $%s, %+.1f%%)", formatUSD(current), diffPct)
}

// formatUSD renders a price with thousands separators, no decimals
func formatUSD(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := fmt.Sprintf("%.0f", v)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
