package trades

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/internal/adapters/exchange"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

const (
	// New orders are searched at most this far back when a
	// connection has never been polled
	detectionLookback = 5 * time.Minute

	// Two orders this close on the same symbol are one trade
	dedupWindow = 10 * time.Second

	// A position with less than this share of its size remaining
	// on the venue counts as closed
	closeRemainderRatio = 0.1
)

// Store is the trade persistence surface the detector needs
type Store interface {
	Create(ctx context.Context, trade *models.Trade) error
	ExistsNear(ctx context.Context, userID int64, exchange, symbol string, openedAt time.Time, window time.Duration) (bool, error)
	ListOpen(ctx context.Context, userID int64) ([]models.Trade, error)
	Close(ctx context.Context, trade *models.Trade) error
	SetReasoning(ctx context.Context, tradeID int64, reasoning string) error
	SetEpisode(ctx context.Context, tradeID, episodeID int64) error
	GetClosedStats(ctx context.Context, userID int64) (*ClosedStats, error)
	ListRecentClosed(ctx context.Context, userID int64, limit int) ([]models.Trade, error)
	CountOpenedSince(ctx context.Context, userID int64, since time.Time) (int, error)
	LatestUnconfirmed(ctx context.Context, userID int64) (*models.Trade, error)
	ConfirmReasoning(ctx context.Context, tradeID int64, confirmed bool) error
	LatestDenied(ctx context.Context, userID int64) (*models.Trade, error)
	SetUserReasoning(ctx context.Context, tradeID int64, reasoning string) error
}

// ConnectionStore supplies exchange connections and their credentials
type ConnectionStore interface {
	GetActive(ctx context.Context, userID int64) ([]models.ExchangeConnection, error)
	Credentials(conn *models.ExchangeConnection) (apiKey, secret string, err error)
	UpdateLastPolled(ctx context.Context, connectionID int64, polledAt time.Time) error
}

// VenueFactory opens an authenticated exchange session
type VenueFactory interface {
	Open(exchangeName, apiKey, secret string) (exchange.Source, error)
}

// CCXTVenues is the production venue factory
type CCXTVenues struct{}

func (CCXTVenues) Open(exchangeName, apiKey, secret string) (exchange.Source, error) {
	return exchange.NewSource(exchangeName, apiKey, secret)
}

// EpisodeStore reads and writes episodic memory
type EpisodeStore interface {
	Create(ctx context.Context, episode *models.Episode) (int64, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Episode, error)
}

// PrincipleLister supplies the user's active principles
type PrincipleLister interface {
	GetActive(ctx context.Context, userID int64) ([]models.Principle, error)
}

// MessageLog records emitted messages in the conversational log
type MessageLog interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// CloseHook runs after a trade close is recorded
type CloseHook interface {
	OnTradeClose(ctx context.Context, user *models.User, trade *models.Trade) error
}

// Detector watches connected exchanges for new entries and closes
type Detector struct {
	store      Store
	conns      ConnectionStore
	venues     VenueFactory
	llm        ai.Client
	episodes   EpisodeStore
	principles PrincipleLister
	messages   MessageLog
	messenger  telegram.Messenger
	onClose    CloseHook
	usage      *clickhouse.UsageWriter

	dustThresholdPercent float64
}

// NewDetector creates the trade detector
func NewDetector(
	store Store,
	conns ConnectionStore,
	venues VenueFactory,
	llm ai.Client,
	episodes EpisodeStore,
	principles PrincipleLister,
	messages MessageLog,
	messenger telegram.Messenger,
	onClose CloseHook,
	usage *clickhouse.UsageWriter,
	dustThresholdPercent float64,
) *Detector {
	return &Detector{
		store:                store,
		conns:                conns,
		venues:               venues,
		llm:                  llm,
		episodes:             episodes,
		principles:           principles,
		messages:             messages,
		messenger:            messenger,
		onClose:              onClose,
		usage:                usage,
		dustThresholdPercent: dustThresholdPercent,
	}
}

// PollUser scans every active connection for new trades. Per
// connection failures are logged and do not stop the other venues.
func (d *Detector) PollUser(ctx context.Context, user *models.User) (int, error) {
	conns, err := d.conns.GetActive(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load connections: %w", err)
	}

	detected := 0
	for i := range conns {
		n, err := d.pollConnection(ctx, user, &conns[i])
		if err != nil {
			logger.Error("trade poll failed",
				zap.Int64("user_id", user.ID),
				zap.String("exchange", conns[i].ExchangeName),
				zap.Error(err),
			)
			continue
		}
		detected += n
	}
	return detected, nil
}

func (d *Detector) pollConnection(ctx context.Context, user *models.User, conn *models.ExchangeConnection) (int, error) {
	apiKey, secret, err := d.conns.Credentials(conn)
	if err != nil {
		return 0, err
	}

	venue, err := d.venues.Open(conn.ExchangeName, apiKey, secret)
	if err != nil {
		return 0, fmt.Errorf("failed to open venue: %w", err)
	}
	defer venue.Close()

	now := time.Now().UTC()
	since := now.Add(-detectionLookback)
	if conn.LastPolledAt != nil && conn.LastPolledAt.After(since) {
		since = *conn.LastPolledAt
	}
	sinceMs := since.UnixMilli()

	totalValue := 0.0
	balances, err := venue.FetchBalances(ctx)
	if err != nil {
		logger.Warn("balance fetch failed, dust filter disabled",
			zap.String("exchange", conn.ExchangeName),
			zap.Error(err),
		)
	} else {
		for _, v := range balances {
			totalValue += v
		}
	}

	orders, err := venue.ListOrdersSince(ctx, sinceMs)
	if err != nil {
		return 0, fmt.Errorf("failed to list orders: %w", err)
	}

	detected := 0
	for i := range orders {
		order := &orders[i]
		if isTransfer(order.Type) {
			continue
		}
		if isDust(order.Cost, totalValue, d.dustThresholdPercent) {
			continue
		}

		openedAt := now
		if order.TimestampMs > 0 {
			openedAt = time.UnixMilli(order.TimestampMs).UTC()
		}

		exists, err := d.store.ExistsNear(ctx, user.ID, conn.ExchangeName, order.Symbol, openedAt, dedupWindow)
		if err != nil {
			return detected, err
		}
		if exists {
			continue
		}

		if err := d.handleNewTrade(ctx, user, conn.ExchangeName, order, openedAt); err != nil {
			logger.Error("failed to handle new trade",
				zap.Int64("user_id", user.ID),
				zap.String("symbol", order.Symbol),
				zap.Error(err),
			)
			continue
		}
		detected++
	}

	if err := d.conns.UpdateLastPolled(ctx, conn.ID, now); err != nil {
		logger.Warn("failed to advance poll window",
			zap.Int64("connection_id", conn.ID),
			zap.Error(err),
		)
	}
	return detected, nil
}

func isTransfer(orderType string) bool {
	switch strings.ToLower(orderType) {
	case "deposit", "withdrawal", "transfer":
		return true
	}
	return false
}

func isDust(cost, totalBalanceValue, thresholdPercent float64) bool {
	if totalBalanceValue <= 0 || cost <= 0 {
		return true
	}
	return cost/totalBalanceValue*100 < thresholdPercent
}

// handleNewTrade records a detected entry, infers the user's likely
// reasoning, and asks for confirmation
func (d *Detector) handleNewTrade(ctx context.Context, user *models.User, exchangeName string, order *models.Order, openedAt time.Time) error {
	entry := decimal.Zero
	if order.Amount > 0 {
		entry = decimal.NewFromFloat(order.Cost).Div(decimal.NewFromFloat(order.Amount))
	}

	trade := &models.Trade{
		UserID:     user.ID,
		Exchange:   exchangeName,
		Symbol:     order.Symbol,
		Side:       order.Side,
		EntryPrice: entry,
		Size:       decimal.NewFromFloat(order.Amount),
		Leverage:   1,
		Status:     models.TradeOpen,
		OpenedAt:   openedAt,
	}
	if err := d.store.Create(ctx, trade); err != nil {
		return err
	}

	reasoning := d.inferReasoning(ctx, user, trade)
	trade.InferredReasoning = &reasoning
	if err := d.store.SetReasoning(ctx, trade.ID, reasoning); err != nil {
		logger.Warn("failed to store trade reasoning", zap.Int64("trade_id", trade.ID), zap.Error(err))
	}

	direction := "롱"
	if trade.Side == models.SideSell || trade.Side == models.SideShort {
		direction = "숏"
	}
	text := fmt.Sprintf("🔄 %s %s 감지!\n\n금액: %s | 수량: %v\n\n%s\n\n맞지?",
		trade.Symbol, direction, formatPrice(order.Cost), order.Amount, reasoning)

	intent := "trade_reasoning"
	if err := d.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
		Metadata:    models.JSONMap{"trade_id": trade.ID},
	}); err != nil {
		logger.Warn("failed to log trade message", zap.Int64("trade_id", trade.ID), zap.Error(err))
	}

	if _, err := d.messenger.SendWithKeyboard(ctx, user.TelegramID, text, telegram.TradeConfirmKeyboard(trade.ID)); err != nil {
		logger.Error("failed to deliver trade notice",
			zap.Int64("user_id", user.ID),
			zap.Int64("trade_id", trade.ID),
			zap.Error(err),
		)
	}

	logger.Info("trade detected",
		zap.Int64("user_id", user.ID),
		zap.String("exchange", exchangeName),
		zap.String("symbol", trade.Symbol),
		zap.String("side", trade.Side),
	)
	return nil
}

const tradeReasoningSystem = `너는 FORKER — 유저의 투자 분신이야. 유저가 방금 매매에 진입했어.
유저의 과거 에피소드, 원칙, 스타일을 근거로 이 유저가 왜 이 시점에 이 매매를 했을지 2~3문장으로 추론해.
"~해서 들어간 것 같은데" 같은 추측 어투로, 유저에게 직접 말하듯.`

func (d *Detector) inferReasoning(ctx context.Context, user *models.User, trade *models.Trade) string {
	const fallback = "근거 추론에 실패했어. 직접 알려줄래?"

	episodeContext := "없음"
	if recent, err := d.episodes.ListRecent(ctx, user.ID, 5); err == nil && len(recent) > 0 {
		lines := make([]string, 0, len(recent))
		for i := range recent {
			lines = append(lines, fmt.Sprintf("- [%s] %s", recent[i].Kind, recent[i].UserAction))
		}
		episodeContext = strings.Join(lines, "\n")
	}

	principleText := "없음"
	if principles, err := d.principles.GetActive(ctx, user.ID); err == nil && len(principles) > 0 {
		lines := make([]string, 0, len(principles))
		for i := range principles {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, principles[i].Text))
		}
		principleText = strings.Join(lines, "\n")
	}

	styleText := "없음"
	if len(user.StyleParsed) > 0 {
		parts := make([]string, 0, len(user.StyleParsed))
		for k, v := range user.StyleParsed {
			parts = append(parts, fmt.Sprintf("%s: %v", k, v))
		}
		styleText = strings.Join(parts, ", ")
	}

	dynamic := fmt.Sprintf(`## 매매 정보
- 종목: %s
- 방향: %s
- 진입가: %s
- 수량: %s
- 거래소: %s

## 최근 에피소드
%s

## 투자 원칙
%s

## 매매 스타일
%s`,
		trade.Symbol, trade.Side, trade.EntryPrice.String(), trade.Size.String(), trade.Exchange,
		episodeContext, principleText, styleText,
	)

	started := time.Now()
	resp, err := d.llm.Deep(ctx, &ai.Request{
		StaticSystem:  tradeReasoningSystem,
		DynamicSystem: dynamic,
		Messages: []models.LLMMessage{{
			Role:    "user",
			Content: fmt.Sprintf("%s %s 진입 — 이 유저가 왜 이 시점에 이 매매를 했을지 추론해.", trade.Symbol, trade.Side),
		}},
		MaxTokens: 500,
	})
	if err != nil {
		logger.Error("reasoning inference failed", zap.Int64("trade_id", trade.ID), zap.Error(err))
		return fallback
	}

	d.usage.AddUsage(clickhouse.LLMUsageRecord{
		Timestamp:    time.Now().UTC(),
		UserID:       user.ID,
		Component:    "trade_reasoning",
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CacheRead:    resp.Usage.CacheRead,
		LatencyMs:    time.Since(started).Milliseconds(),
	})

	text, _ := ai.SplitMeta(resp.Text)
	if text == ai.FallbackReply {
		return fallback
	}
	return text
}

// DetectCloses checks each open trade's remaining balance on its
// venue and records closes
func (d *Detector) DetectCloses(ctx context.Context, user *models.User) error {
	open, err := d.store.ListOpen(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	conns, err := d.conns.GetActive(ctx, user.ID)
	if err != nil {
		return err
	}
	connByName := make(map[string]*models.ExchangeConnection, len(conns))
	for i := range conns {
		connByName[conns[i].ExchangeName] = &conns[i]
	}

	for i := range open {
		trade := &open[i]
		conn, ok := connByName[trade.Exchange]
		if !ok {
			continue
		}
		if err := d.checkClose(ctx, user, conn, trade); err != nil {
			logger.Error("close detection failed",
				zap.Int64("trade_id", trade.ID),
				zap.String("symbol", trade.Symbol),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *Detector) checkClose(ctx context.Context, user *models.User, conn *models.ExchangeConnection, trade *models.Trade) error {
	apiKey, secret, err := d.conns.Credentials(conn)
	if err != nil {
		return err
	}
	venue, err := d.venues.Open(conn.ExchangeName, apiKey, secret)
	if err != nil {
		return err
	}
	defer venue.Close()

	balances, err := venue.FetchBalances(ctx)
	if err != nil {
		return err
	}

	size, _ := trade.Size.Float64()
	remaining := balances[trade.BaseSymbol()]
	if remaining >= size*closeRemainderRatio {
		return nil
	}

	exitPrice, err := venue.FetchTicker(ctx, trade.Symbol)
	if err != nil {
		logger.Warn("exit price unavailable", zap.String("symbol", trade.Symbol), zap.Error(err))
		exitPrice = 0
	}

	if exitPrice > 0 && !trade.EntryPrice.IsZero() {
		trade.ComputePnl(decimal.NewFromFloat(exitPrice))
	} else {
		zero := decimal.Zero
		zeroPct := 0.0
		trade.ExitPrice = &zero
		trade.PnlPercent = &zeroPct
		trade.PnlAmount = &zero
	}

	return d.handleClose(ctx, user, trade)
}

func (d *Detector) handleClose(ctx context.Context, user *models.User, trade *models.Trade) error {
	if err := d.store.Close(ctx, trade); err != nil {
		return err
	}

	pnl := 0.0
	if trade.PnlPercent != nil {
		pnl = *trade.PnlPercent
	}

	stats, err := d.store.GetClosedStats(ctx, user.ID)
	if err != nil {
		logger.Warn("failed to load closed stats", zap.Int64("user_id", user.ID), zap.Error(err))
		stats = &ClosedStats{}
	}

	commentary := d.closeCommentary(ctx, user, trade, pnl, stats)

	var text string
	if pnl >= 0 {
		text = fmt.Sprintf("📈 %s +%.1f%%!\n\n%s", trade.Symbol, pnl, commentary)
	} else {
		reasoning := "미확인"
		if trade.InferredReasoning != nil {
			reasoning = *trade.InferredReasoning
		}
		text = fmt.Sprintf("📉 %s %.1f%%\n\n%s\n\n같이 복기해볼까?\n① 진입 근거: %s\n② 결과: %.1f%%",
			trade.Symbol, pnl, commentary, reasoning, pnl)
	}

	if warning := d.riskWarning(ctx, user); warning != "" {
		text += "\n\n⚠️ " + warning
	}

	if d.onClose != nil {
		if err := d.onClose.OnTradeClose(ctx, user, trade); err != nil {
			logger.Warn("trade close feedback failed", zap.Int64("trade_id", trade.ID), zap.Error(err))
		}
	}

	d.recordCloseEpisode(ctx, user, trade, pnl)

	intent := "trade_close"
	if err := d.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
	}); err != nil {
		logger.Warn("failed to log close message", zap.Int64("trade_id", trade.ID), zap.Error(err))
	}

	if _, err := d.messenger.SendText(ctx, user.TelegramID, text); err != nil {
		logger.Error("failed to deliver close notice",
			zap.Int64("user_id", user.ID),
			zap.Int64("trade_id", trade.ID),
			zap.Error(err),
		)
	}

	logger.Info("trade closed",
		zap.Int64("user_id", user.ID),
		zap.String("symbol", trade.Symbol),
		zap.Float64("pnl_percent", pnl),
	)
	return nil
}

const tradeCloseSystem = `너는 FORKER — 유저의 투자 분신이야. 유저의 매매가 방금 청산됐어.
결과를 유저의 평균 익절/손절과 비교해서 1~2문장 코멘터리를 만들어.
칭찬도 잔소리도 짧게, 사실 기반으로.`

func (d *Detector) closeCommentary(ctx context.Context, user *models.User, trade *models.Trade, pnl float64, stats *ClosedStats) string {
	reasoning := "미확인"
	if trade.InferredReasoning != nil {
		reasoning = *trade.InferredReasoning
	}

	exitText := "0"
	if trade.ExitPrice != nil {
		exitText = trade.ExitPrice.String()
	}

	dynamic := fmt.Sprintf(`## 청산 정보
- 종목: %s %s
- 진입가: %s / 청산가: %s
- 결과: %+.1f%%
- 진입 근거: %s

## 유저 통계
- 평균 익절: %+.1f%% / 평균 손절: %+.1f%% / 승률: %.0f%%`,
		trade.Symbol, trade.Side, trade.EntryPrice.String(), exitText, pnl, reasoning,
		stats.AvgWin, stats.AvgLoss, stats.WinRate,
	)

	started := time.Now()
	resp, err := d.llm.Fast(ctx, &ai.Request{
		StaticSystem:  tradeCloseSystem,
		DynamicSystem: dynamic,
		Messages:      []models.LLMMessage{{Role: "user", Content: "코멘터리 생성"}},
		MaxTokens:     300,
	})
	if err != nil {
		logger.Warn("close commentary failed", zap.Int64("trade_id", trade.ID), zap.Error(err))
		if pnl >= 0 && stats.AvgWin > 0 {
			return fmt.Sprintf("너 평균 익절 %.1f%%야.", stats.AvgWin)
		}
		return ""
	}

	d.usage.AddUsage(clickhouse.LLMUsageRecord{
		Timestamp:    time.Now().UTC(),
		UserID:       user.ID,
		Component:    "trade_close",
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CacheRead:    resp.Usage.CacheRead,
		LatencyMs:    time.Since(started).Milliseconds(),
	})
	text, _ := ai.SplitMeta(resp.Text)
	if text == ai.FallbackReply {
		return ""
	}
	return text
}

// riskWarning returns one short warning line when a risky pattern is
// present, empty otherwise
func (d *Detector) riskWarning(ctx context.Context, user *models.User) string {
	recent, err := d.store.ListRecentClosed(ctx, user.ID, 5)
	if err == nil {
		consecutive := 0
		for i := range recent {
			if recent[i].PnlPercent != nil && *recent[i].PnlPercent < 0 {
				consecutive++
				continue
			}
			break
		}
		if consecutive >= 3 {
			return fmt.Sprintf("연속 %d회 손실이야. 쉬어가는 것도 전략이야.", consecutive)
		}
	}

	opens, err := d.store.CountOpenedSince(ctx, user.ID, time.Now().UTC().Add(-time.Hour))
	if err == nil && opens >= 3 {
		return "1시간 안에 3건 이상 매매했어. 과매매 아닌지 한번 생각해봐."
	}
	return ""
}

func (d *Detector) recordCloseEpisode(ctx context.Context, user *models.User, trade *models.Trade, pnl float64) {
	reasoning := "미확인"
	if trade.InferredReasoning != nil {
		reasoning = *trade.InferredReasoning
	}
	exitText := "0"
	if trade.ExitPrice != nil {
		exitText = trade.ExitPrice.String()
	}

	episode := &models.Episode{
		UserID:     user.ID,
		Kind:       models.EpisodeTrade,
		UserAction: fmt.Sprintf("%s %s 청산: %+.1f%%", trade.Symbol, trade.Side, pnl),
		EmbeddingText: fmt.Sprintf("%s %s 진입가 %s 청산가 %s 결과 %+.1f%% 근거: %s",
			trade.Symbol, trade.Side, trade.EntryPrice.String(), exitText, pnl, reasoning),
		TradeData: models.JSONMap{
			"symbol":      trade.Symbol,
			"side":        trade.Side,
			"entry_price": trade.EntryPrice.String(),
			"exit_price":  exitText,
			"pnl_percent": pnl,
		},
		Reasoning: trade.InferredReasoning,
	}
	result := fmt.Sprintf("%+.1f%%", pnl)
	episode.TradeResult = &result

	episodeID, err := d.episodes.Create(ctx, episode)
	if err != nil {
		logger.Warn("failed to create trade episode", zap.Int64("trade_id", trade.ID), zap.Error(err))
		return
	}
	if err := d.store.SetEpisode(ctx, trade.ID, episodeID); err != nil {
		logger.Warn("failed to link trade episode", zap.Int64("trade_id", trade.ID), zap.Error(err))
	}
}

// ConfirmReasoning handles the user's yes/no on the newest inferred
// hypothesis. A yes writes the entry into episodic memory.
func (d *Detector) ConfirmReasoning(ctx context.Context, user *models.User, confirmed bool) error {
	trade, err := d.store.LatestUnconfirmed(ctx, user.ID)
	if err != nil || trade == nil {
		return err
	}
	if err := d.store.ConfirmReasoning(ctx, trade.ID, confirmed); err != nil {
		return err
	}
	if !confirmed {
		return nil
	}
	return d.recordEntryEpisode(ctx, user, trade, trade.InferredReasoning)
}

// SaveUserReasoning records the user's own explanation after a deny
// and stores the corrected entry as an episode
func (d *Detector) SaveUserReasoning(ctx context.Context, user *models.User, reasoning string) (bool, error) {
	trade, err := d.store.LatestDenied(ctx, user.ID)
	if err != nil || trade == nil {
		return false, err
	}
	if err := d.store.SetUserReasoning(ctx, trade.ID, reasoning); err != nil {
		return false, err
	}
	if err := d.recordEntryEpisode(ctx, user, trade, &reasoning); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Detector) recordEntryEpisode(ctx context.Context, user *models.User, trade *models.Trade, reasoning *string) error {
	reasonText := ""
	if reasoning != nil {
		reasonText = *reasoning
	}
	episode := &models.Episode{
		UserID:     user.ID,
		Kind:       models.EpisodeTrade,
		UserAction: fmt.Sprintf("%s %s 진입", trade.Symbol, trade.Side),
		EmbeddingText: fmt.Sprintf("%s %s @ %s 근거: %s",
			trade.Symbol, trade.Side, trade.EntryPrice.String(), reasonText),
		TradeData: models.JSONMap{
			"symbol":      trade.Symbol,
			"side":        trade.Side,
			"entry_price": trade.EntryPrice.String(),
			"exchange":    trade.Exchange,
		},
		Reasoning: reasoning,
	}
	if _, err := d.episodes.Create(ctx, episode); err != nil {
		return fmt.Errorf("failed to create entry episode: %w", err)
	}
	return nil
}
