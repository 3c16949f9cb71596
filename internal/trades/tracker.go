package trades

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Crossing states for open-position commentary
const (
	crossAvgWin   = "avg_win"
	crossStopLoss = "stop_loss"
	crossAvgLoss  = "avg_loss"
)

// Defaults used until the user has a win/loss history
const (
	defaultAvgWin  = 12.0
	defaultAvgLoss = -5.0
)

var (
	stopLossKoPattern = regexp.MustCompile(`손절.*?(-?\d+(?:\.\d+)?)\s*%`)
	stopLossEnPattern = regexp.MustCompile(`(?i)stop.?loss.*?(-?\d+(?:\.\d+)?)\s*%`)
)

// Tracker watches open positions and comments when the unrealized
// pnl crosses the user's own win/loss thresholds. Each crossing is
// announced once; the state resets when the position moves back.
type Tracker struct {
	store      Store
	conns      ConnectionStore
	venues     VenueFactory
	principles PrincipleLister
	messages   MessageLog
	messenger  telegram.Messenger

	mu        sync.Mutex
	lastState map[int64]string
}

// NewTracker creates the position tracker
func NewTracker(
	store Store,
	conns ConnectionStore,
	venues VenueFactory,
	principles PrincipleLister,
	messages MessageLog,
	messenger telegram.Messenger,
) *Tracker {
	return &Tracker{
		store:      store,
		conns:      conns,
		venues:     venues,
		principles: principles,
		messages:   messages,
		messenger:  messenger,
		lastState:  make(map[int64]string),
	}
}

// CheckPositions evaluates every open trade against the user's
// thresholds and delivers at most one commentary per new crossing
func (t *Tracker) CheckPositions(ctx context.Context, user *models.User) error {
	open, err := t.store.ListOpen(ctx, user.ID)
	if err != nil {
		return err
	}
	t.pruneStale(open)
	if len(open) == 0 {
		return nil
	}

	stats, err := t.store.GetClosedStats(ctx, user.ID)
	if err != nil {
		return err
	}
	avgWin, avgLoss := stats.AvgWin, stats.AvgLoss
	if avgWin <= 0 {
		avgWin = defaultAvgWin
	}
	if avgLoss >= 0 {
		avgLoss = defaultAvgLoss
	}

	stopLoss := t.extractStopLoss(ctx, user.ID)

	conns, err := t.conns.GetActive(ctx, user.ID)
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
		if !ok || trade.EntryPrice.IsZero() {
			continue
		}

		price, err := t.currentPrice(ctx, conn, trade.Symbol)
		if err != nil || price <= 0 {
			continue
		}

		entry, _ := trade.EntryPrice.Float64()
		pnl := (price - entry) / entry * 100
		if trade.Side == models.SideShort || trade.Side == models.SideSell {
			pnl = -pnl
		}

		state, text := buildCommentary(trade, pnl, price, avgWin, avgLoss, stopLoss)
		if !t.crossed(trade.ID, state) {
			continue
		}

		intent := "position_commentary"
		if err := t.messages.Save(ctx, &models.ChatMessage{
			UserID:      user.ID,
			Role:        models.RoleAssistant,
			Content:     text,
			MessageType: "text",
			Intent:      &intent,
			Metadata:    models.JSONMap{"trade_id": trade.ID},
		}); err != nil {
			logger.Warn("failed to log position commentary", zap.Int64("trade_id", trade.ID), zap.Error(err))
		}

		if _, err := t.messenger.SendText(ctx, user.TelegramID, text); err != nil {
			logger.Error("failed to deliver position commentary",
				zap.Int64("user_id", user.ID),
				zap.String("symbol", trade.Symbol),
				zap.Error(err),
			)
		}

		logger.Info("position commentary",
			zap.Int64("user_id", user.ID),
			zap.String("symbol", trade.Symbol),
			zap.Float64("pnl_percent", pnl),
			zap.String("crossing", state),
		)
	}
	return nil
}

func (t *Tracker) currentPrice(ctx context.Context, conn *models.ExchangeConnection, symbol string) (float64, error) {
	apiKey, secret, err := t.conns.Credentials(conn)
	if err != nil {
		return 0, err
	}
	venue, err := t.venues.Open(conn.ExchangeName, apiKey, secret)
	if err != nil {
		return 0, err
	}
	defer venue.Close()
	return venue.FetchTicker(ctx, symbol)
}

// buildCommentary returns the crossing state and the message text,
// or an empty state when no threshold is met
func buildCommentary(trade *models.Trade, pnl, price, avgWin, avgLoss float64, stopLoss *float64) (string, string) {
	if avgWin > 0 && pnl > 0 && pnl >= avgWin {
		return crossAvgWin, fmt.Sprintf("📊 %s +%.1f%% (현재가 %s)\n너 평균 익절 +%.1f%%인데 넘었어.",
			trade.Symbol, pnl, formatPrice(price), avgWin)
	}
	if stopLoss != nil && pnl < 0 && -pnl >= -*stopLoss {
		return crossStopLoss, fmt.Sprintf("⚠️ %s %.1f%% (현재가 %s)\n너 원칙에서 손절 %.0f%%라고 했잖아.",
			trade.Symbol, pnl, formatPrice(price), *stopLoss)
	}
	if avgLoss < 0 && pnl < 0 && pnl <= avgLoss {
		return crossAvgLoss, fmt.Sprintf("📊 %s %.1f%% (현재가 %s)\n너 평균 손절 %.1f%%야. 한번 봐봐.",
			trade.Symbol, pnl, formatPrice(price), avgLoss)
	}
	return "", ""
}

// crossed records the trade's crossing state and reports whether it
// just entered a non-empty state
func (t *Tracker) crossed(tradeID int64, state string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous := t.lastState[tradeID]
	t.lastState[tradeID] = state
	return state != "" && state != previous
}

func (t *Tracker) pruneStale(open []models.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	alive := make(map[int64]bool, len(open))
	for i := range open {
		alive[open[i].ID] = true
	}
	for id := range t.lastState {
		if !alive[id] {
			delete(t.lastState, id)
		}
	}
}

// extractStopLoss pulls a stop threshold from the user's principles,
// always negative, nil when no principle states one
func (t *Tracker) extractStopLoss(ctx context.Context, userID int64) *float64 {
	principles, err := t.principles.GetActive(ctx, userID)
	if err != nil {
		return nil
	}
	for i := range principles {
		for _, pattern := range []*regexp.Regexp{stopLossKoPattern, stopLossEnPattern} {
			m := pattern.FindStringSubmatch(principles[i].Text)
			if m == nil {
				continue
			}
			val, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			if val > 0 {
				val = -val
			}
			return &val
		}
	}
	return nil
}

// formatPrice renders a price with thousands separators and no
// decimals, matching chat formatting elsewhere
func formatPrice(v float64) string {
	whole := strconv.FormatFloat(v, 'f', 0, 64)
	neg := false
	if len(whole) > 0 && whole[0] == '-' {
		neg = true
		whole = whole[1:]
	}
	var out []byte
	for i, c := range []byte(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
