package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Outcome labels for signal-to-trade reconciliation
const (
	resultHit        = "적중"
	resultMiss       = "미스"
	resultCounter    = "반대매매"
	resultUnfollowed = "unfollowed"
)

// How long after delivery an unacted trade signal counts as unfollowed
const unfollowedAfter = 24 * time.Hour

// Signal linkage window around the trade open
const (
	linkWindowBefore = 24 * time.Hour
	linkWindowAfter  = time.Hour
)

// SignalStore is the signal surface the learner needs
type SignalStore interface {
	GetByID(ctx context.Context, signalID int64) (*models.Signal, error)
	SetFeedback(ctx context.Context, signalID int64, feedback string, agreed *bool) error
	SetTradeOutcome(ctx context.Context, signalID int64, followed bool, pnl *float64) error
	SetEpisode(ctx context.Context, signalID, episodeID int64) error
	ListUnfollowedOlderThan(ctx context.Context, userID int64, cutoff time.Time) ([]models.Signal, error)
	MarkUnfollowed(ctx context.Context, signalID int64) error
	FindNearestForTrade(ctx context.Context, userID int64, baseSymbol string, from, to time.Time) (*models.Signal, error)
}

// EpisodeWriter appends to episodic memory
type EpisodeWriter interface {
	Create(ctx context.Context, episode *models.Episode) (int64, error)
}

// Learner closes the loop between signals, user reactions, and trade
// outcomes. Every path ends in a feedback episode so the judge's
// context keeps absorbing what the user actually did.
type Learner struct {
	signals  SignalStore
	episodes EpisodeWriter
	outcomes *clickhouse.OutcomeWriter
}

// NewLearner creates the feedback learner
func NewLearner(signals SignalStore, episodes EpisodeWriter, outcomes *clickhouse.OutcomeWriter) *Learner {
	return &Learner{signals: signals, episodes: episodes, outcomes: outcomes}
}

// OnSignalFeedback records the user's grading of a signal and turns
// it into a feedback episode
func (l *Learner) OnSignalFeedback(ctx context.Context, user *models.User, signalID int64, feedback string, agreed *bool) error {
	signal, err := l.signals.GetByID(ctx, signalID)
	if err != nil {
		return err
	}
	if signal == nil {
		logger.Warn("feedback for unknown signal", zap.Int64("signal_id", signalID))
		return nil
	}

	if err := l.signals.SetFeedback(ctx, signalID, feedback, agreed); err != nil {
		return err
	}

	kind := classifyFeedback(agreed, feedback)
	symbol := "unknown"
	if signal.Symbol != nil && *signal.Symbol != "" {
		symbol = *signal.Symbol
	}

	embedding := []string{
		fmt.Sprintf("시그널 피드백 (%s): %s", kind, symbol),
		"시그널: " + truncateRunes(signal.Content, 200),
	}
	if feedback != "" {
		embedding = append(embedding, "유저 의견: "+truncateRunes(feedback, 200))
	}

	reasoning := feedback
	if reasoning == "" {
		reasoning = "반대"
		if agreed != nil && *agreed {
			reasoning = "동의"
		}
	}

	episode := &models.Episode{
		UserID:        user.ID,
		Kind:          models.EpisodeFeedback,
		UserAction:    fmt.Sprintf("시그널 피드백 (%s): %s", kind, symbol),
		EmbeddingText: strings.Join(embedding, " | "),
		Reasoning:     &reasoning,
		TradeData: models.JSONMap{
			"signal_id":   signal.ID,
			"signal_type": signal.Kind,
			"symbol":      signal.Symbol,
			"direction":   signal.Direction,
			"confidence":  signal.Confidence,
			"user_agreed": agreed,
		},
	}
	episodeID, err := l.episodes.Create(ctx, episode)
	if err != nil {
		return fmt.Errorf("failed to create feedback episode: %w", err)
	}
	if err := l.signals.SetEpisode(ctx, signal.ID, episodeID); err != nil {
		logger.Warn("failed to link feedback episode", zap.Int64("signal_id", signal.ID), zap.Error(err))
	}

	l.recordOutcome(user, signal, kind, false)

	logger.Info("signal feedback recorded",
		zap.Int64("user_id", user.ID),
		zap.Int64("signal_id", signalID),
		zap.String("kind", kind),
	)
	return nil
}

// OnTradeClose links a closed trade back to the signal that preceded
// it and writes the outcome episode. Runs from the trade detector.
func (l *Learner) OnTradeClose(ctx context.Context, user *models.User, trade *models.Trade) error {
	if trade.PnlPercent == nil || *trade.PnlPercent == 0 {
		return nil
	}

	signal, err := l.signals.FindNearestForTrade(ctx, user.ID, trade.BaseSymbol(),
		trade.OpenedAt.Add(-linkWindowBefore), trade.OpenedAt.Add(linkWindowAfter))
	if err != nil {
		return err
	}
	if signal == nil {
		logger.Debug("no signal near trade",
			zap.Int64("trade_id", trade.ID),
			zap.String("symbol", trade.Symbol),
		)
		return nil
	}

	pnl := *trade.PnlPercent
	if err := l.signals.SetTradeOutcome(ctx, signal.ID, true, &pnl); err != nil {
		return err
	}

	signalDirection := models.DirectionWatch
	if signal.Direction != nil {
		signalDirection = *signal.Direction
	}
	match := directionsMatch(signalDirection, trade.Side)

	result := resultMiss
	if !match {
		result = resultCounter
	} else if pnl > 0 {
		result = resultHit
	}

	signalReasoning := "없음"
	if signal.Reasoning != "" {
		signalReasoning = truncateRunes(signal.Reasoning, 200)
	}
	reasoning := fmt.Sprintf("시그널 %s, 매매 %s, 결과 %+.1f%%", signalDirection, trade.Side, pnl)
	resultText := fmt.Sprintf("%+.1f%%", pnl)

	episode := &models.Episode{
		UserID:     user.ID,
		Kind:       models.EpisodeFeedback,
		UserAction: fmt.Sprintf("매매 결과 피드백 (%s): %s %+.1f%%", result, trade.Symbol, pnl),
		EmbeddingText: fmt.Sprintf("시그널 결과 (%s): %s 시그널=%s 매매=%s 결과=%+.1f%% 근거: %s",
			result, trade.Symbol, signalDirection, trade.Side, pnl, signalReasoning),
		Reasoning:   &reasoning,
		TradeResult: &resultText,
		TradeData: models.JSONMap{
			"signal_id":        signal.ID,
			"trade_id":         trade.ID,
			"symbol":           trade.Symbol,
			"signal_direction": signalDirection,
			"trade_direction":  trade.Side,
			"pnl_percent":      pnl,
			"result":           result,
			"confidence":       signal.Confidence,
		},
	}
	if _, err := l.episodes.Create(ctx, episode); err != nil {
		return fmt.Errorf("failed to create outcome episode: %w", err)
	}

	l.recordOutcome(user, signal, result, true)

	logger.Info("trade outcome linked",
		zap.Int64("user_id", user.ID),
		zap.Int64("trade_id", trade.ID),
		zap.Int64("signal_id", signal.ID),
		zap.String("result", result),
		zap.Float64("pnl_percent", pnl),
	)
	return nil
}

// CheckUnfollowed marks trade signals the user ignored for a day.
// Runs from patrol.
func (l *Learner) CheckUnfollowed(ctx context.Context, user *models.User) error {
	cutoff := time.Now().UTC().Add(-unfollowedAfter)
	stale, err := l.signals.ListUnfollowedOlderThan(ctx, user.ID, cutoff)
	if err != nil {
		return err
	}

	for i := range stale {
		signal := &stale[i]
		if err := l.signals.MarkUnfollowed(ctx, signal.ID); err != nil {
			logger.Error("failed to mark signal unfollowed", zap.Int64("signal_id", signal.ID), zap.Error(err))
			continue
		}

		symbol, direction := "", ""
		if signal.Symbol != nil {
			symbol = *signal.Symbol
		}
		if signal.Direction != nil {
			direction = *signal.Direction
		}
		reasoning := "유저가 시그널을 따르지 않음. 다른 판단을 한 것으로 학습."

		episode := &models.Episode{
			UserID:     user.ID,
			Kind:       models.EpisodeFeedback,
			UserAction: fmt.Sprintf("시그널 미매매: %s %s", symbol, direction),
			EmbeddingText: fmt.Sprintf("시그널 미매매: %s %s conf=%.0f%%, 유저가 따르지 않음",
				symbol, direction, signal.Confidence*100),
			Reasoning: &reasoning,
			TradeData: models.JSONMap{
				"signal_id":  signal.ID,
				"symbol":     signal.Symbol,
				"direction":  signal.Direction,
				"confidence": signal.Confidence,
				"result":     resultUnfollowed,
			},
		}
		if _, err := l.episodes.Create(ctx, episode); err != nil {
			logger.Warn("failed to create unfollowed episode", zap.Int64("signal_id", signal.ID), zap.Error(err))
		}

		l.recordOutcome(user, signal, resultUnfollowed, false)
	}

	if len(stale) > 0 {
		logger.Info("unfollowed signals detected",
			zap.Int64("user_id", user.ID),
			zap.Int("count", len(stale)),
		)
	}
	return nil
}

func (l *Learner) recordOutcome(user *models.User, signal *models.Signal, feedback string, followed bool) {
	direction := ""
	if signal.Direction != nil {
		direction = *signal.Direction
	}
	l.outcomes.AddOutcome(clickhouse.SignalOutcomeRecord{
		Timestamp:  time.Now().UTC(),
		UserID:     user.ID,
		SignalID:   signal.ID,
		Direction:  direction,
		Confidence: signal.Confidence,
		Source:     signal.Kind,
		Feedback:   feedback,
		Followed:   followed,
	})
}

// classifyFeedback buckets a reaction by agreement and by whether the
// user added words of their own
func classifyFeedback(agreed *bool, feedback string) string {
	switch {
	case agreed != nil && *agreed && feedback != "":
		return "동의+세부"
	case agreed != nil && *agreed:
		return "동의"
	case agreed != nil:
		return "반대"
	case feedback != "":
		return "세부조정"
	}
	return "미응답"
}

// directionsMatch reports whether the trade side expresses the same
// stance as the signal direction
func directionsMatch(signalDirection, tradeSide string) bool {
	sig := strings.ToLower(signalDirection)
	side := strings.ToLower(tradeSide)
	longSide := map[string]bool{"long": true, "buy": true}
	shortSide := map[string]bool{"short": true, "sell": true}
	return longSide[sig] && longSide[side] || shortSide[sig] && shortSide[side]
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
