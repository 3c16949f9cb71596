package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

const pipelineLockTTL = 2 * time.Minute

// JudgeContext is the per-user section of the judge system prompt
type JudgeContext struct {
	Intelligence string
	Principles   string
	Positions    string
}

// ContextProvider assembles the judge's user context
type ContextProvider interface {
	JudgeContext(ctx context.Context, user *models.User) (*JudgeContext, error)
}

// QuotaStore manages the daily signal allowance
type QuotaStore interface {
	ResetDailySignalsIfStale(ctx context.Context, userID int64, now time.Time) (int, error)
	IncrementDailySignalCount(ctx context.Context, userID int64) error
}

// SignalStore persists produced signals
type SignalStore interface {
	Create(ctx context.Context, signal *models.Signal) error
	SetEpisode(ctx context.Context, signalID, episodeID int64) error
}

// TriggerFinisher deactivates a signal trigger once its pipeline run
// completed
type TriggerFinisher interface {
	Deactivate(ctx context.Context, triggerID int64) error
}

// EpisodeWriter records the signal in episodic memory
type EpisodeWriter interface {
	Create(ctx context.Context, episode *models.Episode) (int64, error)
}

// Locker serializes pipeline runs per user
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string)
}

// Pipeline runs collection, judgement, and delivery for one fired
// signal trigger
type Pipeline struct {
	collector *Collector
	llm       ai.Client
	intel     ContextProvider
	quota     QuotaStore
	signals   SignalStore
	triggers  TriggerFinisher
	episodes  EpisodeWriter
	messages  MessageLog
	messenger telegram.Messenger
	locker    Locker
	usage     *clickhouse.UsageWriter

	dailyLimit int
}

// MessageLog records emitted messages in the conversational log
type MessageLog interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// NewPipeline creates the signal pipeline
func NewPipeline(
	collector *Collector,
	llm ai.Client,
	intel ContextProvider,
	quota QuotaStore,
	signals SignalStore,
	triggers TriggerFinisher,
	episodes EpisodeWriter,
	messages MessageLog,
	messenger telegram.Messenger,
	locker Locker,
	usage *clickhouse.UsageWriter,
	dailyLimit int,
) *Pipeline {
	return &Pipeline{
		collector:  collector,
		llm:        llm,
		intel:      intel,
		quota:      quota,
		signals:    signals,
		triggers:   triggers,
		episodes:   episodes,
		messages:   messages,
		messenger:  messenger,
		locker:     locker,
		usage:      usage,
		dailyLimit: dailyLimit,
	}
}

// Run executes one pipeline pass. Concurrent runs for the same user
// are serialized by a distributed lock; a run that cannot take the
// lock yields without consuming quota or the trigger.
func (p *Pipeline) Run(ctx context.Context, user *models.User, trigger *models.UserTrigger) error {
	lockName := fmt.Sprintf("signal-pipeline:%d", user.ID)
	acquired, err := p.locker.Lock(ctx, lockName, pipelineLockTTL)
	if err != nil || !acquired {
		logger.Info("signal pipeline already running",
			zap.Int64("user_id", user.ID),
			zap.Int64("trigger_id", trigger.ID),
		)
		return nil
	}
	defer p.locker.Unlock(ctx, lockName)

	runID := uuid.NewString()
	logger.Info("signal pipeline started",
		zap.String("run_id", runID),
		zap.Int64("user_id", user.ID),
		zap.Int64("trigger_id", trigger.ID),
	)

	count, err := p.quota.ResetDailySignalsIfStale(ctx, user.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to check signal quota: %w", err)
	}
	if count >= p.dailyLimit {
		notice := fmt.Sprintf("오늘 시그널 %d회 다 썼어. 내일 리셋!", p.dailyLimit)
		if _, err := p.messenger.SendText(ctx, user.TelegramID, notice); err != nil {
			logger.Warn("failed to send quota notice", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		logger.Info("signal quota exhausted", zap.Int64("user_id", user.ID), zap.Int("count", count))
		return nil
	}

	collected, err := p.collector.Collect(ctx, user, trigger)
	if err != nil {
		return fmt.Errorf("failed to collect signal data: %w", err)
	}

	judged, err := p.judge(ctx, user, trigger, collected)
	if err != nil {
		return err
	}

	symbol := collected.Symbol
	if symbol == "" {
		symbol = "UNKNOWN"
	}

	signal := &models.Signal{
		UserID:            user.ID,
		Kind:              judged.Kind,
		Content:           judged.Content,
		Reasoning:         judged.Reasoning,
		CounterArgument:   judged.CounterArgument,
		Confidence:        judged.Confidence,
		ConfidenceStyle:   judged.ConfidenceStyle,
		ConfidenceHistory: judged.ConfidenceHistory,
		ConfidenceMarket:  judged.ConfidenceMarket,
		Symbol:            &symbol,
		Direction:         &judged.Direction,
		StopLoss:          judged.StopLoss,
	}
	if err := p.signals.Create(ctx, signal); err != nil {
		return err
	}

	if err := p.quota.IncrementDailySignalCount(ctx, user.ID); err != nil {
		logger.Warn("failed to increment signal count", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	text := FormatSignalMessage(judged, symbol)

	intent := "signal"
	if err := p.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
		Metadata:    models.JSONMap{"signal_id": signal.ID},
	}); err != nil {
		logger.Warn("failed to log signal message", zap.Int64("signal_id", signal.ID), zap.Error(err))
	}

	if _, err := p.messenger.SendWithKeyboard(ctx, user.TelegramID, text, telegram.SignalFeedbackKeyboard(signal.ID)); err != nil {
		logger.Error("failed to deliver signal",
			zap.Int64("user_id", user.ID),
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
	}

	p.recordEpisode(ctx, user, signal, judged, collected)

	if err := p.triggers.Deactivate(ctx, trigger.ID); err != nil {
		logger.Warn("failed to deactivate signal trigger",
			zap.Int64("trigger_id", trigger.ID),
			zap.Error(err),
		)
	}

	logger.Info("signal produced",
		zap.String("run_id", runID),
		zap.Int64("user_id", user.ID),
		zap.Int64("signal_id", signal.ID),
		zap.String("symbol", symbol),
		zap.String("direction", judged.Direction),
		zap.Float64("confidence", judged.Confidence),
	)
	return nil
}

func (p *Pipeline) judge(ctx context.Context, user *models.User, trigger *models.UserTrigger, collected *Collected) (*Judged, error) {
	judgeCtx, err := p.intel.JudgeContext(ctx, user)
	if err != nil {
		logger.Warn("failed to build judge context", zap.Int64("user_id", user.ID), zap.Error(err))
		judgeCtx = &JudgeContext{}
	}

	dynamic := fmt.Sprintf(`## 트리거 정보
- 종목: %s
- 트리거 설명: %s

## 수집된 데이터
%s

## 유저 Intelligence
%s

## 유저 투자 원칙
%s

## 현재 보유 포지션
%s`,
		collected.Symbol,
		trigger.Description,
		FormatCollected(collected),
		judgeCtx.Intelligence,
		judgeCtx.Principles,
		judgeCtx.Positions,
	)

	started := time.Now()
	resp, err := p.llm.Deep(ctx, &ai.Request{
		StaticSystem:  judgeSystemPrompt,
		DynamicSystem: dynamic,
		Messages: []models.LLMMessage{{
			Role:    "user",
			Content: fmt.Sprintf("트리거 발동: %s\n\n수집 데이터 기반으로 판단해줘.", trigger.Description),
		}},
		MaxTokens: 2048,
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	p.usage.AddUsage(clickhouse.LLMUsageRecord{
		Timestamp:     time.Now().UTC(),
		UserID:        user.ID,
		Component:     "signal_judge",
		Model:         resp.Model,
		InputTokens:   resp.Usage.InputTokens,
		OutputTokens:  resp.Usage.OutputTokens,
		CacheRead:     resp.Usage.CacheRead,
		CacheCreation: resp.Usage.CacheCreation,
		LatencyMs:     time.Since(started).Milliseconds(),
	})

	return ParseJudgeResponse(resp.Text), nil
}

// recordEpisode writes the signal into episodic memory, best effort
func (p *Pipeline) recordEpisode(ctx context.Context, user *models.User, signal *models.Signal, judged *Judged, collected *Collected) {
	episode := &models.Episode{
		UserID:        user.ID,
		Kind:          models.EpisodeSignal,
		MarketContext: collected.BaseData,
		UserAction:    fmt.Sprintf("시그널: %s %s", *signal.Symbol, judged.Direction),
		Reasoning:     &judged.Reasoning,
		EmbeddingText: fmt.Sprintf("%s %s", *signal.Symbol, truncateRunes(judged.Reasoning, 300)),
	}

	episodeID, err := p.episodes.Create(ctx, episode)
	if err != nil {
		logger.Warn("failed to create signal episode",
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
		return
	}
	if err := p.signals.SetEpisode(ctx, signal.ID, episodeID); err != nil {
		logger.Warn("failed to link signal episode",
			zap.Int64("signal_id", signal.ID),
			zap.Error(err),
		)
	}
}
