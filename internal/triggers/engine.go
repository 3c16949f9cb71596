package triggers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Store is the trigger persistence surface the engine needs
type Store interface {
	GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error)
	Retire(ctx context.Context, triggerID int64) error
	MarkTriggered(ctx context.Context, triggerID int64) error
}

// MessageLog records emitted messages in the conversational log
type MessageLog interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// SignalRunner runs the full analysis pipeline for a fired signal
// trigger. The engine does not wait on its cost tiers synchronously
// beyond the call itself.
type SignalRunner interface {
	Run(ctx context.Context, user *models.User, trigger *models.UserTrigger) error
}

// Engine matches active alert and signal triggers against hot
// snapshots and fires them. Deferred llm_evaluated triggers are
// patrol's job and never evaluated here.
type Engine struct {
	store     Store
	messenger telegram.Messenger
	messages  MessageLog
	runner    SignalRunner
}

// NewEngine creates the trigger engine
func NewEngine(store Store, messenger telegram.Messenger, messages MessageLog, runner SignalRunner) *Engine {
	return &Engine{
		store:     store,
		messenger: messenger,
		messages:  messages,
		runner:    runner,
	}
}

// EvaluateUser matches the user's active alert and signal triggers
// against the snapshot and fires matches in trigger-id order. Returns
// the number fired. Per-trigger failures are logged and do not stop
// the sweep.
func (e *Engine) EvaluateUser(ctx context.Context, user *models.User, snapshot map[string]models.JSONMap) (int, error) {
	active, err := e.store.GetActive(ctx, user.ID, models.TriggerAlert, models.TriggerSignal)
	if err != nil {
		return 0, fmt.Errorf("failed to load active triggers: %w", err)
	}

	fired := 0
	for i := range active {
		trigger := &active[i]
		if !MatchCondition(trigger, snapshot) {
			continue
		}

		var fireErr error
		if trigger.Kind == models.TriggerAlert {
			fireErr = e.fireAlert(ctx, user, trigger)
		} else {
			fireErr = e.fireSignal(ctx, user, trigger)
		}
		if fireErr != nil {
			logger.Error("trigger firing failed",
				zap.Int64("user_id", user.ID),
				zap.Int64("trigger_id", trigger.ID),
				zap.Error(fireErr),
			)
			continue
		}
		fired++
	}
	return fired, nil
}

// fireAlert delivers a one-shot notification and retires the trigger.
// Retiring happens before delivery so a send failure cannot re-fire
// the same alert on the next tick.
func (e *Engine) fireAlert(ctx context.Context, user *models.User, trigger *models.UserTrigger) error {
	desc := trigger.Description
	if desc == "" {
		desc = "알림 조건 충족"
	}

	text := fmt.Sprintf("🔔 알림: %s", desc)
	symbol, _ := trigger.Condition.String("symbol")
	if value, ok := trigger.Condition["value"]; symbol != "" && ok {
		text = fmt.Sprintf("🔔 %s %s (%s)\n%s", symbol, conditionLabel(trigger.Condition), formatValue(value), desc)
	}

	if err := e.store.Retire(ctx, trigger.ID); err != nil {
		return err
	}

	intent := "alert"
	if err := e.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
	}); err != nil {
		logger.Warn("failed to log alert message", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
	}

	if _, err := e.messenger.SendText(ctx, user.TelegramID, text); err != nil {
		logger.Error("failed to deliver alert",
			zap.Int64("user_id", user.ID),
			zap.Int64("trigger_id", trigger.ID),
			zap.Error(err),
		)
	}

	logger.Info("alert fired",
		zap.Int64("user_id", user.ID),
		zap.Int64("trigger_id", trigger.ID),
	)
	return nil
}

// fireSignal stamps the trigger, tells the user analysis is underway,
// and starts the pipeline. The trigger stays active until the
// pipeline completes so a crashed run can fire again.
func (e *Engine) fireSignal(ctx context.Context, user *models.User, trigger *models.UserTrigger) error {
	desc := trigger.Description
	if desc == "" {
		desc = "시그널 조건 충족"
	}

	if err := e.store.MarkTriggered(ctx, trigger.ID); err != nil {
		return err
	}

	text := fmt.Sprintf("🎯 시그널 감지: %s\n분석 중...", desc)
	intent := "signal_trigger"
	if err := e.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
	}); err != nil {
		logger.Warn("failed to log signal message", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
	}

	if _, err := e.messenger.SendText(ctx, user.TelegramID, text); err != nil {
		logger.Error("failed to deliver signal notice",
			zap.Int64("user_id", user.ID),
			zap.Int64("trigger_id", trigger.ID),
			zap.Error(err),
		)
	}

	logger.Info("signal trigger fired",
		zap.Int64("user_id", user.ID),
		zap.Int64("trigger_id", trigger.ID),
	)

	if err := e.runner.Run(ctx, user, trigger); err != nil {
		logger.Error("signal pipeline failed",
			zap.Int64("user_id", user.ID),
			zap.Int64("trigger_id", trigger.ID),
			zap.Error(err),
		)
	}
	return nil
}
