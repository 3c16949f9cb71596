package patrol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// StreamManager manages stream temperatures
type StreamManager interface {
	AutoTransition(ctx context.Context, userID int64) (hotToWarm, warmToCold int64, err error)
}

// StreamLister reads a user's base streams
type StreamLister interface {
	UserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error)
}

// TriggerStore is the trigger surface patrol needs
type TriggerStore interface {
	Create(ctx context.Context, trigger *models.UserTrigger) error
	GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error)
	GetDeferred(ctx context.Context, userID int64) ([]models.UserTrigger, error)
	ActiveDescriptions(ctx context.Context, userID int64, source string) (map[string]bool, error)
	Retire(ctx context.Context, triggerID int64) error
	MarkTriggered(ctx context.Context, triggerID int64) error
}

// TopSymbolLister supplies the user's most-traded base symbols
type TopSymbolLister interface {
	TopSymbols(ctx context.Context, userID int64, limit int) ([]string, error)
}

// UnfollowedChecker reconciles signals the user never acted on
type UnfollowedChecker interface {
	CheckUnfollowed(ctx context.Context, user *models.User) error
}

// WebSearcher looks up market context for an evaluation prompt
type WebSearcher interface {
	Search(ctx context.Context, message string) string
}

// LogStore records completed sweeps
type LogStore interface {
	Create(ctx context.Context, log *models.PatrolLog) error
}

// MessageLog records emitted messages in the conversational log
type MessageLog interface {
	Save(ctx context.Context, msg *models.ChatMessage) error
}

// Report summarizes one patrol sweep
type Report struct {
	Findings    []models.JSONMap
	Actions     []models.JSONMap
	TempChanges models.JSONMap
}

// Service is the hourly autonomous patrol. One sweep per user covers
// temperature management, anomaly scanning, auto-trigger synthesis,
// llm_evaluated trigger checks, deferred requests, and the
// unfollowed-signal reconciliation.
type Service struct {
	streams    StreamManager
	lister     StreamLister
	triggers   TriggerStore
	symbols    TopSymbolLister
	unfollowed UnfollowedChecker
	search     WebSearcher
	llm        ai.Client
	logs       LogStore
	messages   MessageLog
	messenger  telegram.Messenger
	usage      *clickhouse.UsageWriter
}

// NewService creates the patrol service
func NewService(
	streams StreamManager,
	lister StreamLister,
	triggers TriggerStore,
	symbols TopSymbolLister,
	unfollowed UnfollowedChecker,
	search WebSearcher,
	llm ai.Client,
	logs LogStore,
	messages MessageLog,
	messenger telegram.Messenger,
	usage *clickhouse.UsageWriter,
) *Service {
	return &Service{
		streams:    streams,
		lister:     lister,
		triggers:   triggers,
		symbols:    symbols,
		unfollowed: unfollowed,
		search:     search,
		llm:        llm,
		logs:       logs,
		messages:   messages,
		messenger:  messenger,
		usage:      usage,
	}
}

// ShouldSkip reports whether this sweep should pass over the user.
// Users inactive for more than a day are patrolled on even hours
// only, halving their cadence without dropping them.
func (s *Service) ShouldSkip(user *models.User, now time.Time) bool {
	if user.LastActiveAt == nil {
		return false
	}
	if now.Sub(*user.LastActiveAt) <= 24*time.Hour {
		return false
	}
	return now.UTC().Hour()%2 != 0
}

// Run executes one sweep for one user
func (s *Service) Run(ctx context.Context, user *models.User) (*Report, error) {
	report := &Report{}

	hotToWarm, warmToCold, err := s.streams.AutoTransition(ctx, user.ID)
	if err != nil {
		logger.Warn("temperature transition failed", zap.Int64("user_id", user.ID), zap.Error(err))
	} else if hotToWarm > 0 || warmToCold > 0 {
		report.TempChanges = models.JSONMap{"hot_to_warm": hotToWarm, "warm_to_cold": warmToCold}
		report.Actions = append(report.Actions, models.JSONMap{
			"type":    "temperature_transition",
			"changes": report.TempChanges,
		})
	}

	anomalies := s.scanAnomalies(ctx, user)
	for _, a := range anomalies {
		report.Findings = append(report.Findings, models.JSONMap{
			"type": a.Type, "symbol": a.Symbol, "detail": a.Detail, "severity": a.Severity,
		})
	}

	report.Actions = append(report.Actions, s.synthesizeTriggers(ctx, user, anomalies)...)
	report.Findings = append(report.Findings, s.evaluateLLMTriggers(ctx, user)...)

	if err := s.unfollowed.CheckUnfollowed(ctx, user); err != nil {
		logger.Warn("unfollowed signal check failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	report.Actions = append(report.Actions, s.processDeferred(ctx, user)...)

	log := &models.PatrolLog{
		UserID:             user.ID,
		Kind:               models.PatrolScheduled,
		Findings:           models.JSONMap{"items": toList(report.Findings)},
		ActionsTaken:       models.JSONMap{"items": toList(report.Actions)},
		TemperatureChanges: report.TempChanges,
	}
	if err := s.logs.Create(ctx, log); err != nil {
		logger.Warn("failed to record patrol log", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	logger.Info("patrol complete",
		zap.Int64("user_id", user.ID),
		zap.Int("findings", len(report.Findings)),
		zap.Int("actions", len(report.Actions)),
	)
	return report, nil
}

func toList(maps []models.JSONMap) models.JSONList {
	list := make(models.JSONList, 0, len(maps))
	for _, m := range maps {
		list = append(list, map[string]interface{}(m))
	}
	return list
}

// scanAnomalies inspects hot and warm streams for unusual readings
func (s *Service) scanAnomalies(ctx context.Context, user *models.User) []Anomaly {
	streams, err := s.lister.UserStreams(ctx, user.ID, models.TempHot, models.TempWarm)
	if err != nil {
		logger.Warn("anomaly scan failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}

	var anomalies []Anomaly
	for i := range streams {
		stream := &streams[i]
		if stream.LastValue == nil {
			continue
		}
		symbol := ""
		if stream.Symbol != nil {
			symbol = *stream.Symbol
		}
		if a := DetectAnomaly(stream.StreamType, symbol, stream.LastValue); a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

// synthesizeTriggers turns anomalies on the user's primary symbols
// into notifications plus follow-up llm_evaluated triggers. Existing
// patrol triggers with the same description are not recreated.
func (s *Service) synthesizeTriggers(ctx context.Context, user *models.User, anomalies []Anomaly) []models.JSONMap {
	if len(anomalies) == 0 {
		return nil
	}

	primary := make(map[string]bool)
	if symbols, err := s.symbols.TopSymbols(ctx, user.ID, 5); err == nil {
		for _, sym := range symbols {
			primary[sym] = true
		}
	}

	existing, err := s.triggers.ActiveDescriptions(ctx, user.ID, models.TriggerSourcePatrol)
	if err != nil {
		logger.Warn("failed to load patrol triggers", zap.Int64("user_id", user.ID), zap.Error(err))
		existing = map[string]bool{}
	}

	var actions []models.JSONMap
	for _, anomaly := range anomalies {
		if anomaly.Symbol == "" {
			continue
		}
		if len(primary) > 0 && !primary[anomaly.Symbol] {
			continue
		}
		if existing[anomaly.Detail] {
			continue
		}

		emoji := "⚡"
		if anomaly.Severity == SeverityHigh {
			emoji = "🚨"
		}
		text := fmt.Sprintf("%s 순찰 감지: %s\n네 관심 종목이라 알려줘.", emoji, anomaly.Detail)

		intent := "patrol_deferred"
		if err := s.messages.Save(ctx, &models.ChatMessage{
			UserID:      user.ID,
			Role:        models.RoleAssistant,
			Content:     text,
			MessageType: "text",
			Intent:      &intent,
		}); err != nil {
			logger.Warn("failed to log patrol notice", zap.Int64("user_id", user.ID), zap.Error(err))
		}

		evalPrompt := fmt.Sprintf("%s: 이 상황이 매매 기회인지 위험인지 평가", anomaly.Detail)
		trigger := &models.UserTrigger{
			UserID:      user.ID,
			Kind:        models.TriggerLLMEvaluated,
			EvalPrompt:  &evalPrompt,
			DataNeeded:  models.JSONList{"news", "sentiment"},
			Description: anomaly.Detail,
			Source:      models.TriggerSourcePatrol,
		}
		if err := s.triggers.Create(ctx, trigger); err != nil {
			logger.Error("failed to create patrol trigger", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		existing[anomaly.Detail] = true

		if _, err := s.messenger.SendText(ctx, user.TelegramID, text); err != nil {
			logger.Error("failed to deliver patrol notice", zap.Int64("user_id", user.ID), zap.Error(err))
		}

		actions = append(actions, models.JSONMap{
			"type":        "auto_trigger_created",
			"anomaly":     anomaly.Type,
			"symbol":      anomaly.Symbol,
			"description": anomaly.Detail,
		})
		logger.Info("patrol trigger created",
			zap.Int64("user_id", user.ID),
			zap.String("description", anomaly.Detail),
		)
	}
	return actions
}

// evaluateLLMTriggers runs every active llm_evaluated trigger through
// the model. A met condition retires the trigger and notifies the user.
func (s *Service) evaluateLLMTriggers(ctx context.Context, user *models.User) []models.JSONMap {
	triggers, err := s.triggers.GetActive(ctx, user.ID, models.TriggerLLMEvaluated)
	if err != nil {
		logger.Warn("failed to load llm triggers", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}

	var findings []models.JSONMap
	for i := range triggers {
		trigger := &triggers[i]
		met, err := s.llmEvaluate(ctx, user, trigger)
		if err != nil {
			logger.Error("llm trigger evaluation failed", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
			continue
		}
		findings = append(findings, models.JSONMap{
			"trigger_id":    trigger.ID,
			"description":   trigger.Description,
			"condition_met": met,
		})
		if !met {
			continue
		}

		if err := s.triggers.Retire(ctx, trigger.ID); err != nil {
			logger.Error("failed to retire llm trigger", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
			continue
		}
		text := fmt.Sprintf("🧠 순찰 결과: %s\n조건이 충족된 것으로 판단돼.", trigger.Description)
		s.deliver(ctx, user, text)
	}
	return findings
}

// processDeferred evaluates user-requested conditions that the chat
// surface deferred to patrol. Both outcomes are reported back; an
// unmet condition is stamped so the next sweep rechecks it.
func (s *Service) processDeferred(ctx context.Context, user *models.User) []models.JSONMap {
	deferred, err := s.triggers.GetDeferred(ctx, user.ID)
	if err != nil {
		logger.Warn("failed to load deferred requests", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil
	}

	var actions []models.JSONMap
	for i := range deferred {
		trigger := &deferred[i]
		met, err := s.llmEvaluate(ctx, user, trigger)
		if err != nil {
			logger.Error("deferred request failed", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
			continue
		}

		var text string
		if met {
			if err := s.triggers.Retire(ctx, trigger.ID); err != nil {
				logger.Error("failed to retire deferred trigger", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
				continue
			}
			text = fmt.Sprintf("📋 대기 요청 결과: %s\n확인 결과, 조건 충족이야.", trigger.Description)
		} else {
			if err := s.triggers.MarkTriggered(ctx, trigger.ID); err != nil {
				logger.Error("failed to stamp deferred trigger", zap.Int64("trigger_id", trigger.ID), zap.Error(err))
				continue
			}
			text = fmt.Sprintf("📋 대기 요청 체크: %s\n아직 조건 미충족. 다음 순찰에서 다시 확인할게.", trigger.Description)
		}
		s.deliver(ctx, user, text)

		actions = append(actions, models.JSONMap{
			"type":        "deferred_evaluated",
			"trigger_id":  trigger.ID,
			"description": trigger.Description,
			"result":      met,
		})
	}
	return actions
}

func (s *Service) deliver(ctx context.Context, user *models.User, text string) {
	intent := "patrol_deferred"
	if err := s.messages.Save(ctx, &models.ChatMessage{
		UserID:      user.ID,
		Role:        models.RoleAssistant,
		Content:     text,
		MessageType: "text",
		Intent:      &intent,
	}); err != nil {
		logger.Warn("failed to log patrol message", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if _, err := s.messenger.SendText(ctx, user.TelegramID, text); err != nil {
		logger.Error("failed to deliver patrol message", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

const evalSystemPrompt = "너는 시장 조건 평가 시스템이야. 아래 조건이 현재 충족되었는지 판단해. " +
	"반드시 첫 줄에 'YES' 또는 'NO'만 출력하고, 그 다음 줄에 간단한 근거를 1~2문장으로 작성해."

// llmEvaluate asks the model whether a trigger's condition currently
// holds. Context is the base snapshot plus a web search when the
// trigger asks for news or sentiment data.
func (s *Service) llmEvaluate(ctx context.Context, user *models.User, trigger *models.UserTrigger) (bool, error) {
	evalPrompt := trigger.Description
	if trigger.EvalPrompt != nil && *trigger.EvalPrompt != "" {
		evalPrompt = *trigger.EvalPrompt
	}

	var contextParts []string

	if streams, err := s.lister.UserStreams(ctx, user.ID, models.TempHot, models.TempWarm); err == nil {
		var lines []string
		for i := range streams {
			if streams[i].LastValue == nil {
				continue
			}
			symbol := "all"
			if streams[i].Symbol != nil {
				symbol = *streams[i].Symbol
			}
			encoded, err := json.Marshal(streams[i].LastValue)
			if err != nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s/%s: %s", streams[i].StreamType, symbol, encoded))
			if len(lines) >= 20 {
				break
			}
		}
		if len(lines) > 0 {
			contextParts = append(contextParts, "## Base 데이터\n"+strings.Join(lines, "\n"))
		}
	}

	if needsSearch(trigger.DataNeeded) {
		if result := s.search.Search(ctx, evalPrompt); result != "" && result != "검색 결과 없음" {
			if runes := []rune(result); len(runes) > 2000 {
				result = string(runes[:2000])
			}
			contextParts = append(contextParts, "## 검색 결과\n"+result)
		}
	}

	contextText := "수집 데이터 없음"
	if len(contextParts) > 0 {
		contextText = strings.Join(contextParts, "\n\n")
	}

	started := time.Now()
	resp, err := s.llm.Fast(ctx, &ai.Request{
		StaticSystem: evalSystemPrompt,
		Messages: []models.LLMMessage{{
			Role:    "user",
			Content: fmt.Sprintf("## 평가할 조건\n%s\n\n## 현재 데이터\n%s", evalPrompt, contextText),
		}},
		MaxTokens: 200,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate trigger: %w", err)
	}

	s.usage.AddUsage(clickhouse.LLMUsageRecord{
		Timestamp:    time.Now().UTC(),
		UserID:       user.ID,
		Component:    "patrol_eval",
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CacheRead:    resp.Usage.CacheRead,
		LatencyMs:    time.Since(started).Milliseconds(),
	})

	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp.Text)), "YES"), nil
}

func needsSearch(dataNeeded models.JSONList) bool {
	for _, item := range dataNeeded {
		name, ok := item.(string)
		if !ok {
			continue
		}
		switch name {
		case "news", "social", "sentiment", "general":
			return true
		}
	}
	return false
}
