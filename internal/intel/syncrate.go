package intel

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/internal/trades"
	"github.com/tradefork/engine/pkg/models"
)

// Judgement alignment needs this many graded signals before it counts
const minJudgedSignals = 5

// Recent-conversation window of the learning score
const activityWindow = 7 * 24 * time.Hour

// Learning score weights and caps
const (
	connectionWeight = 25.0
	principleWeight  = 25.0
	episodeWeight    = 30.0
	messageWeight    = 20.0

	connectionCap = 3
	principleCap  = 5
	episodeCap    = 50
	messageCap    = 20
)

// Sync rate blend: judgement alignment outweighs raw learning volume
const (
	learningShare = 0.4
	judgeShare    = 0.6
)

// ConnectionCounter counts active exchange connections
type ConnectionCounter interface {
	CountActive(ctx context.Context, userID int64) (int, error)
}

// PrincipleCounter counts active investment principles
type PrincipleCounter interface {
	CountActive(ctx context.Context, userID int64) (int, error)
}

// EpisodeCounter counts accumulated memory episodes
type EpisodeCounter interface {
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// MessageCounter counts recent user messages
type MessageCounter interface {
	CountUserMessagesSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// FeedbackStatsSource supplies graded-signal counters
type FeedbackStatsSource interface {
	GetFeedbackStats(ctx context.Context, userID int64) (*signals.FeedbackStats, error)
}

// ReasoningStatsSource supplies entry-reasoning confirmation counters
type ReasoningStatsSource interface {
	GetReasoningStats(ctx context.Context, userID int64) (*trades.ReasoningStats, error)
}

// SyncRate is the composite measure of how well the engine has
// absorbed the user
type SyncRate struct {
	Overall       float64
	Learning      float64
	Judge         float64
	JudgedSignals int
	Insufficient  bool
}

// SyncRateCalculator computes the sync rate from stored counters
type SyncRateCalculator struct {
	connections ConnectionCounter
	principles  PrincipleCounter
	episodes    EpisodeCounter
	messages    MessageCounter
	feedback    FeedbackStatsSource
	reasoning   ReasoningStatsSource
}

// NewSyncRateCalculator creates the sync rate calculator
func NewSyncRateCalculator(
	connections ConnectionCounter,
	principles PrincipleCounter,
	episodes EpisodeCounter,
	messages MessageCounter,
	feedback FeedbackStatsSource,
	reasoning ReasoningStatsSource,
) *SyncRateCalculator {
	return &SyncRateCalculator{
		connections: connections,
		principles:  principles,
		episodes:    episodes,
		messages:    messages,
		feedback:    feedback,
		reasoning:   reasoning,
	}
}

// Compute derives the current sync rate for a user
func (c *SyncRateCalculator) Compute(ctx context.Context, user *models.User) (*SyncRate, error) {
	connCount, err := c.connections.CountActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	principleCount, err := c.principles.CountActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	episodeCount, err := c.episodes.CountByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	messageCount, err := c.messages.CountUserMessagesSince(ctx, user.ID, time.Now().UTC().Add(-activityWindow))
	if err != nil {
		return nil, err
	}

	learning := round1(
		capped(connCount, connectionCap)*connectionWeight +
			capped(principleCount, principleCap)*principleWeight +
			capped(episodeCount, episodeCap)*episodeWeight +
			capped(messageCount, messageCap)*messageWeight)

	stats, err := c.feedback.GetFeedbackStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	rate := &SyncRate{Learning: learning, JudgedSignals: stats.Judged}
	if stats.Judged < minJudgedSignals {
		rate.Insufficient = true
		rate.Overall = round1(learning * learningShare)
		return rate, nil
	}

	reasoningStats, err := c.reasoning.GetReasoningStats(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	agreePct := float64(stats.Agreed) / float64(stats.Judged) * 100
	followPct := float64(stats.Followed) / float64(stats.Judged) * 100
	reasonPct := 0.0
	if reasoningStats.Answered > 0 {
		reasonPct = float64(reasoningStats.Confirmed) / float64(reasoningStats.Answered) * 100
	}

	rate.Judge = round1(agreePct*0.4 + followPct*0.3 + reasonPct*0.3)
	rate.Overall = round1(learning*learningShare + rate.Judge*judgeShare)
	return rate, nil
}

// FormatSyncRate renders the sync rate for the chat
func FormatSyncRate(rate *SyncRate) string {
	lines := []string{
		fmt.Sprintf("🔄 싱크로율: %.1f%%", rate.Overall),
		"",
		fmt.Sprintf("📚 학습 완성도: %.1f%%", rate.Learning),
	}
	if rate.Insufficient {
		lines = append(lines, fmt.Sprintf("🎯 판단 일치율: 아직 데이터 수집 중... (%d/%d)", rate.JudgedSignals, minJudgedSignals))
	} else {
		lines = append(lines, fmt.Sprintf("🎯 판단 일치율: %.1f%%", rate.Judge))
	}
	lines = append(lines, "", "💡 피드백을 자주 해주면 FORKER가 더 빨리 배워!")
	return strings.Join(lines, "\n")
}

func capped(count, limit int) float64 {
	if count >= limit {
		return 1
	}
	return float64(count) / float64(limit)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
