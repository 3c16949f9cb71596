package intel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Section depth of the judge context
const (
	recentEpisodeLimit = 5
	recentSignalLimit  = 5
	calibrationLimit   = 20
	styleTagLimit      = 10
)

// TradeSource supplies trade history and open positions
type TradeSource interface {
	ListAll(ctx context.Context, userID int64) ([]models.Trade, error)
	ListOpen(ctx context.Context, userID int64) ([]models.Trade, error)
}

// SignalLister supplies recent signals
type SignalLister interface {
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Signal, error)
}

// PrincipleLister supplies active investment principles
type PrincipleLister interface {
	GetActive(ctx context.Context, userID int64) ([]models.Principle, error)
}

// EpisodeSource supplies episodic memory slices
type EpisodeSource interface {
	ListRecent(ctx context.Context, userID int64, limit int) ([]models.Episode, error)
	ListCalibrations(ctx context.Context, userID int64, limit int) ([]models.JSONMap, error)
	ListStyleTags(ctx context.Context, userID int64, limit int) ([]models.JSONMap, error)
}

// Provider assembles the per-user intelligence block of the judge
// prompt. Every section degrades independently; a failed query leaves
// its empty-state line rather than failing the whole context.
type Provider struct {
	trades     TradeSource
	signals    SignalLister
	principles PrincipleLister
	episodes   EpisodeSource
}

// NewProvider creates the intelligence provider
func NewProvider(trades TradeSource, signalLister SignalLister, principles PrincipleLister, episodes EpisodeSource) *Provider {
	return &Provider{trades: trades, signals: signalLister, principles: principles, episodes: episodes}
}

// JudgeContext builds the user context for one judge run
func (p *Provider) JudgeContext(ctx context.Context, user *models.User) (*signals.JudgeContext, error) {
	sections := []string{
		"### 프로필\n" + p.profileSection(ctx, user),
		"### 매매 패턴\n" + p.patternSection(ctx, user),
		"### 표현 캘리브레이션\n" + p.calibrationSection(ctx, user),
		"### 에피소드\n" + p.episodeSection(ctx, user),
		"### 최근 시그널\n" + p.signalSection(ctx, user),
	}

	return &signals.JudgeContext{
		Intelligence: strings.Join(sections, "\n\n"),
		Principles:   p.principleSection(ctx, user),
		Positions:    p.positionSection(ctx, user),
	}, nil
}

func (p *Provider) profileSection(ctx context.Context, user *models.User) string {
	tagMaps, err := p.episodes.ListStyleTags(ctx, user.ID, styleTagLimit)
	if err != nil {
		logger.Warn("style tags unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return FormatStyleContext(user, tagMaps)
}

func (p *Provider) patternSection(ctx context.Context, user *models.User) string {
	trades, err := p.trades.ListAll(ctx, user.ID)
	if err != nil {
		logger.Warn("trade history unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
		return "매매 이력 없음"
	}
	return AnalyzePatterns(trades).FormatContext()
}

func (p *Provider) calibrationSection(ctx context.Context, user *models.User) string {
	maps, err := p.episodes.ListCalibrations(ctx, user.ID, calibrationLimit)
	if err != nil {
		logger.Warn("calibrations unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
		return "캘리브레이션 데이터 없음"
	}
	return FormatCalibrations(MergeCalibrations(maps))
}

func (p *Provider) episodeSection(ctx context.Context, user *models.User) string {
	episodes, err := p.episodes.ListRecent(ctx, user.ID, recentEpisodeLimit)
	if err != nil {
		logger.Warn("episodes unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if len(episodes) == 0 {
		return "기록된 에피소드 없음"
	}

	lines := make([]string, len(episodes))
	for i := range episodes {
		ep := &episodes[i]
		reasoning := "없음"
		if ep.Reasoning != nil && *ep.Reasoning != "" {
			reasoning = truncateRunes(*ep.Reasoning, 100)
		}
		lines[i] = fmt.Sprintf("- [%s] %s (근거: %s)", ep.Kind, ep.UserAction, reasoning)
	}
	return strings.Join(lines, "\n")
}

func (p *Provider) signalSection(ctx context.Context, user *models.User) string {
	recent, err := p.signals.ListRecent(ctx, user.ID, recentSignalLimit)
	if err != nil {
		logger.Warn("recent signals unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if len(recent) == 0 {
		return "최근 시그널 없음"
	}

	lines := make([]string, len(recent))
	for i := range recent {
		s := &recent[i]
		lines[i] = fmt.Sprintf("- %s: %s (피드백: %s)", s.Kind, truncateRunes(s.Content, 100), feedbackLabel(s))
	}
	return strings.Join(lines, "\n")
}

func (p *Provider) principleSection(ctx context.Context, user *models.User) string {
	principles, err := p.principles.GetActive(ctx, user.ID)
	if err != nil {
		logger.Warn("principles unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if len(principles) == 0 {
		return "설정된 원칙 없음"
	}

	lines := make([]string, len(principles))
	for i := range principles {
		lines[i] = fmt.Sprintf("%d. %s", i+1, principles[i].Text)
	}
	return strings.Join(lines, "\n")
}

func (p *Provider) positionSection(ctx context.Context, user *models.User) string {
	open, err := p.trades.ListOpen(ctx, user.ID)
	if err != nil {
		logger.Warn("open positions unavailable", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if len(open) == 0 {
		return "보유 포지션 없음"
	}

	lines := make([]string, len(open))
	for i := range open {
		t := &open[i]
		lines[i] = fmt.Sprintf("- %s %s @ %s (x%d)", t.Symbol, t.Side, t.EntryPrice.String(), t.Leverage)
	}
	return strings.Join(lines, "\n")
}

func feedbackLabel(signal *models.Signal) string {
	if signal.UserFeedback != nil && *signal.UserFeedback != "" {
		return truncateRunes(*signal.UserFeedback, 50)
	}
	if signal.UserAgreed != nil {
		if *signal.UserAgreed {
			return "동의"
		}
		return "반대"
	}
	return "없음"
}
