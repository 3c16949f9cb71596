package intel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/internal/trades"
	"github.com/tradefork/engine/pkg/models"
)

type fakeCounts struct {
	connections int
	principles  int
	episodes    int
	messages    int
	feedback    signals.FeedbackStats
	reasoning   trades.ReasoningStats
}

type fakeConnCounter struct{ c *fakeCounts }

func (f fakeConnCounter) CountActive(ctx context.Context, userID int64) (int, error) {
	return f.c.connections, nil
}

type fakePrincipleCounter struct{ c *fakeCounts }

func (f fakePrincipleCounter) CountActive(ctx context.Context, userID int64) (int, error) {
	return f.c.principles, nil
}

type fakeEpisodeCounter struct{ c *fakeCounts }

func (f fakeEpisodeCounter) CountByUser(ctx context.Context, userID int64) (int, error) {
	return f.c.episodes, nil
}

type fakeMessageCounter struct{ c *fakeCounts }

func (f fakeMessageCounter) CountUserMessagesSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	return f.c.messages, nil
}

type fakeFeedbackStats struct{ c *fakeCounts }

func (f fakeFeedbackStats) GetFeedbackStats(ctx context.Context, userID int64) (*signals.FeedbackStats, error) {
	stats := f.c.feedback
	return &stats, nil
}

type fakeReasoningStats struct{ c *fakeCounts }

func (f fakeReasoningStats) GetReasoningStats(ctx context.Context, userID int64) (*trades.ReasoningStats, error) {
	stats := f.c.reasoning
	return &stats, nil
}

func calculatorFor(c *fakeCounts) *SyncRateCalculator {
	return NewSyncRateCalculator(
		fakeConnCounter{c},
		fakePrincipleCounter{c},
		fakeEpisodeCounter{c},
		fakeMessageCounter{c},
		fakeFeedbackStats{c},
		fakeReasoningStats{c},
	)
}

func TestSyncRateInsufficientJudgements(t *testing.T) {
	calc := calculatorFor(&fakeCounts{
		connections: 3,
		principles:  5,
		episodes:    50,
		messages:    20,
		feedback:    signals.FeedbackStats{Judged: 3, Agreed: 3},
	})

	rate, err := calc.Compute(context.Background(), &models.User{ID: 1})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !rate.Insufficient {
		t.Error("three judged signals must not be enough")
	}
	if rate.Learning != 100 {
		t.Errorf("learning = %v, want 100", rate.Learning)
	}
	if rate.Judge != 0 {
		t.Errorf("judge = %v, want 0", rate.Judge)
	}
	if rate.Overall != 40 {
		t.Errorf("overall = %v, want 40", rate.Overall)
	}
}

func TestSyncRateFullScores(t *testing.T) {
	calc := calculatorFor(&fakeCounts{
		connections: 3,
		principles:  5,
		episodes:    50,
		messages:    20,
		feedback:    signals.FeedbackStats{Judged: 10, Agreed: 8, Followed: 5},
		reasoning:   trades.ReasoningStats{Confirmed: 3, Answered: 4},
	})

	rate, err := calc.Compute(context.Background(), &models.User{ID: 1})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if rate.Insufficient {
		t.Error("ten judged signals is enough")
	}
	// agree 80% * 0.4 + follow 50% * 0.3 + reason 75% * 0.3
	if rate.Judge != 69.5 {
		t.Errorf("judge = %v, want 69.5", rate.Judge)
	}
	if rate.Overall != 81.7 {
		t.Errorf("overall = %v, want 81.7", rate.Overall)
	}
}

func TestSyncRateLearningCaps(t *testing.T) {
	calc := calculatorFor(&fakeCounts{connections: 1})

	rate, err := calc.Compute(context.Background(), &models.User{ID: 1})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if rate.Learning != 8.3 {
		t.Errorf("learning = %v, want 8.3", rate.Learning)
	}

	over := calculatorFor(&fakeCounts{connections: 10, principles: 99, episodes: 999, messages: 500})
	rate, err = over.Compute(context.Background(), &models.User{ID: 1})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if rate.Learning != 100 {
		t.Errorf("learning = %v, want capped at 100", rate.Learning)
	}
}

func TestSyncRateNoAnsweredReasonings(t *testing.T) {
	calc := calculatorFor(&fakeCounts{
		feedback: signals.FeedbackStats{Judged: 5, Agreed: 5, Followed: 5},
	})

	rate, err := calc.Compute(context.Background(), &models.User{ID: 1})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	// agree 100% * 0.4 + follow 100% * 0.3, reasoning contributes nothing
	if rate.Judge != 70 {
		t.Errorf("judge = %v, want 70", rate.Judge)
	}
}

func TestFormatSyncRate(t *testing.T) {
	got := FormatSyncRate(&SyncRate{Overall: 81.7, Learning: 100, Judge: 69.5})
	for _, want := range []string{
		"🔄 싱크로율: 81.7%",
		"📚 학습 완성도: 100.0%",
		"🎯 판단 일치율: 69.5%",
		"💡 피드백을 자주 해주면 FORKER가 더 빨리 배워!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("message = %q, want %q", got, want)
		}
	}

	insufficient := FormatSyncRate(&SyncRate{Overall: 20, Learning: 50, JudgedSignals: 2, Insufficient: true})
	if !strings.Contains(insufficient, "아직 데이터 수집 중... (2/5)") {
		t.Errorf("message = %q, want collection notice", insufficient)
	}
}
