package signals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles signal persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates new signal repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a signal and returns it with its ID
func (r *Repository) Create(ctx context.Context, signal *models.Signal) error {
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	err := r.db.DB().GetContext(ctx, &signal.ID, `
		INSERT INTO signals (user_id, kind, content, reasoning, counter_argument,
			confidence, confidence_style, confidence_history, confidence_market,
			symbol, direction, stop_loss, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, signal.UserID, signal.Kind, signal.Content, signal.Reasoning, signal.CounterArgument,
		signal.Confidence, signal.ConfidenceStyle, signal.ConfidenceHistory, signal.ConfidenceMarket,
		signal.Symbol, signal.Direction, signal.StopLoss, signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}
	return nil
}

// GetByID returns one signal, nil when absent
func (r *Repository) GetByID(ctx context.Context, signalID int64) (*models.Signal, error) {
	var signal models.Signal
	err := r.db.DB().GetContext(ctx, &signal, `
		SELECT * FROM signals WHERE id = $1
	`, signalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return &signal, nil
}

// SetFeedback records the user's grading of a signal
func (r *Repository) SetFeedback(ctx context.Context, signalID int64, feedback string, agreed *bool) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE signals SET user_feedback = $2, user_agreed = $3 WHERE id = $1
	`, signalID, feedback, agreed)
	if err != nil {
		return fmt.Errorf("failed to set signal feedback: %w", err)
	}
	return nil
}

// SetTradeOutcome links a closed trade's result to a signal
func (r *Repository) SetTradeOutcome(ctx context.Context, signalID int64, followed bool, pnl *float64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE signals SET trade_followed = $2, trade_result_pnl = $3 WHERE id = $1
	`, signalID, followed, pnl)
	if err != nil {
		return fmt.Errorf("failed to set trade outcome: %w", err)
	}
	return nil
}

// SetEpisode links the signal to its memory episode
func (r *Repository) SetEpisode(ctx context.Context, signalID, episodeID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE signals SET episode_id = $2 WHERE id = $1
	`, signalID, episodeID)
	if err != nil {
		return fmt.Errorf("failed to link signal episode: %w", err)
	}
	return nil
}

// ListUnfollowedOlderThan returns trade signals whose trade_followed
// is still unset past the cutoff, for patrol reconciliation
func (r *Repository) ListUnfollowedOlderThan(ctx context.Context, userID int64, cutoff time.Time) ([]models.Signal, error) {
	var signals []models.Signal
	err := r.db.DB().SelectContext(ctx, &signals, `
		SELECT * FROM signals
		WHERE user_id = $1 AND kind = $2 AND trade_followed IS NULL AND created_at < $3
		ORDER BY created_at
	`, userID, models.SignalTrade, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfollowed signals: %w", err)
	}
	return signals, nil
}

// MarkUnfollowed stamps a signal as not acted on
func (r *Repository) MarkUnfollowed(ctx context.Context, signalID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE signals SET trade_followed = false WHERE id = $1
	`, signalID)
	if err != nil {
		return fmt.Errorf("failed to mark signal unfollowed: %w", err)
	}
	return nil
}

// FindNearestForTrade returns the newest signal for the trade's base
// symbol created within the window, nil when none matches
func (r *Repository) FindNearestForTrade(ctx context.Context, userID int64, baseSymbol string, from, to time.Time) (*models.Signal, error) {
	var signal models.Signal
	err := r.db.DB().GetContext(ctx, &signal, `
		SELECT * FROM signals
		WHERE user_id = $1 AND kind = $2 AND upper(split_part(symbol, '/', 1)) = upper($3)
		  AND created_at BETWEEN $4 AND $5
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, models.SignalTrade, baseSymbol, from, to)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find signal for trade: %w", err)
	}
	return &signal, nil
}

// ListRecent returns the newest signals, created_at desc
func (r *Repository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.Signal, error) {
	var signals []models.Signal
	err := r.db.DB().SelectContext(ctx, &signals, `
		SELECT * FROM signals WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent signals: %w", err)
	}
	return signals, nil
}

// FeedbackStats aggregates judged-signal counters for the sync rate
type FeedbackStats struct {
	Judged     int `db:"judged"`
	Agreed     int `db:"agreed"`
	Followed   int `db:"followed"`
	WithReason int `db:"with_reason"`
}

// GetFeedbackStats counts signals the user has graded
func (r *Repository) GetFeedbackStats(ctx context.Context, userID int64) (*FeedbackStats, error) {
	var stats FeedbackStats
	err := r.db.DB().GetContext(ctx, &stats, `
		SELECT
			COUNT(*) FILTER (WHERE user_agreed IS NOT NULL) AS judged,
			COUNT(*) FILTER (WHERE user_agreed = true) AS agreed,
			COUNT(*) FILTER (WHERE trade_followed = true) AS followed,
			COUNT(*) FILTER (WHERE user_feedback IS NOT NULL AND user_feedback <> '') AS with_reason
		FROM signals
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}
	return &stats, nil
}
