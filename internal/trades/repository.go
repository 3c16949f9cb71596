package trades

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles trade persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates new trade repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a trade and returns it with its ID
func (r *Repository) Create(ctx context.Context, trade *models.Trade) error {
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now().UTC()
	}
	err := r.db.DB().GetContext(ctx, &trade.ID, `
		INSERT INTO trades (user_id, exchange, symbol, side, entry_price, size, leverage, status, opened_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, trade.UserID, trade.Exchange, trade.Symbol, trade.Side, trade.EntryPrice,
		trade.Size, trade.Leverage, trade.Status, trade.OpenedAt, trade.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// ExistsNear reports whether a trade for the same (user, exchange,
// symbol) was already recorded within the window around openedAt
func (r *Repository) ExistsNear(ctx context.Context, userID int64, exchange, symbol string, openedAt time.Time, window time.Duration) (bool, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM trades
		WHERE user_id = $1 AND exchange = $2 AND symbol = $3
		  AND opened_at BETWEEN $4 AND $5
	`, userID, exchange, symbol, openedAt.Add(-window), openedAt.Add(window))
	if err != nil {
		return false, fmt.Errorf("failed to check trade dedup: %w", err)
	}
	return count > 0, nil
}

// ListOpen returns a user's open trades
func (r *Repository) ListOpen(ctx context.Context, userID int64) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.DB().SelectContext(ctx, &trades, `
		SELECT * FROM trades WHERE user_id = $1 AND status = $2 ORDER BY opened_at
	`, userID, models.TradeOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return trades, nil
}

// Close transitions a trade to closed with its computed outcome
func (r *Repository) Close(ctx context.Context, trade *models.Trade) error {
	now := time.Now().UTC()
	trade.Status = models.TradeClosed
	trade.ClosedAt = &now

	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE trades
		SET status = $2, exit_price = $3, pnl_percent = $4, pnl_amount = $5, closed_at = $6
		WHERE id = $1
	`, trade.ID, trade.Status, trade.ExitPrice, trade.PnlPercent, trade.PnlAmount, trade.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to close trade: %w", err)
	}
	return nil
}

// SetReasoning stores the inferred entry hypothesis
func (r *Repository) SetReasoning(ctx context.Context, tradeID int64, reasoning string) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE trades SET inferred_reasoning = $2 WHERE id = $1
	`, tradeID, reasoning)
	if err != nil {
		return fmt.Errorf("failed to set trade reasoning: %w", err)
	}
	return nil
}

// SetEpisode links the trade to its memory episode
func (r *Repository) SetEpisode(ctx context.Context, tradeID, episodeID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE trades SET episode_id = $2 WHERE id = $1
	`, tradeID, episodeID)
	if err != nil {
		return fmt.Errorf("failed to link trade episode: %w", err)
	}
	return nil
}

// LatestUnconfirmed returns the newest trade still awaiting the
// user's yes/no on the inferred reasoning, nil when none
func (r *Repository) LatestUnconfirmed(ctx context.Context, userID int64) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.DB().GetContext(ctx, &trade, `
		SELECT * FROM trades
		WHERE user_id = $1 AND user_confirmed_reasoning IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unconfirmed trade: %w", err)
	}
	return &trade, nil
}

// ConfirmReasoning records the user's verdict on the hypothesis
func (r *Repository) ConfirmReasoning(ctx context.Context, tradeID int64, confirmed bool) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE trades SET user_confirmed_reasoning = $2 WHERE id = $1
	`, tradeID, confirmed)
	if err != nil {
		return fmt.Errorf("failed to confirm trade reasoning: %w", err)
	}
	return nil
}

// LatestDenied returns the newest trade whose hypothesis the user
// rejected and has not yet explained, nil when none
func (r *Repository) LatestDenied(ctx context.Context, userID int64) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.DB().GetContext(ctx, &trade, `
		SELECT * FROM trades
		WHERE user_id = $1 AND user_confirmed_reasoning = false AND user_actual_reasoning IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get denied trade: %w", err)
	}
	return &trade, nil
}

// SetUserReasoning stores the user's own entry explanation
func (r *Repository) SetUserReasoning(ctx context.Context, tradeID int64, reasoning string) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE trades SET user_actual_reasoning = $2 WHERE id = $1
	`, tradeID, reasoning)
	if err != nil {
		return fmt.Errorf("failed to set user reasoning: %w", err)
	}
	return nil
}

// ClosedStats summarizes a user's closed trades
type ClosedStats struct {
	AvgWin  float64 `db:"avg_win"`
	AvgLoss float64 `db:"avg_loss"`
	WinRate float64 `db:"win_rate"`
	Total   int     `db:"total"`
}

// GetClosedStats aggregates win/loss averages over closed trades
func (r *Repository) GetClosedStats(ctx context.Context, userID int64) (*ClosedStats, error) {
	var stats ClosedStats
	err := r.db.DB().GetContext(ctx, &stats, `
		SELECT
			COALESCE(AVG(pnl_percent) FILTER (WHERE pnl_percent > 0), 0) AS avg_win,
			COALESCE(AVG(pnl_percent) FILTER (WHERE pnl_percent < 0), 0) AS avg_loss,
			COALESCE(COUNT(*) FILTER (WHERE pnl_percent > 0)::float / NULLIF(COUNT(*), 0) * 100, 0) AS win_rate,
			COUNT(*) AS total
		FROM trades
		WHERE user_id = $1 AND status = $2 AND pnl_percent IS NOT NULL
	`, userID, models.TradeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to get closed stats: %w", err)
	}
	return &stats, nil
}

// ListRecentClosed returns the newest closed trades, closed_at desc
func (r *Repository) ListRecentClosed(ctx context.Context, userID int64, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.DB().SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE user_id = $1 AND status = $2 AND pnl_percent IS NOT NULL
		ORDER BY closed_at DESC
		LIMIT $3
	`, userID, models.TradeClosed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent closed trades: %w", err)
	}
	return trades, nil
}

// ListClosed returns every closed trade for pattern analysis
func (r *Repository) ListClosed(ctx context.Context, userID int64) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.DB().SelectContext(ctx, &trades, `
		SELECT * FROM trades WHERE user_id = $1 AND status = $2 ORDER BY opened_at
	`, userID, models.TradeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed trades: %w", err)
	}
	return trades, nil
}

// ListAll returns every trade for pattern analysis, newest first
func (r *Repository) ListAll(ctx context.Context, userID int64) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.DB().SelectContext(ctx, &trades, `
		SELECT * FROM trades WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// ReasoningStats counts how the user answered entry-reasoning prompts
type ReasoningStats struct {
	Confirmed int `db:"confirmed"`
	Answered  int `db:"answered"`
}

// GetReasoningStats aggregates reasoning confirmations across trades
func (r *Repository) GetReasoningStats(ctx context.Context, userID int64) (*ReasoningStats, error) {
	var stats ReasoningStats
	err := r.db.DB().GetContext(ctx, &stats, `
		SELECT
			COUNT(*) FILTER (WHERE user_confirmed_reasoning = true) AS confirmed,
			COUNT(*) FILTER (WHERE user_confirmed_reasoning IS NOT NULL) AS answered
		FROM trades
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reasoning stats: %w", err)
	}
	return &stats, nil
}

// CountOpenedSince counts trades opened after a point in time
func (r *Repository) CountOpenedSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM trades WHERE user_id = $1 AND opened_at >= $2
	`, userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent opens: %w", err)
	}
	return count, nil
}

// TopSymbols returns the user's most-traded base symbols
func (r *Repository) TopSymbols(ctx context.Context, userID int64, limit int) ([]string, error) {
	var symbols []string
	err := r.db.DB().SelectContext(ctx, &symbols, `
		SELECT split_part(symbol, '/', 1) AS base
		FROM trades
		WHERE user_id = $1
		GROUP BY base
		ORDER BY COUNT(*) DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top symbols: %w", err)
	}
	return symbols, nil
}
