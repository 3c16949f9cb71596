package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles user data persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates new user repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// GetByID returns a user by internal ID, nil when absent
func (r *Repository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := r.db.DB().GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByTelegramID returns a user by external messenger ID, nil when absent
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := r.db.DB().GetContext(ctx, &user, `
		SELECT * FROM users WHERE telegram_id = $1
	`, telegramID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return &user, nil
}

// GetMonitoredUsers returns every user the engine should watch:
// active and past the final onboarding stage
func (r *Repository) GetMonitoredUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.DB().SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE is_active = true AND onboarding_stage >= $1
		ORDER BY id
	`, models.StageActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored users: %w", err)
	}
	return users, nil
}

// TouchLastActive records user activity
func (r *Repository) TouchLastActive(ctx context.Context, userID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE users SET last_active_at = $2, updated_at = $2 WHERE id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch last_active_at: %w", err)
	}
	return nil
}

// ResetDailySignalsIfStale zeroes the daily signal counter when the
// recorded reset date is before today (UTC). Returns the effective
// current count.
func (r *Repository) ResetDailySignalsIfStale(ctx context.Context, userID int64, now time.Time) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		UPDATE users
		SET daily_signal_count = CASE WHEN daily_signal_reset_at::date < $2::date THEN 0 ELSE daily_signal_count END,
		    daily_signal_reset_at = CASE WHEN daily_signal_reset_at::date < $2::date THEN $2 ELSE daily_signal_reset_at END
		WHERE id = $1
		RETURNING daily_signal_count
	`, userID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily signal count: %w", err)
	}
	return count, nil
}

// IncrementDailySignalCount consumes one unit of the daily quota
func (r *Repository) IncrementDailySignalCount(ctx context.Context, userID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE users SET daily_signal_count = daily_signal_count + 1, updated_at = $2 WHERE id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment signal count: %w", err)
	}
	return nil
}

// ResetAllDailySignals zeroes every user's counter; runs at 00:00 UTC
func (r *Repository) ResetAllDailySignals(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE users SET daily_signal_count = 0, daily_signal_reset_at = $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily signal counts: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// GetBriefingUsers returns monitored users whose briefing_hour matches
func (r *Repository) GetBriefingUsers(ctx context.Context, hour int) ([]models.User, error) {
	var users []models.User
	err := r.db.DB().SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE is_active = true AND onboarding_stage >= $1 AND briefing_hour = $2
		ORDER BY id
	`, models.StageActive, hour)
	if err != nil {
		return nil, fmt.Errorf("failed to list briefing users: %w", err)
	}
	return users, nil
}

// CountActiveUsers returns the number of monitored users
func (r *Repository) CountActiveUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM users WHERE is_active = true AND onboarding_stage >= $1
	`, models.StageActive)
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}
