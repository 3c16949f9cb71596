package patrol

import (
	"context"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles patrol log persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates new patrol log repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a patrol log and returns it with its ID
func (r *Repository) Create(ctx context.Context, log *models.PatrolLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	err := r.db.DB().GetContext(ctx, &log.ID, `
		INSERT INTO patrol_logs (user_id, kind, findings, actions_taken, temperature_changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, log.UserID, log.Kind, log.Findings, log.ActionsTaken, log.TemperatureChanges, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create patrol log: %w", err)
	}
	return nil
}

// CountSince counts a user's patrol sweeps after a point in time
func (r *Repository) CountSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM patrol_logs WHERE user_id = $1 AND created_at >= $2
	`, userID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count patrol logs: %w", err)
	}
	return count, nil
}
