package triggers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles user trigger persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates new trigger repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a trigger and returns it with its ID
func (r *Repository) Create(ctx context.Context, trigger *models.UserTrigger) error {
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}
	err := r.db.DB().GetContext(ctx, &trigger.ID, `
		INSERT INTO user_triggers (user_id, kind, condition, composite_logic, base_streams_needed,
			eval_prompt, data_needed, description, source, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)
		RETURNING id
	`, trigger.UserID, trigger.Kind, trigger.Condition, trigger.CompositeLogic,
		trigger.BaseStreamsNeeded, trigger.EvalPrompt, trigger.DataNeeded,
		trigger.Description, trigger.Source, trigger.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	trigger.IsActive = true
	return nil
}

// GetDeferred returns active user-requested llm_evaluated triggers
// not yet evaluated by a patrol sweep
func (r *Repository) GetDeferred(ctx context.Context, userID int64) ([]models.UserTrigger, error) {
	var triggers []models.UserTrigger
	err := r.db.DB().SelectContext(ctx, &triggers, `
		SELECT * FROM user_triggers
		WHERE user_id = $1 AND kind = $2 AND source = $3
		  AND is_active = true AND triggered_at IS NULL
		ORDER BY id
	`, userID, models.TriggerLLMEvaluated, models.TriggerSourceUser)
	if err != nil {
		return nil, fmt.Errorf("failed to get deferred triggers: %w", err)
	}
	return triggers, nil
}

// GetByID returns one trigger, nil when absent
func (r *Repository) GetByID(ctx context.Context, triggerID int64) (*models.UserTrigger, error) {
	var trigger models.UserTrigger
	err := r.db.DB().GetContext(ctx, &trigger, `
		SELECT * FROM user_triggers WHERE id = $1
	`, triggerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}
	return &trigger, nil
}

// GetActive returns a user's active triggers of the given kinds,
// id ascending so colliding triggers fire in a stable order
func (r *Repository) GetActive(ctx context.Context, userID int64, kinds ...string) ([]models.UserTrigger, error) {
	query, args, err := sqlx.In(`
		SELECT * FROM user_triggers
		WHERE user_id = ? AND is_active = true AND kind IN (?)
		ORDER BY id
	`, userID, kinds)
	if err != nil {
		return nil, fmt.Errorf("failed to build trigger query: %w", err)
	}

	var triggers []models.UserTrigger
	if err := r.db.DB().SelectContext(ctx, &triggers, r.db.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list active triggers: %w", err)
	}
	return triggers, nil
}

// ActiveDescriptions returns the descriptions of a user's active
// triggers from one source, for synthesis dedup
func (r *Repository) ActiveDescriptions(ctx context.Context, userID int64, source string) (map[string]bool, error) {
	var descriptions []string
	err := r.db.DB().SelectContext(ctx, &descriptions, `
		SELECT description FROM user_triggers
		WHERE user_id = $1 AND is_active = true AND source = $2
	`, userID, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger descriptions: %w", err)
	}

	set := make(map[string]bool, len(descriptions))
	for _, d := range descriptions {
		set[d] = true
	}
	return set, nil
}

// Retire deactivates a trigger and stamps triggered_at
func (r *Repository) Retire(ctx context.Context, triggerID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE user_triggers SET is_active = false, triggered_at = $2 WHERE id = $1
	`, triggerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to retire trigger: %w", err)
	}
	return nil
}

// Deactivate turns a trigger off without stamping triggered_at,
// used when a signal pipeline run completes
func (r *Repository) Deactivate(ctx context.Context, triggerID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE user_triggers SET is_active = false WHERE id = $1
	`, triggerID)
	if err != nil {
		return fmt.Errorf("failed to deactivate trigger: %w", err)
	}
	return nil
}

// MarkTriggered stamps triggered_at but keeps the trigger active
func (r *Repository) MarkTriggered(ctx context.Context, triggerID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE user_triggers SET triggered_at = $2 WHERE id = $1
	`, triggerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark trigger: %w", err)
	}
	return nil
}

// RetireStale deactivates system-created triggers (llm_auto, patrol)
// that have been active longer than maxAge without ever firing, and
// returns the number retired
func (r *Repository) RetireStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE user_triggers
		SET is_active = false
		WHERE is_active = true
		  AND source IN ($1, $2)
		  AND triggered_at IS NULL
		  AND created_at < $3
	`, models.TriggerSourceLLMAuto, models.TriggerSourcePatrol, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to retire stale triggers: %w", err)
	}
	retired, _ := res.RowsAffected()
	return retired, nil
}
