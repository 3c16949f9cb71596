package users

import (
	"context"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// PrincipleRepository handles investment principle rows
type PrincipleRepository struct {
	db *database.DB
}

// NewPrincipleRepository creates the principle repository
func NewPrincipleRepository(db *database.DB) *PrincipleRepository {
	return &PrincipleRepository{db: db}
}

// Create stores a principle
func (r *PrincipleRepository) Create(ctx context.Context, userID int64, text, source string) (*models.Principle, error) {
	var p models.Principle
	err := r.db.DB().GetContext(ctx, &p, `
		INSERT INTO principles (user_id, text, source, is_active, created_at)
		VALUES ($1, $2, $3, true, $4)
		RETURNING *
	`, userID, text, source, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create principle: %w", err)
	}
	return &p, nil
}

// GetActive returns a user's active principles, oldest first
func (r *PrincipleRepository) GetActive(ctx context.Context, userID int64) ([]models.Principle, error) {
	var principles []models.Principle
	err := r.db.DB().SelectContext(ctx, &principles, `
		SELECT * FROM principles WHERE user_id = $1 AND is_active = true ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principles: %w", err)
	}
	return principles, nil
}

// CountActive returns the number of active principles for a user
func (r *PrincipleRepository) CountActive(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM principles WHERE user_id = $1 AND is_active = true
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count principles: %w", err)
	}
	return count, nil
}

// Deactivate soft-deletes a principle
func (r *PrincipleRepository) Deactivate(ctx context.Context, principleID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE principles SET is_active = false WHERE id = $1
	`, principleID)
	if err != nil {
		return fmt.Errorf("failed to deactivate principle: %w", err)
	}
	return nil
}
