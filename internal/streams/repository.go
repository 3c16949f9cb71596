package streams

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// Repository handles base stream persistence. Streams are never
// hard-deleted; cold streams just stop polling.
type Repository struct {
	db *database.DB
}

// NewRepository creates new stream repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a stream idempotently on (user, type, symbol)
func (r *Repository) Create(ctx context.Context, userID int64, streamType string, symbol *string, config models.JSONMap) error {
	now := time.Now().UTC()
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO base_streams (user_id, stream_type, symbol, config, temperature, last_mentioned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
		ON CONFLICT (user_id, stream_type, COALESCE(symbol, '')) DO NOTHING
	`, userID, streamType, symbol, config, models.TempHot, now)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// GetByID returns one stream, nil when absent
func (r *Repository) GetByID(ctx context.Context, streamID int64) (*models.BaseStream, error) {
	var stream models.BaseStream
	err := r.db.DB().GetContext(ctx, &stream, `
		SELECT * FROM base_streams WHERE id = $1
	`, streamID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return &stream, nil
}

// GetByTemperature returns every stream at the given temperatures,
// across all users. A single market fetch serves every subscriber.
func (r *Repository) GetByTemperature(ctx context.Context, temperatures ...string) ([]models.BaseStream, error) {
	query, args, err := sqlx.In(`
		SELECT * FROM base_streams WHERE temperature IN (?) ORDER BY id
	`, temperatures)
	if err != nil {
		return nil, fmt.Errorf("failed to build temperature query: %w", err)
	}

	var streams []models.BaseStream
	if err := r.db.DB().SelectContext(ctx, &streams, r.db.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list streams by temperature: %w", err)
	}
	return streams, nil
}

// GetUserStreams returns a user's streams at the given temperatures
func (r *Repository) GetUserStreams(ctx context.Context, userID int64, temperatures ...string) ([]models.BaseStream, error) {
	query, args, err := sqlx.In(`
		SELECT * FROM base_streams WHERE user_id = ? AND temperature IN (?) ORDER BY id
	`, userID, temperatures)
	if err != nil {
		return nil, fmt.Errorf("failed to build user stream query: %w", err)
	}

	var streams []models.BaseStream
	if err := r.db.DB().SelectContext(ctx, &streams, r.db.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list user streams: %w", err)
	}
	return streams, nil
}

// UpdateValue persists the latest fetched value
func (r *Repository) UpdateValue(ctx context.Context, streamID int64, value models.JSONMap) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE base_streams SET last_value = $2, updated_at = $3 WHERE id = $1
	`, streamID, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update stream value: %w", err)
	}
	return nil
}

// Touch restores every stream of the user mentioning the symbol to
// hot and stamps last_mentioned_at, atomically
func (r *Repository) Touch(ctx context.Context, userID int64, symbol string) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE base_streams
		SET temperature = $3, last_mentioned_at = $4, updated_at = $4
		WHERE user_id = $1 AND symbol = $2
	`, userID, symbol, models.TempHot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch streams: %w", err)
	}
	return nil
}

// AutoTransition demotes streams by last_mentioned_at age and returns
// the (hot→warm, warm→cold) counts
func (r *Repository) AutoTransition(ctx context.Context, userID int64, hotThresholdDays, warmThresholdDays int) (int64, int64, error) {
	now := time.Now().UTC()
	hotCutoff := now.AddDate(0, 0, -hotThresholdDays)
	warmCutoff := now.AddDate(0, 0, -warmThresholdDays)

	// Anything past the warm threshold goes cold regardless of its
	// current temperature, then the remaining stale hot streams warm
	coldRes, err := r.db.DB().ExecContext(ctx, `
		UPDATE base_streams
		SET temperature = $2, updated_at = $3
		WHERE user_id = $1 AND temperature <> $2 AND last_mentioned_at < $4
	`, userID, models.TempCold, now, warmCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to demote stale streams: %w", err)
	}

	warmRes, err := r.db.DB().ExecContext(ctx, `
		UPDATE base_streams
		SET temperature = $3, updated_at = $4
		WHERE user_id = $1 AND temperature = $2 AND last_mentioned_at < $5
	`, userID, models.TempHot, models.TempWarm, now, hotCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to demote hot streams: %w", err)
	}

	hotToWarm, _ := warmRes.RowsAffected()
	warmToCold, _ := coldRes.RowsAffected()
	return hotToWarm, warmToCold, nil
}
