package users

import (
	"context"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// MessageRepository is the append-only per-user conversational log
type MessageRepository struct {
	db *database.DB
}

// NewMessageRepository creates the chat message repository
func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save appends one message
func (r *MessageRepository) Save(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	err := r.db.DB().GetContext(ctx, &msg.ID, `
		INSERT INTO chat_messages (user_id, role, content, message_type, intent, metadata, external_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, msg.UserID, msg.Role, msg.Content, msg.MessageType, msg.Intent, msg.Metadata, msg.ExternalMessageID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// SaveAssistant appends an assistant-role record of an emitted message
func (r *MessageRepository) SaveAssistant(ctx context.Context, userID int64, content, messageType string) error {
	return r.Save(ctx, &models.ChatMessage{
		UserID:      userID,
		Role:        models.RoleAssistant,
		Content:     content,
		MessageType: messageType,
	})
}

// CountUserMessagesSince counts user-role messages after a point in time
func (r *MessageRepository) CountUserMessagesSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM chat_messages
		WHERE user_id = $1 AND role = $2 AND created_at >= $3
	`, userID, models.RoleUser, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Recent returns the newest messages for a user, newest first
func (r *MessageRepository) Recent(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.DB().SelectContext(ctx, &messages, `
		SELECT * FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return messages, nil
}
