package users

import (
	"context"
	"fmt"
	"time"

	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/crypto"
	"github.com/tradefork/engine/pkg/models"
)

// ConnectionRepository handles exchange connection rows. Credentials
// are ciphertext at rest; Credentials() is the only decryption path
// and its outputs must never be logged or stored.
type ConnectionRepository struct {
	db     *database.DB
	cipher *crypto.Cipher
}

// NewConnectionRepository creates the connection repository
func NewConnectionRepository(db *database.DB, cipher *crypto.Cipher) *ConnectionRepository {
	return &ConnectionRepository{db: db, cipher: cipher}
}

// Create stores a connection, encrypting the credentials
func (r *ConnectionRepository) Create(ctx context.Context, userID int64, exchangeName, apiKey, secret string) (*models.ExchangeConnection, error) {
	encKey, err := r.cipher.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	encSecret, err := r.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	var conn models.ExchangeConnection
	err = r.db.DB().GetContext(ctx, &conn, `
		INSERT INTO exchange_connections (user_id, exchange_name, encrypted_key, encrypted_secret, is_active, created_at)
		VALUES ($1, $2, $3, $4, true, $5)
		ON CONFLICT (user_id, exchange_name) DO UPDATE SET
			encrypted_key = $3,
			encrypted_secret = $4,
			is_active = true
		RETURNING *
	`, userID, exchangeName, encKey, encSecret, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return &conn, nil
}

// GetActive returns a user's active connections
func (r *ConnectionRepository) GetActive(ctx context.Context, userID int64) ([]models.ExchangeConnection, error) {
	var conns []models.ExchangeConnection
	err := r.db.DB().SelectContext(ctx, &conns, `
		SELECT * FROM exchange_connections
		WHERE user_id = $1 AND is_active = true
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// CountActive returns the number of active connections for a user
func (r *ConnectionRepository) CountActive(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.DB().GetContext(ctx, &count, `
		SELECT COUNT(*) FROM exchange_connections WHERE user_id = $1 AND is_active = true
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

// Credentials decrypts the connection's key pair. The plaintext is
// returned to the caller's scope only. Decrypt failures are reported
// without the ciphertext.
func (r *ConnectionRepository) Credentials(conn *models.ExchangeConnection) (apiKey, secret string, err error) {
	apiKey, err = r.cipher.Decrypt(conn.EncryptedKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt credentials for connection %d", conn.ID)
	}
	secret, err = r.cipher.Decrypt(conn.EncryptedSecret)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt credentials for connection %d", conn.ID)
	}
	return apiKey, secret, nil
}

// UpdateLastPolled advances the trade detection window
func (r *ConnectionRepository) UpdateLastPolled(ctx context.Context, connectionID int64, polledAt time.Time) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE exchange_connections SET last_polled_at = $2 WHERE id = $1
	`, connectionID, polledAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last_polled_at: %w", err)
	}
	return nil
}

// Deactivate soft-disables a connection
func (r *ConnectionRepository) Deactivate(ctx context.Context, connectionID int64) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE exchange_connections SET is_active = false WHERE id = $1
	`, connectionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}
	return nil
}
