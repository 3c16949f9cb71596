package testdb

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"

	_ "github.com/lib/pq"

	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/pkg/models"
)

// TestDB wraps a live Postgres connection for integration tests.
// Created users are tracked and deleted on cleanup; every child row
// cascades with them.
type TestDB struct {
	DB      *database.DB
	userIDs []int64
}

// Setup connects to the test database, or skips the test when none is
// reachable. Connection parameters come from TEST_DB_* variables.
func Setup(t *testing.T) *TestDB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envIntOr("TEST_DB_PORT", 5432),
		Name:     envOr("TEST_DB_NAME", "tradefork_test"),
		User:     envOr("TEST_DB_USER", "tradefork"),
		Password: envOr("TEST_DB_PASSWORD", "tradefork"),
		SSLMode:  "disable",
	}

	db, err := database.New(cfg)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	migrationsPath := envOr("TEST_MIGRATIONS_PATH", "../migrations")
	if err := database.RunMigrations(db.DB().DB, migrationsPath); err != nil {
		t.Logf("warning: migrations not applied: %v", err)
	}

	tdb := &TestDB{DB: db}
	t.Cleanup(func() {
		tdb.teardown(t)
	})
	return tdb
}

func (tdb *TestDB) teardown(t *testing.T) {
	t.Helper()

	for _, id := range tdb.userIDs {
		if _, err := tdb.DB.DB().Exec(`DELETE FROM users WHERE id = $1`, id); err != nil {
			t.Logf("warning: failed to delete test user %d: %v", id, err)
		}
	}
	if err := tdb.DB.Close(); err != nil {
		t.Logf("warning: failed to close database: %v", err)
	}
}

// CreateUser inserts an onboarded, monitored user and returns it
func (tdb *TestDB) CreateUser(t *testing.T, telegramID int64) *models.User {
	t.Helper()

	var user models.User
	err := tdb.DB.DB().GetContext(context.Background(), &user, `
		INSERT INTO users (telegram_id, onboarding_stage, is_active)
		VALUES ($1, $2, true)
		RETURNING *
	`, telegramID, models.StageActive)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	tdb.userIDs = append(tdb.userIDs, user.ID)
	return &user
}

// Exec runs a statement and fails the test on error
func (tdb *TestDB) Exec(t *testing.T, query string, args ...interface{}) sql.Result {
	t.Helper()

	result, err := tdb.DB.DB().Exec(query, args...)
	if err != nil {
		t.Fatalf("failed to execute query: %v\nQuery: %s", err, query)
	}
	return result
}

// Count returns the row count of a query; the query must select a
// single integer
func (tdb *TestDB) Count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()

	var count int
	if err := tdb.DB.DB().Get(&count, query, args...); err != nil {
		t.Fatalf("failed to count: %v\nQuery: %s", err, query)
	}
	return count
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
