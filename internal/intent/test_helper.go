//go:build integration

package intent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SetupTestDB connects to the test database and runs migrations. The
// database (lnbroker_test) is expected to already exist.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Host:            "localhost",
		Port:            "5432",
		User:            "postgres",
		Password:        "postgres",
		DB:              "lnbroker_test",
		SslMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5,
		MaxConnIdleTime: 1,
	}

	db, err := NewDB(cfg)
	require.NoError(t, err, "failed to connect to test database")

	require.NoError(t, db.RunMigrations(), "failed to run migrations on test database")
	return db
}

// CleanupTestDB truncates all tables to ensure a clean state between tests.
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := db.pool.Exec(ctx, "TRUNCATE TABLE payment_events, payment_intents CASCADE")
	require.NoError(t, err, "failed to truncate tables")
}
