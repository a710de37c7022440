package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/viewerstore/internal/errors"
	"github.com/Proton-105/viewerstore/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDSN_MySQL(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver:   DriverMySQL,
		Host:     "db.internal",
		User:     "spiffbot",
		Password: "secret",
		Name:     "twitch",
		Params:   map[string]string{"charset": "utf8mb4"},
	})
	require.NoError(t, err)

	assert.Contains(t, dsn, "spiffbot:secret@tcp(db.internal:3306)/twitch")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestDSN_Postgres(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver:   DriverPostgres,
		Host:     "pg",
		Port:     5433,
		User:     "spiffbot",
		Password: "it's",
		Name:     "twitch",
	})
	require.NoError(t, err)

	assert.Equal(t, `host=pg user=spiffbot password='it\'s' dbname=twitch port=5433 sslmode=disable`, dsn)
}

func TestDSN_SQLiteAndUnknown(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{Driver: DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	_, err = DSN(config.DatabaseConfig{Driver: DriverSQLite})
	assert.Error(t, err)

	_, err = DSN(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:          DriverSQLite,
		Name:            filepath.Join(t.TempDir(), "viewers.db"),
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	db, err := Open(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, 2, db.Stats().MaxOpenConnections)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestOpenWithPolicy_ReturnsConnectionError(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: DriverSQLite,
		Name:   filepath.Join(t.TempDir(), "missing", "dir", "viewers.db"),
	}
	policy := apperrors.RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	db, err := OpenWithPolicy(context.Background(), cfg, testLogger(), policy)
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "connect to sqlite:")
}
