// Package database opens the connection pool backing the user store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	apperrors "github.com/Proton-105/viewerstore/internal/errors"
	"github.com/Proton-105/viewerstore/pkg/config"
)

// Driver names as registered with database/sql.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open creates the pool described by cfg and verifies it with a ping,
// retrying transient failures with backoff.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*sql.DB, error) {
	return OpenWithPolicy(ctx, cfg, log, apperrors.DefaultRetryPolicy)
}

// OpenWithPolicy is Open with an explicit retry policy for the initial ping.
func OpenWithPolicy(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, policy apperrors.RetryPolicy) (*sql.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	scopedLog := log.With(slog.String("database", cfg.String()))

	attempt := 0
	err = apperrors.WithPolicy(ctx, policy, func() error {
		attempt++
		if pingErr := db.PingContext(ctx); pingErr != nil {
			scopedLog.Warn("database ping failed", slog.Int("attempt", attempt), slog.Any("error", pingErr))
			return apperrors.NewDatabaseError(pingErr)
		}
		return nil
	})
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			scopedLog.Error("error closing database", slog.Any("error", cerr))
		}
		return nil, fmt.Errorf("connect to %s: %w", cfg.String(), err)
	}

	scopedLog.Info("database connection established")
	return db, nil
}

// DSN renders the driver-specific connection string for cfg.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = cfg.Addr()
		mc.DBName = cfg.Name
		if len(cfg.Params) > 0 {
			mc.Params = make(map[string]string, len(cfg.Params))
			for k, v := range cfg.Params {
				mc.Params[k] = v
			}
		}
		return mc.FormatDSN(), nil

	case DriverPostgres:
		params := map[string]string{"sslmode": "disable"}
		for k, v := range cfg.Params {
			params[k] = v
		}

		parts := []string{
			"host=" + quotePQ(cfg.Host),
			"user=" + quotePQ(cfg.User),
			"password=" + quotePQ(cfg.Password),
			"dbname=" + quotePQ(cfg.Name),
		}
		if cfg.Port > 0 {
			parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
		}

		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+quotePQ(params[k]))
		}

		return strings.Join(parts, " "), nil

	case DriverSQLite:
		if cfg.Name == "" {
			return "", fmt.Errorf("sqlite: database name is empty")
		}
		return cfg.Name, nil

	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// quotePQ quotes a libpq keyword/value parameter when needed.
func quotePQ(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}

	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
