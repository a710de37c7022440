package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/Proton-105/viewerstore/internal/database"
	"github.com/Proton-105/viewerstore/internal/domain"
	apperrors "github.com/Proton-105/viewerstore/internal/errors"
	"github.com/Proton-105/viewerstore/pkg/config"
)

var (
	// ErrInvalidValue is returned when a setter rejects its input. The database is not touched.
	ErrInvalidValue = fmt.Errorf("invalid value: %w", apperrors.ErrValidation)
	// ErrNotFound is returned when a user row or the requested column is absent.
	ErrNotFound = fmt.Errorf("user: %w", apperrors.ErrNotFound)
	// ErrNoUsers is returned by listings that match no rows.
	ErrNoUsers = errors.New("no matching users")
)

// UserStore defines persistence operations for viewers.
type UserStore interface {
	SetPoints(ctx context.Context, username string, points any) error
	SetOpted(ctx context.Context, username string, opted any) error
	GetOpted(ctx context.Context, username string) (bool, error)
	GetOptedUsers(ctx context.Context) ([]string, error)
	SetSession(ctx context.Context, username string, session any) error
	SetWatched(ctx context.Context, username string, watched any) error
	SetReferral(ctx context.Context, username string, referral string) error
	TouchLastControl(ctx context.Context, username string) error
	GetLastControl(ctx context.Context, username string) (string, error)
	ListUsernames(ctx context.Context) ([]string, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
}

// Option customizes a store built by NewUserStore.
type Option func(*userStore)

// WithClock overrides the time source used by TouchLastControl.
func WithClock(now func() time.Time) Option {
	return func(s *userStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTable points the store at a table other than "users".
func WithTable(name string) Option {
	return func(s *userStore) {
		if name != "" {
			s.table = name
		}
	}
}

type userStore struct {
	db       *sql.DB
	dialect  Dialect
	table    string
	stmts    statements
	validate *validator.Validate
	now      func() time.Time
	log      *slog.Logger
}

// NewUserStore creates a SQL-backed user store over the given pool.
func NewUserStore(db *sql.DB, dialect Dialect, log *slog.Logger, opts ...Option) (UserStore, error) {
	if db == nil {
		return nil, errors.New("user store: nil database handle")
	}

	if _, err := ParseDialect(string(dialect)); err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	s := &userStore{
		db:       db,
		dialect:  dialect,
		table:    "users",
		validate: validator.New(),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}

	stmts, err := dialect.render(s.table)
	if err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}
	s.stmts = stmts

	return s, nil
}

// Open connects to the configured database and returns a store over it.
// The returned pool is owned by the caller.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (UserStore, *sql.DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	store, err := NewUserStore(db, dialect, log, WithTable(cfg.Table))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return store, db, nil
}

// SetPoints upserts the points balance of username.
func (s *userStore) SetPoints(ctx context.Context, username string, points any) error {
	return s.set(ctx, domain.FieldPoints, username, points)
}

// SetOpted upserts the opt-in flag of username.
func (s *userStore) SetOpted(ctx context.Context, username string, opted any) error {
	return s.set(ctx, domain.FieldOpted, username, opted)
}

// SetSession upserts the session identifier of username.
func (s *userStore) SetSession(ctx context.Context, username string, session any) error {
	return s.set(ctx, domain.FieldSession, username, session)
}

// SetWatched upserts the watched-time counter of username.
func (s *userStore) SetWatched(ctx context.Context, username string, watched any) error {
	return s.set(ctx, domain.FieldWatched, username, watched)
}

// SetReferral upserts the referral code of username.
func (s *userStore) SetReferral(ctx context.Context, username string, referral string) error {
	return s.set(ctx, domain.FieldReferral, username, referral)
}

// TouchLastControl stamps username with the current local time.
func (s *userStore) TouchLastControl(ctx context.Context, username string) error {
	return s.set(ctx, domain.FieldLastControl, username, s.now().Format(domain.LastControlLayout))
}

// GetOpted reports whether username exists with opted = 1.
func (s *userStore) GetOpted(ctx context.Context, username string) (bool, error) {
	var opted sql.NullInt64
	err := s.db.QueryRowContext(ctx, s.stmts.selectOpted, username).Scan(&opted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.dbError("select opted", username, err)
	}

	return opted.Valid && opted.Int64 == 1, nil
}

// GetLastControl returns the stored last_control timestamp of username.
func (s *userStore) GetLastControl(ctx context.Context, username string) (string, error) {
	var lastControl sql.NullString
	err := s.db.QueryRowContext(ctx, s.stmts.selectLastCtrl, username).Scan(&lastControl)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !lastControl.Valid) {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("last_control for %q", username), ErrNotFound)
	}
	if err != nil {
		return "", s.dbError("select last_control", username, err)
	}

	return lastControl.String, nil
}

// GetOptedUsers lists usernames with opted = 1 in database order.
func (s *userStore) GetOptedUsers(ctx context.Context) ([]string, error) {
	return s.usernames(ctx, "select opted users", s.stmts.selectOptedIn)
}

// ListUsernames lists the username of every row in database order.
func (s *userStore) ListUsernames(ctx context.Context) ([]string, error) {
	return s.usernames(ctx, "select usernames", s.stmts.selectNames)
}

// ListUsers returns every row as a full record.
func (s *userStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, s.stmts.selectUsers)
	if err != nil {
		return nil, s.dbError("select users", "", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, s.dbError("scan user", "", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbError("iterate users", "", err)
	}

	if len(users) == 0 {
		return nil, ErrNoUsers
	}

	return users, nil
}

// GetUser returns the full record of username.
func (s *userStore) GetUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, s.stmts.selectUser, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %q", username), ErrNotFound)
	}
	if err != nil {
		return nil, s.dbError("select user", username, err)
	}

	return user, nil
}

func (s *userStore) set(ctx context.Context, field domain.Field, username string, raw any) error {
	if err := s.validate.Var(username, domain.UsernameRule); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("username: %v", err), ErrInvalidValue)
	}

	value, err := field.Normalize(raw)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("%s: %v", field.Name, err), ErrInvalidValue)
	}

	if field.Rule != "" {
		if err := s.validate.Var(value, field.Rule); err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("%s: %v", field.Name, err), ErrInvalidValue)
		}
	}

	stmt, ok := s.stmts.upserts[field.Column]
	if !ok {
		return fmt.Errorf("no upsert statement for column %s", field.Column)
	}

	if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args(username, value)...); err != nil {
		return s.dbError("upsert "+field.Column, username, err)
	}

	return nil
}

func (s *userStore) usernames(ctx context.Context, operation, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.dbError(operation, "", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.dbError(operation, "", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dbError(operation, "", err)
	}

	if len(names) == 0 {
		return nil, ErrNoUsers
	}

	return names, nil
}

func (s *userStore) dbError(operation, username string, err error) error {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("table", s.table),
		slog.Any("error", err),
	}
	if username != "" {
		attrs = append(attrs, slog.String("username", username))
	}
	s.log.Error("user store operation failed", attrs...)

	return apperrors.NewDatabaseError(fmt.Errorf("%s: %w", operation, err))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.Username,
		&user.Points,
		&user.Opted,
		&user.Session,
		&user.Watched,
		&user.Referral,
		&user.LastControl,
	); err != nil {
		return nil, err
	}

	return &user, nil
}
