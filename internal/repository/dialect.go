package repository

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Proton-105/viewerstore/internal/domain"
)

// Dialect selects placeholder style and upsert syntax for the target engine.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseDialect maps a database/sql driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(driver)); d {
	case DialectMySQL, DialectPostgres, DialectSQLite:
		return d, nil
	case "pgx":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", driver)
	}
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// upsertStmt is an insert-or-update of one column keyed by username.
type upsertStmt struct {
	query string
	// bindTwice means the value is bound again for the UPDATE clause.
	bindTwice bool
}

func (s upsertStmt) args(username string, value any) []any {
	if s.bindTwice {
		return []any{username, value, value}
	}
	return []any{username, value}
}

func (d Dialect) upsert(table string, field domain.Field) upsertStmt {
	insert := fmt.Sprintf("INSERT INTO %s (username, %s) VALUES (%s, %s)",
		table, field.Column, d.placeholder(1), d.placeholder(2))

	if d == DialectMySQL {
		return upsertStmt{
			query:     fmt.Sprintf("%s ON DUPLICATE KEY UPDATE %s = %s", insert, field.Column, d.placeholder(3)),
			bindTwice: true,
		}
	}

	return upsertStmt{
		query: fmt.Sprintf("%s ON CONFLICT (username) DO UPDATE SET %s = excluded.%s", insert, field.Column, field.Column),
	}
}

// statements holds every query the store issues, rendered once per table and dialect.
type statements struct {
	upserts        map[string]upsertStmt
	selectOpted    string
	selectLastCtrl string
	selectOptedIn  string
	selectNames    string
	selectUsers    string
	selectUser     string
}

const userColumns = "username, points, opted, session, watched, referral, last_control"

func (d Dialect) render(table string) (statements, error) {
	if !identifierPattern.MatchString(table) {
		return statements{}, fmt.Errorf("invalid table name %q", table)
	}

	upserts := make(map[string]upsertStmt, len(domain.Fields))
	for _, field := range domain.Fields {
		upserts[field.Column] = d.upsert(table, field)
	}

	byName := fmt.Sprintf("WHERE username = %s", d.placeholder(1))

	return statements{
		upserts:        upserts,
		selectOpted:    fmt.Sprintf("SELECT opted FROM %s %s", table, byName),
		selectLastCtrl: fmt.Sprintf("SELECT last_control FROM %s %s", table, byName),
		selectOptedIn:  fmt.Sprintf("SELECT username FROM %s WHERE opted = 1", table),
		selectNames:    fmt.Sprintf("SELECT username FROM %s", table),
		selectUsers:    fmt.Sprintf("SELECT %s FROM %s", userColumns, table),
		selectUser:     fmt.Sprintf("SELECT %s FROM %s %s", userColumns, table, byName),
	}, nil
}
