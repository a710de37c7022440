package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	apperrors "github.com/Proton-105/viewerstore/internal/errors"
)

const usersDDL = `
CREATE TABLE %s (
	username     VARCHAR(255) PRIMARY KEY,
	points       INT,
	opted        INT,
	session      INT,
	watched      INT,
	referral     VARCHAR(255),
	last_control VARCHAR(19)
)`

var lastControlPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T, table string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(fmt.Sprintf(usersDDL, table))
	require.NoError(t, err)

	return db
}

func setupTestStore(t *testing.T, opts ...Option) (UserStore, *sql.DB) {
	t.Helper()

	db := setupTestDB(t, "users")
	store, err := NewUserStore(db, DialectSQLite, testLogger(), opts...)
	require.NoError(t, err)

	return store, db
}

func TestNewUserStore_RejectsBadInput(t *testing.T) {
	db := setupTestDB(t, "users")

	_, err := NewUserStore(nil, DialectSQLite, testLogger())
	assert.Error(t, err)

	_, err = NewUserStore(db, Dialect("oracle"), testLogger())
	assert.ErrorContains(t, err, "unsupported sql dialect")

	_, err = NewUserStore(db, DialectSQLite, testLogger(), WithTable("users; DROP TABLE users"))
	assert.ErrorContains(t, err, "invalid table name")
}

func TestUserStore_SetPointsRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	for _, points := range []any{0, 10, -7, int64(1 << 40), "42", " 13 "} {
		require.NoError(t, store.SetPoints(ctx, "alice", points))

		want, err := toInt(points)
		require.NoError(t, err)

		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, user.Points.Valid)
		assert.Equal(t, want, user.Points.Int64)
	}
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		var out int64
		_, err := fmt.Sscan(strings.TrimSpace(n), &out)
		return out, err
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

func TestUserStore_InvalidIntegerLeavesRowUntouched(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetPoints(ctx, "alice", 5))

	for _, bad := range []any{"abc", "10.5", "", 2.5, nil, true} {
		err := store.SetPoints(ctx, "alice", bad)
		assert.ErrorIs(t, err, ErrInvalidValue, "input %v", bad)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	}

	err := store.SetOpted(ctx, "bob", "yes")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.ErrorIs(t, store.SetSession(ctx, "bob", "s1"), ErrInvalidValue)
	assert.ErrorIs(t, store.SetWatched(ctx, "bob", 1.25), ErrInvalidValue)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.Points.Int64)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count, "rejected writes must not create rows")
}

func TestUserStore_UsernameValidation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SetPoints(ctx, "", 1), ErrInvalidValue)
	assert.ErrorIs(t, store.TouchLastControl(ctx, strings.Repeat("u", 256)), ErrInvalidValue)
}

func TestUserStore_SetReferralValidation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetReferral(ctx, "alice", "raid-from-bob"))
	assert.ErrorIs(t, store.SetReferral(ctx, "alice", strings.Repeat("x", 256)), ErrInvalidValue)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, sql.NullString{String: "raid-from-bob", Valid: true}, user.Referral)
}

func TestUserStore_UpsertMergesFields(t *testing.T) {
	store, _ := setupTestStore(t, WithClock(func() time.Time {
		return time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)
	}))
	ctx := context.Background()

	require.NoError(t, store.SetPoints(ctx, "alice", 5))
	require.NoError(t, store.SetOpted(ctx, "alice", 1))
	require.NoError(t, store.SetSession(ctx, "alice", 99))
	require.NoError(t, store.SetWatched(ctx, "alice", "120"))
	require.NoError(t, store.SetReferral(ctx, "alice", "bob"))
	require.NoError(t, store.TouchLastControl(ctx, "alice"))

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, sql.NullInt64{Int64: 5, Valid: true}, user.Points)
	assert.Equal(t, sql.NullInt64{Int64: 1, Valid: true}, user.Opted)
	assert.Equal(t, sql.NullInt64{Int64: 99, Valid: true}, user.Session)
	assert.Equal(t, sql.NullInt64{Int64: 120, Valid: true}, user.Watched)
	assert.Equal(t, sql.NullString{String: "bob", Valid: true}, user.Referral)
	assert.Equal(t, sql.NullString{String: "2024-03-05 14:07:09", Valid: true}, user.LastControl)
	assert.True(t, user.IsOpted())
}

func TestUserStore_FirstWriteLeavesOtherFieldsNull(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWatched(ctx, "carol", 3))

	user, err := store.GetUser(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, user.Points.Valid)
	assert.False(t, user.Opted.Valid)
	assert.False(t, user.Session.Valid)
	assert.False(t, user.Referral.Valid)
	assert.False(t, user.LastControl.Valid)
	assert.Equal(t, int64(3), user.Watched.Int64)
}

func TestUserStore_GetOpted(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	testCases := []struct {
		name     string
		setup    func(t *testing.T)
		username string
		want     bool
	}{
		{name: "unknown user", username: "ghost", want: false},
		{
			name:     "row without opted",
			setup:    func(t *testing.T) { require.NoError(t, store.SetPoints(ctx, "nulls", 1)) },
			username: "nulls",
			want:     false,
		},
		{
			name:     "opted out",
			setup:    func(t *testing.T) { require.NoError(t, store.SetOpted(ctx, "zero", 0)) },
			username: "zero",
			want:     false,
		},
		{
			name:     "opted in",
			setup:    func(t *testing.T) { require.NoError(t, store.SetOpted(ctx, "one", "1")) },
			username: "one",
			want:     true,
		},
		{
			name:     "value other than one",
			setup:    func(t *testing.T) { require.NoError(t, store.SetOpted(ctx, "two", 2)) },
			username: "two",
			want:     false,
		},
		{
			name: "latest write wins",
			setup: func(t *testing.T) {
				require.NoError(t, store.SetOpted(ctx, "flip", 1))
				require.NoError(t, store.SetOpted(ctx, "flip", 0))
			},
			username: "flip",
			want:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup(t)
			}

			got, err := store.GetOpted(ctx, tc.username)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUserStore_GetOptedUsers(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	names, err := store.GetOptedUsers(ctx)
	assert.Nil(t, names)
	assert.ErrorIs(t, err, ErrNoUsers)

	require.NoError(t, store.SetOpted(ctx, "alice", 1))
	require.NoError(t, store.SetOpted(ctx, "bob", 0))
	require.NoError(t, store.SetOpted(ctx, "carol", 1))
	require.NoError(t, store.SetPoints(ctx, "dave", 3))

	names, err = store.GetOptedUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "carol"}, names)
}

func TestUserStore_AliceScenario(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetPoints(ctx, "alice", "10"))

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), user.Points.Int64)

	_, err = store.GetOptedUsers(ctx)
	assert.ErrorIs(t, err, ErrNoUsers)

	require.NoError(t, store.SetOpted(ctx, "alice", 1))

	names, err := store.GetOptedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestUserStore_LastControl(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetLastControl(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, store.SetPoints(ctx, "alice", 1))
	_, err = store.GetLastControl(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound, "unset column reads as not found")

	before := time.Now().Truncate(time.Second)
	require.NoError(t, store.TouchLastControl(ctx, "alice"))
	after := time.Now()

	stamp, err := store.GetLastControl(ctx, "alice")
	require.NoError(t, err)
	assert.Regexp(t, lastControlPattern, stamp)

	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", stamp, time.Local)
	require.NoError(t, err)
	assert.False(t, parsed.Before(before))
	assert.False(t, parsed.After(after))
}

func TestUserStore_ListUsernamesAndUsers(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.ListUsernames(ctx)
	assert.ErrorIs(t, err, ErrNoUsers)
	_, err = store.ListUsers(ctx)
	assert.ErrorIs(t, err, ErrNoUsers)

	require.NoError(t, store.SetPoints(ctx, "alice", 10))
	require.NoError(t, store.SetReferral(ctx, "bob", "alice"))

	names, err := store.ListUsernames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	byName := map[string]int{}
	for i, u := range users {
		byName[u.Username] = i
	}
	assert.Equal(t, int64(10), users[byName["alice"]].Points.Int64)
	assert.Equal(t, "alice", users[byName["bob"]].Referral.String)
}

func TestUserStore_GetUserNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	user, err := store.GetUser(context.Background(), "ghost")
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserStore_CustomTable(t *testing.T) {
	db := setupTestDB(t, "viewers")
	store, err := NewUserStore(db, DialectSQLite, testLogger(), WithTable("viewers"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SetOpted(ctx, "alice", 1))

	opted, err := store.GetOpted(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, opted)
}

func TestUserStore_DatabaseErrorsPropagate(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	err := store.SetPoints(ctx, "alice", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidValue)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "E200", appErr.Code)
	assert.Contains(t, err.Error(), "upsert points")

	_, err = store.GetOpted(ctx, "alice")
	assert.Error(t, err)
	_, err = store.GetOptedUsers(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoUsers)
}

func TestUserStore_ConcurrentWriters(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("viewer%d", i)
			assert.NoError(t, store.SetWatched(ctx, name, i))
			assert.NoError(t, store.SetOpted(ctx, name, 1))
		}(i)
	}
	wg.Wait()

	names, err := store.GetOptedUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 8)
}

func TestUserStore_HonorsContextCancellation(t *testing.T) {
	store, _ := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.SetPoints(ctx, "alice", 1))
}
