package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Proton-105/viewerstore/internal/domain"
	"github.com/Proton-105/viewerstore/pkg/metrics"
)

// MetricsStore wraps a UserStore to collect Prometheus metrics.
type MetricsStore struct {
	next UserStore
}

// NewMetricsStore creates an instrumented user store.
func NewMetricsStore(next UserStore) UserStore {
	return &MetricsStore{next: next}
}

func observe(operation string, start time.Time, err error) {
	metrics.RecordOperation(operation, statusOf(err), time.Since(start))
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, ErrInvalidValue):
		return metrics.StatusInvalid
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoUsers):
		return metrics.StatusMiss
	default:
		return metrics.StatusError
	}
}

// SetPoints instruments UserStore.SetPoints.
func (m *MetricsStore) SetPoints(ctx context.Context, username string, points any) (err error) {
	defer func(start time.Time) { observe("set_points", start, err) }(time.Now())
	return m.next.SetPoints(ctx, username, points)
}

// SetOpted instruments UserStore.SetOpted.
func (m *MetricsStore) SetOpted(ctx context.Context, username string, opted any) (err error) {
	defer func(start time.Time) { observe("set_opted", start, err) }(time.Now())
	return m.next.SetOpted(ctx, username, opted)
}

// GetOpted instruments UserStore.GetOpted.
func (m *MetricsStore) GetOpted(ctx context.Context, username string) (opted bool, err error) {
	defer func(start time.Time) { observe("get_opted", start, err) }(time.Now())
	return m.next.GetOpted(ctx, username)
}

// GetOptedUsers instruments UserStore.GetOptedUsers.
func (m *MetricsStore) GetOptedUsers(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { observe("get_opted_users", start, err) }(time.Now())
	return m.next.GetOptedUsers(ctx)
}

// SetSession instruments UserStore.SetSession.
func (m *MetricsStore) SetSession(ctx context.Context, username string, session any) (err error) {
	defer func(start time.Time) { observe("set_session", start, err) }(time.Now())
	return m.next.SetSession(ctx, username, session)
}

// SetWatched instruments UserStore.SetWatched.
func (m *MetricsStore) SetWatched(ctx context.Context, username string, watched any) (err error) {
	defer func(start time.Time) { observe("set_watched", start, err) }(time.Now())
	return m.next.SetWatched(ctx, username, watched)
}

// SetReferral instruments UserStore.SetReferral.
func (m *MetricsStore) SetReferral(ctx context.Context, username string, referral string) (err error) {
	defer func(start time.Time) { observe("set_referral", start, err) }(time.Now())
	return m.next.SetReferral(ctx, username, referral)
}

// TouchLastControl instruments UserStore.TouchLastControl.
func (m *MetricsStore) TouchLastControl(ctx context.Context, username string) (err error) {
	defer func(start time.Time) { observe("touch_last_control", start, err) }(time.Now())
	return m.next.TouchLastControl(ctx, username)
}

// GetLastControl instruments UserStore.GetLastControl.
func (m *MetricsStore) GetLastControl(ctx context.Context, username string) (lastControl string, err error) {
	defer func(start time.Time) { observe("get_last_control", start, err) }(time.Now())
	return m.next.GetLastControl(ctx, username)
}

// ListUsernames instruments UserStore.ListUsernames.
func (m *MetricsStore) ListUsernames(ctx context.Context) (names []string, err error) {
	defer func(start time.Time) { observe("list_usernames", start, err) }(time.Now())
	return m.next.ListUsernames(ctx)
}

// ListUsers instruments UserStore.ListUsers.
func (m *MetricsStore) ListUsers(ctx context.Context) (users []domain.User, err error) {
	defer func(start time.Time) { observe("list_users", start, err) }(time.Now())
	return m.next.ListUsers(ctx)
}

// GetUser instruments UserStore.GetUser.
func (m *MetricsStore) GetUser(ctx context.Context, username string) (user *domain.User, err error) {
	defer func(start time.Time) { observe("get_user", start, err) }(time.Now())
	return m.next.GetUser(ctx, username)
}
