package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/viewerstore/internal/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_RunsHooksInReverseOrder(t *testing.T) {
	s := NewShutdown(testLogger())

	var order []string
	s.Register("database", func(context.Context) error {
		order = append(order, "database")
		return nil
	})
	s.Register("http", func(context.Context) error {
		order = append(order, "http")
		return errors.New("listener stuck")
	})
	s.Register("nil", nil)

	err := s.Execute(context.Background())

	assert.Equal(t, []string{"http", "database"}, order)
	assert.ErrorContains(t, err, "http: listener stuck")
	assert.NoError(t, s.Execute(context.Background()), "hooks run once")
}

func TestProbes_Readiness(t *testing.T) {
	checker := health.NewChecker(testLogger())
	probes := NewProbes(testLogger(), checker)
	ctx := context.Background()

	assert.NoError(t, probes.Liveness(ctx))
	assert.NoError(t, probes.Readiness(ctx))

	checker.AddCheck("database", health.CheckFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))

	assert.EqualError(t, probes.Readiness(ctx), "not ready: database: connection refused")
	assert.NoError(t, probes.Liveness(ctx))
}
