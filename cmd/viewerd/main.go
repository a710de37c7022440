package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/Proton-105/viewerstore/internal/errors"
	"github.com/Proton-105/viewerstore/internal/health"
	"github.com/Proton-105/viewerstore/internal/lifecycle"
	"github.com/Proton-105/viewerstore/internal/middleware"
	"github.com/Proton-105/viewerstore/internal/repository"
	"github.com/Proton-105/viewerstore/pkg/config"
	"github.com/Proton-105/viewerstore/pkg/graceful"
	"github.com/Proton-105/viewerstore/pkg/logger"
	"github.com/Proton-105/viewerstore/pkg/metrics"
)

// probeUsername is looked up by the readiness check; it never needs to exist.
const probeUsername = "__viewerd_probe__"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "viewerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	log.Info("starting viewer store",
		slog.String("database", cfg.Database.String()),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("log_level", cfg.Logger.Level),
	)

	config.Watch(v, func(next *config.Config) {
		logger.SetLevel(next.Logger.Level)
		log.Info("configuration reloaded", slog.String("log_level", next.Logger.Level))
	}, func(err error) {
		log.Warn("configuration reload rejected", slog.Any("error", err))
	})

	store, db, err := repository.Open(ctx, cfg.Database, log)
	if err != nil {
		errHandler.Handle(ctx, err)
		return err
	}
	store = repository.NewMetricsStore(store)

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("database", func(context.Context) error {
		return db.Close()
	})

	checker := health.NewChecker(log)
	checker.AddCheck("database", health.NewDBChecker(db))
	checker.AddCheck("users_table", health.CheckFunc(func(ctx context.Context) error {
		_, err := store.GetOpted(ctx, probeUsername)
		return err
	}))
	probes := lifecycle.NewProbes(log, checker)

	go metrics.NewPoolCollector(db).Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.Handler())
	mux.HandleFunc("/livez", probeHandler(probes.Liveness))
	mux.HandleFunc("/readyz", probeHandler(probes.Readiness))
	mux.Handle("/metrics", promhttp.Handler())

	handler := logger.Middleware(middleware.New(log)(mux))
	server := graceful.NewServer(log, cfg.HTTP.Addr, handler, cfg.HTTP.ShutdownTimeout)

	serveErr := server.ListenAndServe(ctx)
	if serveErr != nil {
		errHandler.Handle(ctx, serveErr)
	}

	log.Info("viewer store shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, shutdown.Execute(shutdownCtx))
}

func probeHandler(probe func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := probe(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}
}
