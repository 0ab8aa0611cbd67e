package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/bootstrap"
	"github.com/ErlanBelekov/triggerd/internal/health"
	ctxlog "github.com/ErlanBelekov/triggerd/internal/log"
	"github.com/ErlanBelekov/triggerd/internal/metrics"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
	"github.com/ErlanBelekov/triggerd/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	actions, err := bootstrap.NewActions(cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("actions: %v", err)
	}
	defer actions.Close()

	policy, err := schedule.ParseIntervalPolicy(cfg.IntervalPolicy)
	if err != nil {
		stop()
		log.Fatalf("config: %v", err)
	}

	metrics.Register()
	checker := health.NewChecker(append([]health.Dependency{store.Health}, actions.Health...), logger, prometheus.DefaultRegisterer)

	dispatcher := scheduler.NewDispatcher(
		store.Repo,
		schedule.NewEvaluator(policy),
		actions.Registry,
		logger,
		scheduler.Config{
			PollInterval: cfg.PollInterval(),
			BatchSize:    cfg.BatchSize,
			Concurrency:  cfg.Concurrency,
			ClaimTimeout: cfg.ClaimTimeout(),
			Backoff:      scheduler.Backoff{Base: cfg.BackoffBase(), Max: cfg.BackoffMax()},
		},
	)
	reaper := scheduler.NewReaper(store.Repo, logger, cfg.ReapInterval(), cfg.ClaimTimeout())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		reaper.Start(ctx)
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, map[string]http.Handler{
		"/healthz": checker.LivenessHandler(),
		"/readyz":  checker.ReadinessHandler(),
	})
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	logger.Info("scheduler started", "evaluator_id", dispatcher.ID(), "interval_policy", cfg.IntervalPolicy)

	<-ctx.Done()
	stop()
	logger.Info("shutting down, waiting for in-flight firings")

	// Firings record under their own context, so this only waits for them to land.
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}
