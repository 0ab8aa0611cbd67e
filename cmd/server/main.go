package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/bootstrap"
	"github.com/ErlanBelekov/triggerd/internal/health"
	ctxlog "github.com/ErlanBelekov/triggerd/internal/log"
	"github.com/ErlanBelekov/triggerd/internal/metrics"
	"github.com/ErlanBelekov/triggerd/internal/schedule"
	httptransport "github.com/ErlanBelekov/triggerd/internal/transport/http"
	"github.com/ErlanBelekov/triggerd/internal/transport/http/handler"
	"github.com/ErlanBelekov/triggerd/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("config error: JWT_SECRET is required for the API server")
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer store.Close()

	// The API only validates action kinds; the registry's connections are
	// opened so create requests see the same set of kinds the scheduler runs.
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

	triggerUsecase := usecase.NewTriggerUsecase(store.Repo, schedule.NewEvaluator(policy), actions.Registry)
	triggerHandler := handler.NewTriggerHandler(triggerUsecase, logger)

	metrics.Register()
	checker := health.NewChecker(append([]health.Dependency{store.Health}, actions.Health...), logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, triggerHandler, checker, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, nil)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}
