package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/bootstrap"
	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/observability/logging"
	"github.com/kirillkom/knowledge-ingest/internal/observability/metrics"
)

const requestTimeout = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("worker", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	ingestMetrics := metrics.NewIngestMetrics("worker", workerMetrics.Registerer())
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Observer:        ingestMetrics,
		OnBreakerChange: ingestMetrics.BreakerChanged,
		RequireQueue:    true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSRequestSubject)
	err = app.Queue.SubscribeIngestRequests(ctx, func(handlerCtx context.Context, req domain.IngestRequest) *domain.ProcessingResult {
		processCtx, cancel := context.WithTimeout(handlerCtx, requestTimeout)
		defer cancel()

		return workerMetrics.Track(req, func() *domain.ProcessingResult {
			return app.Ingest.ProcessInput(processCtx, req, nil)
		})
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
