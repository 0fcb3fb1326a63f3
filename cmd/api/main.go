package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/knowledge-ingest/internal/adapters/http"
	"github.com/kirillkom/knowledge-ingest/internal/bootstrap"
	"github.com/kirillkom/knowledge-ingest/internal/config"
	"github.com/kirillkom/knowledge-ingest/internal/observability/logging"
	"github.com/kirillkom/knowledge-ingest/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("api", "info").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	ingestMetrics := metrics.NewIngestMetrics("api", httpMetrics.Registerer())
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Observer:        ingestMetrics,
		OnBreakerChange: ingestMetrics.BreakerChanged,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	routerOpts := httpadapter.Options{
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Metrics:        httpMetrics,
		Logger:         logger,
	}
	if app.Queue != nil {
		routerOpts.Queue = app.Queue
	}
	router := httpadapter.NewRouter(app.Ingest, app.Documents, routerOpts).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
