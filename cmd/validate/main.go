// Command validate runs the satellite/ground validation service: it loads
// both observation datasets, matches them in space and time, runs the
// statistical battery, writes the report JSON, and serves health, metrics,
// and report endpoints. With TEMPO_KAFKA_BROKERS set the report is also
// published to Kafka; with TEMPO_ONESHOT=true the process exits once the run
// completes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/cleanskies/tempo-validation-service/internal/adapter/http"
	kafkaadapter "github.com/cleanskies/tempo-validation-service/internal/adapter/kafka"
	"github.com/cleanskies/tempo-validation-service/internal/config"
	"github.com/cleanskies/tempo-validation-service/internal/observability"
	"github.com/cleanskies/tempo-validation-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var publisher pipeline.Publisher
	var closePublisher func() error
	if cfg.PublishEnabled() {
		kp := kafkaadapter.NewPublisher(cfg, logger, metrics)
		publisher = kp
		closePublisher = kp.Close
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.ReportTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	runner := pipeline.NewRunner(cfg, publisher, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx)
		runErr <- err
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", ctx.Err())
	case err := <-runErr:
		if err != nil {
			logger.Error("validation run failed", "error", err)
			exitCode = 1
		} else if !cfg.Oneshot {
			// Keep serving /report and /metrics until signalled.
			<-ctx.Done()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if closePublisher != nil {
		if err := closePublisher(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	os.Exit(exitCode)
}
