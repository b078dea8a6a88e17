// Dialer Reconciler — применяет webhook'и из очереди.
//
// Reconciler:
//   - Получает события webhook.event из RabbitMQ
//   - Применяет их к звонкам через автомат статусов
//   - Повторяет неудачное событие один раз, затем отправляет в DLQ
//
// Нужен только при WEBHOOK_MODE=queue. Масштабируется горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Dialer/internal/config"
	"github.com/shaiso/Dialer/internal/mq"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
	"github.com/shaiso/Dialer/internal/webhook"
)

func main() {
	startTime := time.Now()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting dialer-reconciler")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.Dial(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Info("RabbitMQ connected", "topology", mq.TopologyInfo())

	reconciler := webhook.NewReconciler(repo.NewCallRepo(pool), logger)
	consumer := mq.NewConsumer(mqConn, mq.ConsumerConfig{
		Queue:    mq.QueueWebhookEvents,
		Handler:  webhook.QueueHandler(reconciler, logger),
		Prefetch: 8,
		Logger:   logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	telemetry.RegisterOpsRoutes(mux, "dialer-reconciler", startTime)

	addr := ":" + cfg.ReconcilerPort
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Consumer работает до отмены ctx
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("dialer-reconciler stopped")
}
