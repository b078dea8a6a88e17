// Dialer API — управляющий API кампаний и приём webhook'ов.
//
// Процесс:
//   - Обслуживает /api/v1/* и /webhooks/*
//   - Держит unit'ы обзвона (dispatcher) и возобновляет их после рестарта
//   - Запускает пакетный анализ транскриптов
//
// WEBHOOK_MODE=inline применяет webhook'и сразу, queue откладывает их
// в RabbitMQ до dialer-reconciler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/Dialer/internal/analysis"
	"github.com/shaiso/Dialer/internal/api"
	"github.com/shaiso/Dialer/internal/config"
	"github.com/shaiso/Dialer/internal/dispatcher"
	"github.com/shaiso/Dialer/internal/mq"
	"github.com/shaiso/Dialer/internal/provider"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/resume"
	"github.com/shaiso/Dialer/internal/telemetry"
	"github.com/shaiso/Dialer/internal/webhook"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting dialer-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("provider is not configured", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	campaigns := repo.NewCampaignRepo(pool)
	calls := repo.NewCallRepo(pool)
	states := repo.NewRunStateRepo(pool)

	exotel := provider.NewExotel(provider.Config{
		APIKey:     cfg.ExotelAPIKey,
		APIToken:   cfg.ExotelAPIToken,
		Subdomain:  cfg.ExotelSubdomain,
		AccountSID: cfg.ExotelAccountSID,
		AppSID:     cfg.ExotelAppSID,
		CallerID:   cfg.ExotelCallerID,
		Timeout:    cfg.ProviderTimeout,
		Logger:     logger,
	})

	// advisory lock'и на отдельной сессии вне пула
	locker := repo.NewAdvisoryLocker(pool)
	defer locker.Close(context.Background())

	disp := dispatcher.New(dispatcher.Config{
		Campaigns:    campaigns,
		States:       states,
		Calls:        calls,
		Locker:       locker,
		Caller:       exotel,
		CallerID:     cfg.ExotelCallerID,
		CallbackURL:  cfg.StatusCallbackURL(),
		Interval:     cfg.CallInterval,
		PlaceTimeout: cfg.ProviderTimeout,
		Logger:       logger,
	})

	// Webhook sink: inline или через очередь
	var sink webhook.Sink = webhook.NewReconciler(calls, logger)
	if cfg.WebhookMode == config.WebhookModeQueue {
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
		sink = webhook.NewQueueSink(mq.NewPublisher(mqConn, logger))
		logger.Info("webhooks are queued", "topology", mq.TopologyInfo())
	}

	// Анализ транскриптов настраивается только при наличии ключа
	var analyzer api.Analyzer
	var pipeline *analysis.Pipeline
	if cfg.GeminiAPIKey != "" {
		gemini, err := analysis.NewGeminiService(ctx, analysis.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
			Logger: logger,
		})
		if err != nil {
			logger.Error("failed to create analysis service", "error", err)
			os.Exit(1)
		}
		pipeline = analysis.New(analysis.Config{
			Calls:        calls,
			States:       states,
			Service:      gemini,
			BatchSize:    cfg.AnalysisBatchSize,
			BatchTimeout: cfg.AnalysisTimeout,
			Logger:       logger,
		})
		analyzer = pipeline

		// анализы, прерванные падением прошлого процесса
		if _, err := pipeline.RecoverInterrupted(ctx); err != nil {
			logger.Error("failed to recover interrupted analyses", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("GEMINI_API_KEY is not set, transcript analysis is disabled")
	}

	handler := api.NewHandler(api.Config{
		Campaigns:  campaigns,
		Calls:      calls,
		States:     states,
		Dispatcher: disp,
		Analyzer:   analyzer,
		Webhooks:   sink,
		Public:     cfg.Public(),
		Logger:     logger,
	})

	mux := http.NewServeMux()
	telemetry.RegisterOpsRoutes(mux, "dialer-api", startTime)
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Возобновляем кампании, которые работали до рестарта
	go func() {
		resumer := resume.New(resume.Config{
			States:   states,
			Launcher: disp,
			Grace:    cfg.ResumeGrace,
			Logger:   logger,
		})
		if _, err := resumer.Resume(ctx); err != nil && ctx.Err() == nil {
			logger.Error("resume failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	stopWorkers(logger, disp, pipeline)

	logger.Info("stopped")
}

// stopWorkers останавливает unit'ы обзвона и прогоны анализа.
// Флаги запуска в БД не трогаются: после рестарта кампании возобновятся.
func stopWorkers(logger *slog.Logger, disp *dispatcher.Manager, pipeline *analysis.Pipeline) {
	disp.Stop()
	if pipeline != nil {
		pipeline.Stop()
	}
	logger.Info("workers stopped")
}
