// Dialer Poller — сверяет зависшие звонки с провайдером по расписанию.
//
// Poller:
//   - Раз в POLL_SCHEDULE выбирает звонки, застрявшие в calling
//   - Запрашивает их состояние у Exotel
//   - Проводит финальный статус через автомат
//
// Тик выполняет только лидер (pg_try_advisory_lock), поэтому
// экземпляров может быть несколько.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Dialer/internal/config"
	"github.com/shaiso/Dialer/internal/poller"
	"github.com/shaiso/Dialer/internal/provider"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
)

func main() {
	startTime := time.Now()

	logger := telemetry.SetupLogger()
	logger.Info("starting dialer-poller")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("provider is not configured", "error", err)
		os.Exit(1)
	}
	if err := poller.ValidateSchedule(cfg.PollSchedule); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// advisory lock'и на отдельной сессии вне пула
	locker := repo.NewAdvisoryLocker(pool)
	defer locker.Close(context.Background())

	p := poller.New(poller.Config{
		Calls: repo.NewCallRepo(pool),
		Fetcher: provider.NewExotel(provider.Config{
			APIKey:     cfg.ExotelAPIKey,
			APIToken:   cfg.ExotelAPIToken,
			Subdomain:  cfg.ExotelSubdomain,
			AccountSID: cfg.ExotelAccountSID,
			AppSID:     cfg.ExotelAppSID,
			CallerID:   cfg.ExotelCallerID,
			Timeout:    cfg.ProviderTimeout,
			Logger:     logger,
		}),
		Locker: locker,
		Delay:  cfg.PollAge(),
		Logger: logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	telemetry.RegisterOpsRoutes(mux, "dialer-poller", startTime)
	server := &http.Server{Addr: ":" + cfg.PollerPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return p.Run(gctx, cfg.PollSchedule)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("dialer-poller failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dialer-poller stopped")
}
