// Package resume перезапускает обзвон кампаний после рестарта процесса.
//
// Источник истины — только флаг is_running в campaign_state: каждая
// кампания с поднятым флагом получает новый dispatch unit. Звонки,
// оставшиеся в calling, повторно не набираются; их закроют webhook'и
// или poller.
package resume

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Dialer/internal/dispatcher"
	"github.com/shaiso/Dialer/internal/telemetry"
)

const defaultGrace = 2 * time.Second

// RunningLister перечисляет кампании с поднятым флагом запуска.
type RunningLister interface {
	ListRunning(ctx context.Context) ([]string, error)
}

// Launcher запускает unit кампании.
type Launcher interface {
	Launch(ctx context.Context, campaignID string) error
}

// Config — конфигурация Manager.
type Config struct {
	States   RunningLister
	Launcher Launcher
	Grace    time.Duration // задержка перед возобновлением (default: 2s)
	Logger   *slog.Logger
}

// Manager возобновляет кампании при старте.
type Manager struct {
	states   RunningLister
	launcher Launcher
	grace    time.Duration
	logger   *slog.Logger
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	grace := cfg.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	return &Manager{
		states:   cfg.States,
		launcher: cfg.Launcher,
		grace:    grace,
		logger:   telemetry.OrDefault(cfg.Logger).With("component", "resume"),
	}
}

// Resume ждёт grace-задержку и запускает unit для каждой кампании с
// поднятым флагом. Возвращает число запущенных unit'ов.
//
// Кампании, которые уже обзванивает этот или другой процесс,
// пропускаются.
func (m *Manager) Resume(ctx context.Context) (int, error) {
	timer := time.NewTimer(m.grace)
	select {
	case <-ctx.Done():
		timer.Stop()
		return 0, ctx.Err()
	case <-timer.C:
	}

	ids, err := m.states.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	launched := 0
	for _, id := range ids {
		err := m.launcher.Launch(ctx, id)
		switch {
		case err == nil:
			launched++
			m.logger.Info("campaign resumed", "campaign_id", id)
		case errors.Is(err, dispatcher.ErrAlreadyActive), errors.Is(err, dispatcher.ErrLockHeld):
			m.logger.Info("campaign already dispatched, skipping", "campaign_id", id, "reason", err)
		case errors.Is(err, dispatcher.ErrStopped):
			return launched, err
		default:
			m.logger.Error("resume campaign", "campaign_id", id, "error", err)
		}
	}

	m.logger.Info("resume finished", "running", len(ids), "launched", launched)
	return launched, nil
}
