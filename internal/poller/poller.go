package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Dialer/internal/callstate"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/provider"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
)

// LockKey — ключ advisory lock лидера опроса.
const LockKey = "dialer:poller"

const (
	maxCASAttempts = 3
	defaultDelay   = 10 * time.Minute
)

// CallStore — операции со звонками, нужные Poller.
type CallStore interface {
	ListStaleCalling(ctx context.Context, olderThan time.Time, limit int) ([]domain.CallJob, error)
	GetByID(ctx context.Context, id int64) (*domain.CallJob, error)
	Transition(ctx context.Context, id int64, from, to domain.CallStatus, upd repo.StatusUpdate) error
}

// DetailsFetcher запрашивает состояние звонка у провайдера.
type DetailsFetcher interface {
	FetchCallDetails(ctx context.Context, callSid string) (*provider.CallDetails, error)
}

// Locker — распределённая блокировка лидера.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Config — конфигурация Poller.
type Config struct {
	Calls   CallStore
	Fetcher DetailsFetcher
	Locker  Locker // опционально; без него каждый экземпляр считает себя лидером

	Delay       time.Duration // возраст звонка в calling до опроса (default: 10m)
	BatchSize   int           // звонков за тик (default: 100)
	Concurrency int           // параллельных запросов к провайдеру (default: 4)

	Logger *slog.Logger
	Now    func() time.Time
}

// Poller сверяет зависшие в calling звонки с провайдером.
type Poller struct {
	calls   CallStore
	fetcher DetailsFetcher
	locker  Locker

	delay       time.Duration
	batchSize   int
	concurrency int

	logger *slog.Logger
	now    func() time.Time
}

// New создаёт новый Poller.
func New(cfg Config) *Poller {
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultDelay
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Poller{
		calls:       cfg.Calls,
		fetcher:     cfg.Fetcher,
		locker:      cfg.Locker,
		delay:       delay,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      telemetry.OrDefault(cfg.Logger).With("component", "poller"),
		now:         now,
	}
}

// Tick выполняет один проход опроса.
//
// 1. Берёт блокировку лидера (не взял — пропускает тик)
// 2. Находит звонки в calling старше Delay
// 3. Параллельно запрашивает их состояние у провайдера
// 4. Применяет статус через автомат
//
// Ошибка одного звонка не блокирует обработку остальных.
func (p *Poller) Tick(ctx context.Context) error {
	if p.locker != nil {
		release, ok, err := p.locker.TryLock(ctx, LockKey)
		if err != nil {
			return fmt.Errorf("acquire poller lock: %w", err)
		}
		if !ok {
			p.logger.Debug("not a leader, skipping tick")
			return nil
		}
		defer release()
	}

	calls, err := p.calls.ListStaleCalling(ctx, p.now().Add(-p.delay), p.batchSize)
	if err != nil {
		return fmt.Errorf("list stale calls: %w", err)
	}
	if len(calls) == 0 {
		return nil
	}
	p.logger.Debug("found stale calls", "count", len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range calls {
		call := &calls[i]
		g.Go(func() error {
			outcome := p.reconcile(gctx, call)
			telemetry.PolledCalls.WithLabelValues(outcome).Inc()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("poll tick completed", "calls", len(calls))
	return ctx.Err()
}

// reconcile сверяет один звонок и возвращает исход для метрики.
func (p *Poller) reconcile(ctx context.Context, call *domain.CallJob) string {
	log := telemetry.WithCallID(p.logger, call.ID).With("call_sid", call.ProviderCallID)

	details, err := p.fetcher.FetchCallDetails(ctx, call.ProviderCallID)
	if err != nil {
		// звонок остаётся в calling до следующего тика
		log.Warn("fetch call details failed", "error", err)
		return telemetry.OutcomeError
	}

	if callstate.IsInFlight(details.Status) {
		log.Debug("call still in progress at provider", "native", details.Status)
		return telemetry.OutcomeInFlight
	}

	status := callstate.FromProviderPoll(details.Status)
	upd := repo.StatusUpdate{
		RecordingURL: details.RecordingURL,
		Duration:     details.Duration,
	}

	applied, err := p.advance(ctx, call, callstate.ProviderResult(status), upd)
	if err != nil {
		log.Error("apply polled status", "status", status, "error", err)
		return telemetry.OutcomeError
	}
	if !applied {
		return telemetry.OutcomeNoop
	}
	log.Info("call status reconciled by poll", "native", details.Status, "status", status)
	return telemetry.OutcomeApplied
}

// advance применяет событие с compare-and-swap записью.
func (p *Poller) advance(ctx context.Context, call *domain.CallJob, ev callstate.Event, upd repo.StatusUpdate) (bool, error) {
	for range maxCASAttempts {
		next, err := callstate.Next(call.Status, ev)
		if callstate.IsNoop(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		err = p.calls.Transition(ctx, call.ID, call.Status, next, upd)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, repo.ErrInvalidState) {
			return false, err
		}
		if call, err = p.calls.GetByID(ctx, call.ID); err != nil {
			return false, fmt.Errorf("reload call: %w", err)
		}
	}
	return false, fmt.Errorf("call %d: status keeps changing", call.ID)
}
