package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Dialer/internal/callstate"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultPlaceTimeout = 10 * time.Second
	defaultRetryDelay   = 5 * time.Second
	relaunchTimeout     = 10 * time.Second
	lockKeyPrefix       = "dialer:campaign:"
)

// CampaignStore — операции с флагом запуска кампании.
type CampaignStore interface {
	TryStart(ctx context.Context, id string) (bool, error)
	Pause(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) (bool, error)
}

// StateStore — чтение флага запуска.
type StateStore interface {
	IsRunning(ctx context.Context, campaignID string) (bool, error)
}

// CallStore — операции со звонками, нужные unit'у.
type CallStore interface {
	NextPending(ctx context.Context, campaignID string) (*domain.CallJob, error)
	Transition(ctx context.Context, id int64, from, to domain.CallStatus, upd repo.StatusUpdate) error
	SaveProviderCallID(ctx context.Context, id int64, providerCallID string) error
}

// Locker — межпроцессная блокировка кампании.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Caller размещает звонок у телефонного провайдера.
type Caller interface {
	PlaceCall(ctx context.Context, phone, callerID, callbackURL string) (string, error)
}

// StartResult — результат Start.
type StartResult string

const (
	ResultStarted        StartResult = "started"
	ResultAlreadyRunning StartResult = "already_running"
)

// Config — конфигурация Manager.
type Config struct {
	Campaigns CampaignStore
	States    StateStore
	Calls     CallStore
	Locker    Locker
	Caller    Caller

	// CallerID передаётся провайдеру как номер, с которого звоним.
	CallerID string

	// CallbackURL — адрес для push-статуса провайдера.
	CallbackURL string

	Interval     time.Duration // пауза между звонками (0 — без паузы)
	PlaceTimeout time.Duration // таймаут одного PlaceCall (default: 10s)
	RetryDelay   time.Duration // пауза после ошибки хранилища (default: 5s)

	Logger *slog.Logger
}

// Manager запускает и останавливает unit'ы обзвона.
type Manager struct {
	campaigns CampaignStore
	states    StateStore
	calls     CallStore
	locker    Locker
	caller    Caller

	callerID     string
	callbackURL  string
	interval     time.Duration
	placeTimeout time.Duration
	retryDelay   time.Duration

	logger *slog.Logger

	// active — unit'ы этого процесса
	active  map[string]*unit
	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
}

// unit — запись об unit'е кампании в active.
type unit struct {
	cancel context.CancelFunc

	// restart — Launch пришёл, пока unit ещё работал. Unit мог уже
	// прочитать опущенный флаг, поэтому после выхода он запускается заново.
	restart bool
}

// New создаёт новый Manager.
func New(cfg Config) *Manager {
	interval := max(cfg.Interval, 0)
	placeTimeout := cfg.PlaceTimeout
	if placeTimeout <= 0 {
		placeTimeout = defaultPlaceTimeout
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Manager{
		campaigns:    cfg.Campaigns,
		states:       cfg.States,
		calls:        cfg.Calls,
		locker:       cfg.Locker,
		caller:       cfg.Caller,
		callerID:     cfg.CallerID,
		callbackURL:  cfg.CallbackURL,
		interval:     interval,
		placeTimeout: placeTimeout,
		retryDelay:   retryDelay,
		logger:       telemetry.OrDefault(cfg.Logger).With("component", "dispatcher"),
		active:       make(map[string]*unit),
	}
}

// Start поднимает флаг запуска и запускает unit кампании.
//
// Повторный Start запущенной кампании возвращает ResultAlreadyRunning
// и второй unit не создаёт. Для неизвестной кампании — repo.ErrNotFound.
func (m *Manager) Start(ctx context.Context, campaignID string) (StartResult, error) {
	started, err := m.campaigns.TryStart(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if !started {
		return ResultAlreadyRunning, nil
	}

	err = m.Launch(ctx, campaignID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyActive):
		// старый unit либо продолжит обзвон, либо перезапустится при выходе
		m.logger.Info("campaign unit still alive, reusing it", "campaign_id", campaignID)
	case errors.Is(err, ErrLockHeld):
		m.logger.Info("campaign dispatched by another process", "campaign_id", campaignID)
	default:
		return "", err
	}
	return ResultStarted, nil
}

// Pause опускает флаг запуска. Unit остановится перед следующим звонком.
func (m *Manager) Pause(ctx context.Context, campaignID string) error {
	if err := m.campaigns.Pause(ctx, campaignID); err != nil {
		return err
	}
	m.logger.Info("campaign paused", "campaign_id", campaignID)
	return nil
}

// Launch запускает unit кампании, флаг которой уже поднят.
// Используется Start и Resume Manager'ом.
//
// Если unit кампании уже работает, Launch возвращает ErrAlreadyActive и
// помечает его на перезапуск: выходя, unit запустит себя снова и сам
// перечитает флаг.
func (m *Manager) Launch(ctx context.Context, campaignID string) error {
	unitCtx, cancel := context.WithCancel(context.Background())

	// резервируем слот до похода в БД за lock'ом
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		cancel()
		return ErrStopped
	}
	if u, ok := m.active[campaignID]; ok {
		u.restart = true
		m.mu.Unlock()
		cancel()
		return ErrAlreadyActive
	}
	m.active[campaignID] = &unit{cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	release, ok, err := m.locker.TryLock(ctx, lockKeyPrefix+campaignID)
	if err != nil || !ok {
		m.forget(campaignID)
		cancel()
		m.wg.Done()
		if err != nil {
			return fmt.Errorf("lock campaign %s: %w", campaignID, err)
		}
		return ErrLockHeld
	}

	go func() {
		defer m.wg.Done()
		m.run(unitCtx, campaignID)
		release()
		cancel()
		// перезапуск до wg.Done, чтобы Stop дождался и нового unit'а
		if m.finish(campaignID) {
			m.relaunch(campaignID)
		}
	}()
	return nil
}

// Stop останавливает все unit'ы и ждёт их завершения.
// Флаги запуска не меняются: после рестарта кампании продолжатся.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	for _, u := range m.active {
		u.cancel()
	}
	n := len(m.active)
	m.mu.Unlock()

	m.logger.Info("stopping dispatcher", "active_units", n)
	m.wg.Wait()
	m.logger.Info("dispatcher stopped")
}

// IsActive сообщает, работает ли unit кампании в этом процессе.
func (m *Manager) IsActive(campaignID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[campaignID]
	return ok
}

func (m *Manager) forget(campaignID string) {
	m.mu.Lock()
	delete(m.active, campaignID)
	m.mu.Unlock()
}

// finish убирает unit из active и сообщает, нужен ли перезапуск.
func (m *Manager) finish(campaignID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.active[campaignID]
	delete(m.active, campaignID)
	return u != nil && u.restart && !m.stopped
}

func (m *Manager) relaunch(campaignID string) {
	ctx, cancel := context.WithTimeout(context.Background(), relaunchTimeout)
	defer cancel()

	err := m.Launch(ctx, campaignID)
	switch {
	case err == nil:
		m.logger.Info("campaign unit relaunched", "campaign_id", campaignID)
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrLockHeld), errors.Is(err, ErrStopped):
	default:
		m.logger.Error("relaunch campaign unit", "campaign_id", campaignID, "error", err)
	}
}

// run — цикл unit'а кампании.
func (m *Manager) run(ctx context.Context, campaignID string) {
	log := telemetry.WithCampaignID(m.logger, campaignID)
	telemetry.ActiveUnits.Inc()
	defer telemetry.ActiveUnits.Dec()

	log.Info("dispatch unit started")
	defer log.Info("dispatch unit exited")

	for {
		running, err := m.states.IsRunning(ctx, campaignID)
		if errors.Is(err, repo.ErrNotFound) {
			log.Info("campaign deleted")
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("read running flag", "error", err)
			if !m.sleep(ctx, m.retryDelay) {
				return
			}
			continue
		}
		if !running {
			log.Info("campaign no longer running")
			return
		}

		call, err := m.calls.NextPending(ctx, campaignID)
		if errors.Is(err, repo.ErrNotFound) {
			if m.complete(ctx, log, campaignID) {
				return
			}
			if !m.sleep(ctx, m.retryDelay) {
				return
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("fetch next pending call", "error", err)
			if !m.sleep(ctx, m.retryDelay) {
				return
			}
			continue
		}

		// ошибка хранилища не останавливает кампанию: флаг остаётся
		// поднятым, поэтому unit повторяет итерацию после паузы
		delay := m.interval
		if err := m.dial(ctx, call); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dispatch call", "call_id", call.ID, "error", err)
			delay = max(delay, m.retryDelay)
		}

		if !m.sleep(ctx, delay) {
			return
		}
	}
}

// dial проводит один звонок: claim, PlaceCall, сохранение результата.
// Ошибки провайдера превращаются в статус failed и наружу не выходят.
func (m *Manager) dial(ctx context.Context, call *domain.CallJob) error {
	log := telemetry.WithCallID(telemetry.WithCampaignID(m.logger, call.CampaignID), call.ID)

	calling, err := callstate.Next(call.Status, callstate.Claim())
	if err != nil {
		log.Debug("call cannot be claimed", "status", call.Status, "error", err)
		return nil
	}
	if err := m.calls.Transition(ctx, call.ID, call.Status, calling, repo.StatusUpdate{}); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			// звонок уже сдвинул webhook
			log.Debug("call claimed concurrently", "error", err)
			return nil
		}
		return fmt.Errorf("claim call: %w", err)
	}

	// начатый звонок доводим до конца и при остановке unit'а,
	// иначе строка останется в calling без CallSid
	ctx = context.WithoutCancel(ctx)
	placeCtx, cancel := context.WithTimeout(ctx, m.placeTimeout)
	defer cancel()

	sid, placeErr := m.caller.PlaceCall(placeCtx, call.Phone, m.callerID, m.callbackURL)
	if placeErr != nil {
		telemetry.PlacementFailures.Inc()
		log.Warn("call placement failed", "phone", call.Phone, "error", placeErr)

		failed, err := callstate.Next(calling, callstate.PlacementFailed())
		if err != nil {
			return fmt.Errorf("placement failed transition: %w", err)
		}
		err = m.calls.Transition(ctx, call.ID, calling, failed, repo.StatusUpdate{
			ErrorMessage:   placeErr.Error(),
			IncrementRetry: true,
		})
		if err != nil && !errors.Is(err, repo.ErrInvalidState) {
			return fmt.Errorf("mark call failed: %w", err)
		}
		return nil
	}

	telemetry.CallsPlaced.Inc()
	if err := m.calls.SaveProviderCallID(ctx, call.ID, sid); err != nil {
		return fmt.Errorf("save call sid: %w", err)
	}
	log.Info("call placed", "call_sid", sid)
	return nil
}

// complete завершает кампанию. Возвращает false, если запись не удалась.
func (m *Manager) complete(ctx context.Context, log *slog.Logger, campaignID string) bool {
	completed, err := m.campaigns.Complete(ctx, campaignID)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return true
		}
		log.Error("complete campaign", "error", err)
		return false
	case completed:
		log.Info("campaign completed")
	default:
		log.Info("campaign paused before completion")
	}
	return true
}

// sleep ждёт d. Возвращает false при отмене ctx.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
