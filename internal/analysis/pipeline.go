package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultBatchSize    = 5
	defaultBatchTimeout = 30 * time.Second
)

// Service анализирует пачку транскриптов.
type Service interface {
	RequestBatch(ctx context.Context, items []BatchItem) ([]BatchResult, error)
}

// CallStore — операции со звонками, нужные pipeline.
type CallStore interface {
	ListAnalyzable(ctx context.Context, campaignID string) ([]domain.CallJob, error)
	SaveAnalysisResult(ctx context.Context, campaignID string, res repo.AnalysisResult) error
}

// StateStore — статус анализа кампании.
type StateStore interface {
	TryBeginAnalysis(ctx context.Context, campaignID string) (bool, error)
	SetAnalysisStatus(ctx context.Context, campaignID string, status domain.AnalysisStatus) error
	FailInterruptedAnalyses(ctx context.Context) ([]string, error)
}

// TriggerResult — результат Trigger.
type TriggerResult string

const (
	ResultProcessingStarted TriggerResult = "processing_started"
	ResultAlreadyProcessing TriggerResult = "already_processing"
)

// Config — конфигурация Pipeline.
type Config struct {
	Calls   CallStore
	States  StateStore
	Service Service

	BatchSize    int           // размер пачки (default: 5)
	BatchTimeout time.Duration // таймаут одного запроса к Service (default: 30s)

	Logger *slog.Logger
}

// Pipeline запускает пакетный анализ транскриптов.
type Pipeline struct {
	calls   CallStore
	states  StateStore
	service Service

	batchSize    int
	batchTimeout time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт новый Pipeline.
func New(cfg Config) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		calls:        cfg.Calls,
		states:       cfg.States,
		service:      cfg.Service,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		logger:       telemetry.OrDefault(cfg.Logger).With("component", "analysis"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Trigger запускает анализ кампании в фоне.
// Для кампании без состояния возвращает repo.ErrNotFound.
func (p *Pipeline) Trigger(ctx context.Context, campaignID string) (TriggerResult, error) {
	begun, err := p.states.TryBeginAnalysis(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if !begun {
		return ResultAlreadyProcessing, nil
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Run(p.ctx, campaignID); err != nil {
			p.logger.Error("analysis run failed", "campaign_id", campaignID, "error", err)
		}
	}()
	return ResultProcessingStarted, nil
}

// RecoverInterrupted переводит в failed анализы, оставшиеся в processing
// после падения процесса. Вызывается при старте до приёма запросов;
// иначе такие кампании навсегда отвечали бы already_processing.
func (p *Pipeline) RecoverInterrupted(ctx context.Context) (int, error) {
	ids, err := p.states.FailInterruptedAnalyses(ctx)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted analyses: %w", err)
	}
	for _, id := range ids {
		p.logger.Warn("interrupted analysis marked failed", "campaign_id", id)
	}
	return len(ids), nil
}

// Wait ждёт завершения всех запущенных прогонов.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stop прерывает прогоны и ждёт их завершения.
// Прерванный прогон оставляет анализ в failed, его можно запустить снова.
func (p *Pipeline) Stop() {
	p.cancel()
	p.wg.Wait()
}

// Run выполняет прогон анализа и записывает итоговый статус.
// Статус processing должен быть уже выставлен.
func (p *Pipeline) Run(ctx context.Context, campaignID string) (err error) {
	log := telemetry.WithCampaignID(p.logger, campaignID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrFatal, r)
		}

		status := domain.AnalysisStatusCompleted
		if err != nil {
			status = domain.AnalysisStatusFailed
		}
		// запись итога не должна зависеть от отменённого ctx
		if serr := p.states.SetAnalysisStatus(context.WithoutCancel(ctx), campaignID, status); serr != nil {
			err = errors.Join(err, fmt.Errorf("set analysis status %s: %w", status, serr))
		}
		log.Info("analysis finished", "status", status)
	}()

	calls, err := p.calls.ListAnalyzable(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("%w: list calls: %v", ErrFatal, err)
	}

	items := make([]BatchItem, 0, len(calls))
	for _, c := range calls {
		transcript := NormalizeTranscript(c.Transcript)
		if transcript == "" {
			continue
		}
		items = append(items, BatchItem{CallSid: c.ProviderCallID, Transcript: transcript})
	}
	log.Info("analysis started", "calls", len(items), "batch_size", p.batchSize)

	for start := 0; start < len(items); start += p.batchSize {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrFatal, ctx.Err())
		}
		batch := items[start:min(start+p.batchSize, len(items))]
		p.processBatch(ctx, log, campaignID, batch)
	}
	return nil
}

// processBatch анализирует одну пачку. Ошибки пачки не выходят наружу.
func (p *Pipeline) processBatch(ctx context.Context, log *slog.Logger, campaignID string, batch []BatchItem) {
	batchCtx, cancel := context.WithTimeout(ctx, p.batchTimeout)
	defer cancel()

	results, err := p.service.RequestBatch(batchCtx, batch)
	if err != nil {
		telemetry.AnalysisBatches.WithLabelValues(telemetry.OutcomeError).Inc()
		log.Warn("analysis batch skipped", "first_call_sid", batch[0].CallSid, "size", len(batch), "error", err)
		return
	}
	if len(results) == 0 {
		telemetry.AnalysisBatches.WithLabelValues(telemetry.OutcomeEmpty).Inc()
		log.Warn("analysis batch returned no results", "size", len(batch))
		return
	}

	inBatch := make(map[string]bool, len(batch))
	for _, item := range batch {
		inBatch[item.CallSid] = true
	}

	saved := 0
	for _, r := range results {
		if !inBatch[r.CallSid] {
			log.Warn("result for call outside batch", "call_sid", r.CallSid)
			continue
		}
		res := repo.AnalysisResult{
			ProviderCallID: r.CallSid,
			Interested:     domain.ParseInterest(r.Interest),
			Outcome:        r.Outcome,
		}
		if r.City != nil {
			res.City = *r.City
		}
		if err := p.calls.SaveAnalysisResult(ctx, campaignID, res); err != nil {
			log.Warn("save analysis result", "call_sid", r.CallSid, "error", err)
			continue
		}
		saved++
	}
	telemetry.AnalysisBatches.WithLabelValues(telemetry.OutcomeApplied).Inc()
	log.Info("analysis batch saved", "size", len(batch), "saved", saved)
}
