package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shaiso/Dialer/internal/analysis"
	"github.com/shaiso/Dialer/internal/config"
	"github.com/shaiso/Dialer/internal/dispatcher"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/telemetry"
	"github.com/shaiso/Dialer/internal/webhook"
)

// CampaignStore — операции с кампаниями, нужные API.
type CampaignStore interface {
	Create(ctx context.Context, campaign *domain.Campaign, calls []domain.CallJob) error
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context) ([]domain.CampaignSummary, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, id string) (*domain.CampaignStats, error)
}

// CallStore — чтение звонков кампании.
type CallStore interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.CallJob, error)
	ListAnalyzed(ctx context.Context, campaignID string) ([]domain.CallJob, error)
}

// StateStore — чтение состояния запуска.
type StateStore interface {
	Get(ctx context.Context, campaignID string) (*domain.RunState, error)
}

// Dispatcher запускает и ставит на паузу обзвон.
type Dispatcher interface {
	Start(ctx context.Context, campaignID string) (dispatcher.StartResult, error)
	Pause(ctx context.Context, campaignID string) error
}

// Analyzer запускает пакетный анализ транскриптов.
type Analyzer interface {
	Trigger(ctx context.Context, campaignID string) (analysis.TriggerResult, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	campaigns  CampaignStore
	calls      CallStore
	states     StateStore
	dispatcher Dispatcher
	analyzer   Analyzer
	webhooks   webhook.Sink
	public     config.Public
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Campaigns  CampaignStore
	Calls      CallStore
	States     StateStore
	Dispatcher Dispatcher
	Analyzer   Analyzer // nil — анализ не настроен, эндпоинт отвечает 503

	// Webhooks получает входящие события (Reconciler или QueueSink).
	Webhooks webhook.Sink

	Public config.Public
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		campaigns:  cfg.Campaigns,
		calls:      cfg.Calls,
		states:     cfg.States,
		dispatcher: cfg.Dispatcher,
		analyzer:   cfg.Analyzer,
		webhooks:   cfg.Webhooks,
		public:     cfg.Public,
		logger:     telemetry.OrDefault(cfg.Logger).With("component", "api"),
	}
}

// GetConfig возвращает несекретную часть конфигурации.
// GET /api/v1/config
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	Success(w, h.public)
}
