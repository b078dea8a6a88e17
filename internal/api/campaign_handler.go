package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shaiso/Dialer/internal/domain"
)

// ListCampaigns возвращает все кампании с флагом запуска.
// GET /api/v1/campaigns
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.campaigns.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if campaigns == nil {
		campaigns = []domain.CampaignSummary{}
	}
	List(w, campaigns, len(campaigns))
}

// CreateCampaign загружает кампанию со списком контактов.
// POST /api/v1/campaigns
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := normalizeCreateRequest(&req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	campaign, calls := domain.NewCampaign(req.Name, req.Calls)
	if err := h.campaigns.Create(r.Context(), campaign, calls); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("campaign created", "campaign_id", campaign.ID, "name", campaign.Name, "total_calls", campaign.TotalCalls)
	Created(w, CreateCampaignResponse{
		CampaignID: campaign.ID,
		Status:     "created",
		TotalCalls: campaign.TotalCalls,
	})
}

// GetCampaign возвращает кампанию, её звонки и состояние запуска.
// GET /api/v1/campaigns/{id}
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	campaign, err := h.campaigns.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	calls, err := h.calls.ListByCampaign(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if calls == nil {
		calls = []domain.CallJob{}
	}

	state, err := h.states.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign state not found") {
		return
	}

	Success(w, CampaignDetailResponse{
		Campaign:       *campaign,
		Calls:          calls,
		State:          state,
		AnalysisStatus: state.AnalysisStatus,
	})
}

// GetCampaignStats возвращает статистику звонков кампании.
// GET /api/v1/campaigns/{id}/stats
func (h *Handler) GetCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.campaigns.Stats(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}
	Success(w, stats)
}

// StartCampaign запускает обзвон кампании.
// POST /api/v1/campaigns/{id}/start
func (h *Handler) StartCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.Start(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}
	Success(w, StatusResponse{Status: string(result)})
}

// PauseCampaign ставит обзвон кампании на паузу.
// POST /api/v1/campaigns/{id}/pause
func (h *Handler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	err := h.dispatcher.Pause(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}
	Success(w, StatusResponse{Status: "paused"})
}

// DeleteCampaign удаляет кампанию вместе со звонками и состоянием.
// Работающий unit кампании остановится, не найдя её состояния.
// DELETE /api/v1/campaigns/{id}
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.campaigns.Delete(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}
	h.logger.Info("campaign deleted", "campaign_id", id)
	Success(w, StatusResponse{Status: "deleted"})
}

// normalizeCreateRequest проверяет запрос и обрезает пробелы.
// Пустой список контактов допустим: такая кампания завершится при старте.
func normalizeCreateRequest(req *CreateCampaignRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	for i := range req.Calls {
		c := &req.Calls[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Phone = strings.TrimSpace(c.Phone)
		if c.Phone == "" {
			return fmt.Errorf("calls[%d]: phone is required", i)
		}
	}
	return nil
}
