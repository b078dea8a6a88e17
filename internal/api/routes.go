package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		BodyLimit(maxBodyBytes),
	)

	// Campaigns
	mux.Handle("GET /api/v1/campaigns", chain(http.HandlerFunc(h.ListCampaigns)))
	mux.Handle("POST /api/v1/campaigns", chain(http.HandlerFunc(h.CreateCampaign)))
	mux.Handle("GET /api/v1/campaigns/{id}", chain(http.HandlerFunc(h.GetCampaign)))
	mux.Handle("DELETE /api/v1/campaigns/{id}", chain(http.HandlerFunc(h.DeleteCampaign)))
	mux.Handle("GET /api/v1/campaigns/{id}/stats", chain(http.HandlerFunc(h.GetCampaignStats)))
	mux.Handle("POST /api/v1/campaigns/{id}/start", chain(http.HandlerFunc(h.StartCampaign)))
	mux.Handle("POST /api/v1/campaigns/{id}/pause", chain(http.HandlerFunc(h.PauseCampaign)))

	// Analysis
	mux.Handle("POST /api/v1/campaigns/{id}/analysis", chain(http.HandlerFunc(h.TriggerAnalysis)))
	mux.Handle("GET /api/v1/campaigns/{id}/analysis", chain(http.HandlerFunc(h.GetAnalysis)))

	mux.Handle("GET /api/v1/config", chain(http.HandlerFunc(h.GetConfig)))

	// Webhooks
	mux.Handle("POST /webhooks/provider/status", chain(http.HandlerFunc(h.ProviderStatusWebhook)))
	mux.Handle("POST /webhooks/session/start", chain(http.HandlerFunc(h.SessionStartWebhook)))
	mux.Handle("POST /webhooks/session/end", chain(http.HandlerFunc(h.SessionEndWebhook)))
	mux.Handle("POST /webhooks/transcript", chain(http.HandlerFunc(h.TranscriptWebhook)))
}
