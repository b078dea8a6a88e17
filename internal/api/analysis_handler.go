package api

import (
	"net/http"
)

// TriggerAnalysis запускает анализ транскриптов кампании в фоне.
// POST /api/v1/campaigns/{id}/analysis
func (h *Handler) TriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.analyzer == nil {
		Unavailable(w, "analysis service is not configured")
		return
	}

	result, err := h.analyzer.Trigger(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}
	JSON(w, http.StatusAccepted, DataResponse{Data: StatusResponse{Status: string(result)}})
}

// GetAnalysis возвращает статус анализа и проанализированные звонки.
// GET /api/v1/campaigns/{id}/analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	state, err := h.states.Get(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "campaign not found") {
		return
	}

	calls, err := h.calls.ListAnalyzed(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AnalyzedCall, len(calls))
	for i, c := range calls {
		result[i] = AnalyzedCallFromDomain(c)
	}

	Success(w, AnalysisResponse{
		AnalysisStatus: state.AnalysisStatus,
		Calls:          result,
	})
}
