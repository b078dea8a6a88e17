package api

import (
	"github.com/shaiso/Dialer/internal/domain"
)

// Campaign DTOs

// CreateCampaignRequest — запрос на загрузку кампании.
// Порядок Calls задаёт порядок обзвона.
type CreateCampaignRequest struct {
	Name  string           `json:"name"`
	Calls []domain.Contact `json:"calls"`
}

// CreateCampaignResponse — ответ на загрузку кампании.
type CreateCampaignResponse struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	TotalCalls int    `json:"total_calls"`
}

// CampaignDetailResponse — кампания со звонками и состоянием запуска.
type CampaignDetailResponse struct {
	Campaign       domain.Campaign       `json:"campaign"`
	Calls          []domain.CallJob      `json:"calls"`
	State          *domain.RunState      `json:"state"`
	AnalysisStatus domain.AnalysisStatus `json:"analysis_status"`
}

// StatusResponse — ответ на действие над кампанией.
type StatusResponse struct {
	Status string `json:"status"`
}

// Analysis DTOs

// AnalyzedCall — результат анализа одного звонка.
type AnalyzedCall struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	ProviderCallID string          `json:"provider_call_id,omitempty"`
	Status         string          `json:"status"`
	PreferredCity  string          `json:"preferred_city,omitempty"`
	Interested     domain.Interest `json:"interested,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
	Feedback       string          `json:"feedback,omitempty"`
}

// AnalyzedCallFromDomain конвертирует domain.CallJob в AnalyzedCall.
func AnalyzedCallFromDomain(c domain.CallJob) AnalyzedCall {
	return AnalyzedCall{
		ID:             c.ID,
		Name:           c.Name,
		Phone:          c.Phone,
		ProviderCallID: c.ProviderCallID,
		Status:         string(c.Status),
		PreferredCity:  c.PreferredCity,
		Interested:     c.Interested,
		Outcome:        c.AnalysisOutcome,
		Feedback:       c.Feedback,
	}
}

// AnalysisResponse — статус анализа кампании и проанализированные звонки.
type AnalysisResponse struct {
	AnalysisStatus domain.AnalysisStatus `json:"analysis_status"`
	Calls          []AnalyzedCall        `json:"calls"`
}

// Webhook acknowledgements

// sessionStartAck — ответ на session-start в конверте, который ожидает голосовой бот.
var sessionStartAck = map[string]any{
	"response": map[string]any{
		"http_code":  200,
		"method":     "POST",
		"request_id": "any-string",
		"response": map[string]any{
			"http_code": 200,
			"data":      map[string]any{},
		},
	},
}

// sessionAck — ответ на session-end и transcript.
var sessionAck = map[string]any{
	"http_code": 200,
	"response":  map[string]any{"data": map[string]any{}},
}

// okAck — ответ на status callback провайдера.
var okAck = map[string]any{"ok": true}
