package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign — именованный набор исходящих звонков со счётчиками.
//
// TotalCalls фиксируется при создании и равен количеству CallJob.
// CompletedCalls и FailedCalls только растут, их сумма не превышает TotalCalls.
type Campaign struct {
	// ID — уникальный идентификатор кампании.
	ID string `json:"id"`

	// Name — название кампании.
	Name string `json:"name"`

	// Status — текущий статус кампании.
	Status CampaignStatus `json:"status"`

	// TotalCalls — количество звонков, загруженных при создании.
	TotalCalls int `json:"total_calls"`

	// CompletedCalls — звонки, завершившиеся статусом completed.
	CompletedCalls int `json:"completed_calls"`

	// FailedCalls — звонки, завершившиеся failed, missed или rejected.
	FailedCalls int `json:"failed_calls"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// Contact — строка загружаемого списка обзвона.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// NewCampaign создаёт кампанию и её звонки в статусе pending.
// Порядок звонков совпадает с порядком контактов.
func NewCampaign(name string, contacts []Contact) (*Campaign, []CallJob) {
	now := time.Now().UTC()

	campaign := &Campaign{
		ID:         uuid.New().String(),
		Name:       name,
		Status:     CampaignStatusPending,
		TotalCalls: len(contacts),
		CreatedAt:  now,
	}

	calls := make([]CallJob, len(contacts))
	for i, c := range contacts {
		calls[i] = CallJob{
			CampaignID:     campaign.ID,
			Name:           c.Name,
			Phone:          c.Phone,
			Status:         CallStatusPending,
			AnalysisStatus: CallAnalysisPending,
			UpdatedAt:      now,
		}
	}

	return campaign, calls
}

// Finished возвращает количество звонков в финальном статусе.
func (c *Campaign) Finished() int {
	return c.CompletedCalls + c.FailedCalls
}

// CampaignSummary — кампания вместе с флагом запуска (для списков).
type CampaignSummary struct {
	Campaign
	IsRunning      bool           `json:"is_running"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
}

// CampaignStats — агрегированная статистика по звонкам кампании.
type CampaignStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`

	// Failed — failed, missed и rejected.
	Failed int `json:"failed"`

	// Pending — звонки, которые ещё не дошли до конца сессии.
	Pending int `json:"pending"`

	// Done — финальные статусы плюс bot_end и user_end.
	Done int `json:"done"`

	IsRunning      bool           `json:"is_running"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
}
