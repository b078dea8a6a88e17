package domain

import "time"

// RunState — состояние запуска кампании (1:1 с Campaign).
//
// IsRunning — единственный источник правды о том, должен ли работать
// dispatcher кампании. Resume после рестарта опирается только на него.
type RunState struct {
	CampaignID     string         `json:"campaign_id"`
	IsRunning      bool           `json:"is_running"`
	AnalysisStatus AnalysisStatus `json:"analysis_status"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// NewRunState создаёт состояние для новой кампании.
func NewRunState(campaignID string, at time.Time) *RunState {
	return &RunState{
		CampaignID:     campaignID,
		IsRunning:      false,
		AnalysisStatus: AnalysisStatusNotStarted,
		LastUpdated:    at,
	}
}

// IsAnalysing возвращает true, если анализ уже выполняется.
func (s *RunState) IsAnalysing() bool {
	return s.AnalysisStatus == AnalysisStatusProcessing
}
