package domain

import "time"

// CallJob — одна попытка звонка и её жизненный цикл.
//
// CallJob создаётся при загрузке кампании и меняется:
// - Dispatcher'ом (pending → calling, calling → failed)
// - callback'ом или опросом провайдера (calling → финальный статус)
// - webhook'ами голосового бота (bot/user connected/end, транскрипт, feedback)
//
// Удаляется только вместе с кампанией.
type CallJob struct {
	// ID — порядковый идентификатор, задаёт очередность обзвона.
	ID int64 `json:"id"`

	// CampaignID — кампания, которой принадлежит звонок.
	CampaignID string `json:"campaign_id"`

	Name  string `json:"name"`
	Phone string `json:"phone"`

	// Status — текущий статус звонка.
	Status CallStatus `json:"status"`

	// ProviderCallID — идентификатор звонка у телефонного провайдера (CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty"`

	// ConversationID — идентификатор сессии голосового бота.
	ConversationID string `json:"conversation_id,omitempty"`

	RecordingURL string `json:"recording_url,omitempty"`

	// Duration — длительность разговора в секундах.
	Duration int `json:"duration"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	// Feedback — обоснования исходов прошлых сессий, только дописывается.
	Feedback string `json:"feedback,omitempty"`

	Transcript    string   `json:"transcript,omitempty"`
	PreferredCity string   `json:"preferred_city,omitempty"`
	Interested    Interest `json:"interested,omitempty"`

	// AnalysisOutcome — краткий итог разговора от сервиса анализа.
	AnalysisOutcome string             `json:"analysis_outcome,omitempty"`
	AnalysisStatus  CallAnalysisStatus `json:"analysis_status"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если звонок в финальном статусе.
func (c *CallJob) IsFinished() bool {
	return c.Status.IsTerminal()
}

// HasTranscript возвращает true, если у звонка есть транскрипт.
func (c *CallJob) HasTranscript() bool {
	return c.Transcript != ""
}

// Префиксы строк транскрипта.
const (
	SpeakerAssistant = "Assistant"
	SpeakerUser      = "User"
)
