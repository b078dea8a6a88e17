package domain

import "strings"

// CampaignStatus — статус кампании.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ paused → running
type CampaignStatus string

const (
	// CampaignStatusPending — кампания создана, ещё не запускалась.
	CampaignStatusPending CampaignStatus = "pending"

	// CampaignStatusRunning — dispatcher обзванивает контакты.
	CampaignStatusRunning CampaignStatus = "running"

	// CampaignStatusPaused — остановлена вручную.
	CampaignStatusPaused CampaignStatus = "paused"

	// CampaignStatusCompleted — pending-звонков не осталось.
	CampaignStatusCompleted CampaignStatus = "completed"
)

// CallStatus — статус отдельного звонка.
//
// Жизненный цикл:
//
//	pending → calling → completed | failed | missed | rejected
//	   ↘        ↘
//	    bot_connected → user_connected
//	          ↘              ↘
//	         bot_end        user_end
//
// Переходы между статусами описаны в пакете callstate.
type CallStatus string

const (
	CallStatusPending       CallStatus = "pending"
	CallStatusCalling       CallStatus = "calling"
	CallStatusBotConnected  CallStatus = "bot_connected"
	CallStatusUserConnected CallStatus = "user_connected"
	CallStatusBotEnd        CallStatus = "bot_end"
	CallStatusUserEnd       CallStatus = "user_end"
	CallStatusCompleted     CallStatus = "completed"
	CallStatusFailed        CallStatus = "failed"
	CallStatusMissed        CallStatus = "missed"
	CallStatusRejected      CallStatus = "rejected"
)

// AllCallStatuses перечисляет статусы звонка в порядке жизненного цикла.
var AllCallStatuses = []CallStatus{
	CallStatusPending,
	CallStatusCalling,
	CallStatusBotConnected,
	CallStatusUserConnected,
	CallStatusBotEnd,
	CallStatusUserEnd,
	CallStatusCompleted,
	CallStatusFailed,
	CallStatusMissed,
	CallStatusRejected,
}

// IsTerminal возвращает true, если статус финальный.
// После финального статуса статус звонка больше не меняется.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusMissed, CallStatusRejected:
		return true
	default:
		return false
	}
}

// IsSession возвращает true для статусов, выставленных голосовым ботом.
func (s CallStatus) IsSession() bool {
	switch s {
	case CallStatusBotConnected, CallStatusUserConnected, CallStatusBotEnd, CallStatusUserEnd:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в словарь.
func (s CallStatus) IsValid() bool {
	for _, known := range AllCallStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// String возвращает строковое представление CallStatus.
func (s CallStatus) String() string {
	return string(s)
}

// ParseCallStatus парсит строку в CallStatus без учёта регистра.
func ParseCallStatus(s string) (CallStatus, bool) {
	status := CallStatus(strings.ToLower(strings.TrimSpace(s)))
	return status, status.IsValid()
}

// AnalysisStatus — статус анализа транскриптов кампании.
//
//	not_started → processing → completed
//	                         ↘ failed
type AnalysisStatus string

const (
	AnalysisStatusNotStarted AnalysisStatus = "not_started"
	AnalysisStatusProcessing AnalysisStatus = "processing"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// CallAnalysisStatus — статус анализа одного звонка.
type CallAnalysisStatus string

const (
	CallAnalysisPending   CallAnalysisStatus = "pending"
	CallAnalysisCompleted CallAnalysisStatus = "completed"
)

// Interest — заинтересованность абонента.
type Interest string

const (
	InterestUnknown Interest = ""
	InterestYes     Interest = "yes"
	InterestNo      Interest = "no"
)

// ParseInterest нормализует ответ анализа в Interest.
func ParseInterest(s string) Interest {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y":
		return InterestYes
	case "no", "false", "n":
		return InterestNo
	default:
		return InterestUnknown
	}
}
