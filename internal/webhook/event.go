package webhook

import (
	"encoding/json"
	"time"
)

// Kind — вид webhook события.
type Kind string

const (
	KindProviderStatus   Kind = "provider_status"
	KindSessionStart     Kind = "session_start"
	KindSessionEnd       Kind = "session_end"
	KindTranscriptEvents Kind = "transcript_events"
)

// Event — конверт входящего события; одинаков для inline и очереди.
type Event struct {
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// NewEvent оборачивает сырой JSON payload в Event.
func NewEvent(kind Kind, payload []byte) Event {
	return Event{
		Kind:       kind,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Now().UTC(),
	}
}

// Result — чем закончилось применение события.
type Result string

const (
	// ResultApplied — событие изменило звонок.
	ResultApplied Result = "applied"

	// ResultNoop — повтор или запоздавшее событие; статус не меняется.
	ResultNoop Result = "noop"

	// ResultRejected — переход не предусмотрен таблицей переходов.
	ResultRejected Result = "rejected"

	// ResultUnknownCall — звонок с таким идентификатором не найден.
	ResultUnknownCall Result = "unknown_call"

	// ResultIgnored — событие не несёт ничего применимого.
	ResultIgnored Result = "ignored"
)
