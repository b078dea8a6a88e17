package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ProviderStatusPayload — status callback провайдера.
type ProviderStatusPayload struct {
	CallSid      string  `json:"CallSid"`
	Status       string  `json:"Status"`
	RecordingURL string  `json:"RecordingUrl,omitempty"`
	Duration     flexInt `json:"Duration,omitempty"`

	// ConversationDuration присылает Exotel вместо Duration в JSON callback'ах.
	ConversationDuration flexInt `json:"ConversationDuration,omitempty"`
}

// Seconds возвращает длительность звонка из любого из полей.
func (p ProviderStatusPayload) Seconds() int {
	if p.Duration > 0 {
		return int(p.Duration)
	}
	return int(p.ConversationDuration)
}

// ProviderStatusFromForm собирает payload из form-encoded callback'а.
func ProviderStatusFromForm(form url.Values) ProviderStatusPayload {
	return ProviderStatusPayload{
		CallSid:              form.Get("CallSid"),
		Status:               form.Get("Status"),
		RecordingURL:         form.Get("RecordingUrl"),
		Duration:             parseFlexInt(form.Get("Duration")),
		ConversationDuration: parseFlexInt(form.Get("ConversationDuration")),
	}
}

// Intent — распознанное ботом намерение собеседника.
type Intent struct {
	Intent    string `json:"intent"`
	Reasoning string `json:"reasoning"`
}

// PriorSession — прошлая сессия бота, упомянутая в session-start.
type PriorSession struct {
	ConversationID string `json:"conversation_id"`
	CallOutcome    struct {
		Justification string `json:"justification"`
	} `json:"call_outcome"`
	Intents []Intent `json:"intents"`
}

// SessionStartPayload — начало сессии бота.
type SessionStartPayload struct {
	ExternalID       string `json:"external_id"`
	ConversationID   string `json:"conversation_id"`
	PreviousSessions struct {
		Sessions []PriorSession `json:"sessions"`
	} `json:"previous_sessions"`
}

// TranscriptEvent — одно событие из потока сессии.
type TranscriptEvent struct {
	EventType string `json:"event_type"`
	Role      string `json:"role,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text,omitempty"`
	Content   string `json:"content,omitempty"`
}

// IsTranscript сообщает, несёт ли событие реплику.
func (e TranscriptEvent) IsTranscript() bool {
	return strings.EqualFold(strings.TrimSpace(e.EventType), "transcript")
}

// SessionEndPayload — окончание сессии бота.
type SessionEndPayload struct {
	Metadata struct {
		CallSid string `json:"call_sid"`
	} `json:"metadata"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Events    []TranscriptEvent `json:"events"`
}

// TranscriptEventsPayload — пачка событий сессии в реальном времени.
type TranscriptEventsPayload struct {
	ExternalID string            `json:"external_id"`
	Events     []TranscriptEvent `json:"events"`
}

// decode разбирает JSON payload в T.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) == 0 {
		return v, fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// flexInt принимает число как JSON number или как строку.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	*f = parseFlexInt(s)
	return nil
}

func parseFlexInt(s string) flexInt {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return flexInt(n)
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return flexInt(x)
	}
	return 0
}
