package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/shaiso/Dialer/internal/domain"
)

// speakerOf нормализует роль автора реплики.
func speakerOf(e TranscriptEvent) string {
	role := e.Role
	if role == "" {
		role = e.Speaker
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "agent", "bot":
		return domain.SpeakerAssistant
	case "user", "customer", "human", "caller":
		return domain.SpeakerUser
	default:
		return ""
	}
}

func textOf(e TranscriptEvent) string {
	text := e.Text
	if text == "" {
		text = e.Content
	}
	return strings.Join(strings.Fields(text), " ")
}

// HasTranscript сообщает, есть ли в списке хотя бы одна реплика.
func HasTranscript(events []TranscriptEvent) bool {
	for _, e := range events {
		if e.IsTranscript() {
			return true
		}
	}
	return false
}

// BuildTranscript собирает транскрипт из реплик сессии.
//
// Подряд идущие фрагменты одного автора склеиваются в одну строку,
// каждая строка начинается с "Assistant: " или "User: ". События без
// известного автора или без текста пропускаются.
func BuildTranscript(events []TranscriptEvent) string {
	var (
		lines   []string
		speaker string
		parts   []string
	)
	flush := func() {
		if speaker != "" && len(parts) > 0 {
			lines = append(lines, speaker+": "+strings.Join(parts, " "))
		}
		parts = parts[:0]
	}

	for _, e := range events {
		if !e.IsTranscript() {
			continue
		}
		who, text := speakerOf(e), textOf(e)
		if who == "" || text == "" {
			continue
		}
		if who != speaker {
			flush()
			speaker = who
		}
		parts = append(parts, text)
	}
	flush()

	return strings.Join(lines, "\n")
}

// SessionDuration возвращает длительность сессии в целых секундах.
// Пустая метка времени даёт 0; конец раньше начала тоже даёт 0.
func SessionDuration(start, end string) (int, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return 0, nil
	}
	from, err := time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return 0, fmt.Errorf("%w: start_time: %v", ErrMalformed, err)
	}
	to, err := time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return 0, fmt.Errorf("%w: end_time: %v", ErrMalformed, err)
	}
	if to.Before(from) {
		return 0, nil
	}
	return int(to.Sub(from) / time.Second), nil
}
