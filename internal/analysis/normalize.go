package analysis

import (
	"strings"

	"github.com/shaiso/Dialer/internal/domain"
)

var speakerPrefixes = []string{domain.SpeakerAssistant, domain.SpeakerUser}

// NormalizeTranscript готовит транскрипт к анализу.
//
// Пробелы внутри строк схлопываются, пустые строки удаляются.
// Остаются только строки с префиксом "Assistant:" или "User:"
// (префикс приводится к каноническому регистру).
func NormalizeTranscript(raw string) string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if norm, ok := canonicalLine(line); ok {
			out = append(out, norm)
		}
	}
	return strings.Join(out, "\n")
}

// canonicalLine проверяет префикс автора и нормализует его.
func canonicalLine(line string) (string, bool) {
	for _, speaker := range speakerPrefixes {
		prefix := speaker + ":"
		if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
			continue
		}
		text := strings.TrimSpace(line[len(prefix):])
		if text == "" {
			return "", false
		}
		return prefix + " " + text, true
	}
	return "", false
}
