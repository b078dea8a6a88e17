package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BatchItem — один транскрипт в запросе к сервису анализа.
type BatchItem struct {
	CallSid    string `json:"call_sid"`
	Transcript string `json:"transcript"`
}

// BatchResult — результат анализа одного звонка.
type BatchResult struct {
	CallSid  string  `json:"call_sid"`
	City     *string `json:"city"`
	Interest string  `json:"interest"`
	Outcome  string  `json:"outcome"`
}

// parseBatchResponse разбирает JSON ответ модели.
// Принимает массив результатов или объект {"results": [...]},
// в том числе обёрнутые в markdown-блок ```json.
func parseBatchResponse(text string) ([]BatchResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrTransient)
	}

	if strings.HasPrefix(text, "{") {
		var wrapped struct {
			Results []BatchResult `json:"results"`
		}
		if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
		}
		return wrapped.Results, nil
	}

	var results []BatchResult
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	return results, nil
}
