package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrProvider — любая ошибка обращения к провайдеру.
	ErrProvider = errors.New("provider error")

	// ErrMissingField — в ответе провайдера нет обязательного поля.
	ErrMissingField = fmt.Errorf("%w: missing field", ErrProvider)
)

// StatusError — не-2xx ответ провайдера.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error реализует интерфейс error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap позволяет проверять StatusError через errors.Is(err, ErrProvider).
func (e *StatusError) Unwrap() error {
	return ErrProvider
}
