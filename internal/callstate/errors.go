package callstate

import "errors"

// Причины отказа в переходе.
var (
	// ErrTerminal — звонок уже в финальном статусе.
	ErrTerminal = errors.New("call status is terminal")

	// ErrNoDowngrade — событие вернуло бы звонок на более раннюю стадию сессии.
	ErrNoDowngrade = errors.New("status downgrade rejected")

	// ErrInvalidTransition — событие неприменимо к текущему статусу.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsNoop возвращает true для отказов, которые означают дубликат или
// запоздавшее событие, а не ошибку.
func IsNoop(err error) bool {
	return errors.Is(err, ErrTerminal) || errors.Is(err, ErrNoDowngrade)
}
