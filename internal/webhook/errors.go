package webhook

import "errors"

var (
	// ErrMalformed — payload события не разбирается.
	ErrMalformed = errors.New("malformed webhook payload")

	// ErrUnknownKind — неизвестный вид события.
	ErrUnknownKind = errors.New("unknown webhook event kind")

	// ErrConflict — статус звонка менялся конкурентно дольше допустимого числа попыток.
	ErrConflict = errors.New("call status kept changing concurrently")

	// ErrUnresolved — событие пока не к чему применить (звонок ещё не найден).
	ErrUnresolved = errors.New("webhook event not resolved to a call")
)
