package dispatcher

import "errors"

// Ошибки dispatcher'а.
var (
	// ErrAlreadyActive — unit кампании уже работает в этом процессе.
	ErrAlreadyActive = errors.New("dispatch unit already active")

	// ErrLockHeld — кампанию обзванивает другой процесс.
	ErrLockHeld = errors.New("campaign is dispatched by another process")

	// ErrStopped — Manager остановлен.
	ErrStopped = errors.New("dispatcher stopped")
)
