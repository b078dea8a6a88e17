package analysis

import "errors"

var (
	// ErrTransient — ошибка одной пачки; пачка пропускается.
	ErrTransient = errors.New("transient analysis error")

	// ErrFatal — ошибка прогона целиком; анализ кампании переходит в failed.
	ErrFatal = errors.New("analysis pipeline failed")
)
