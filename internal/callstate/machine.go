package callstate

import (
	"fmt"

	"github.com/shaiso/Dialer/internal/domain"
)

// EventKind — тип события, меняющего статус звонка.
type EventKind string

const (
	// EventClaim — dispatcher забирает звонок в работу.
	EventClaim EventKind = "claim"

	// EventPlacementFailed — провайдер не смог разместить звонок.
	EventPlacementFailed EventKind = "placement_failed"

	// EventProviderResult — финальный статус из callback'а или опроса провайдера.
	EventProviderResult EventKind = "provider_result"

	// EventBotConnected — первое событие с транскриптом от голосового бота.
	EventBotConnected EventKind = "bot_connected"

	// EventUserConnected — передача разговора оператору.
	EventUserConnected EventKind = "user_connected"

	// EventSessionEnd — завершение сессии голосового бота.
	EventSessionEnd EventKind = "session_end"
)

// Event — событие для автомата.
type Event struct {
	Kind EventKind

	// Result — финальный статус для EventProviderResult.
	Result domain.CallStatus
}

// Claim, PlacementFailed, ... — конструкторы событий.
func Claim() Event           { return Event{Kind: EventClaim} }
func PlacementFailed() Event { return Event{Kind: EventPlacementFailed} }
func BotConnected() Event    { return Event{Kind: EventBotConnected} }
func UserConnected() Event   { return Event{Kind: EventUserConnected} }
func SessionEnd() Event      { return Event{Kind: EventSessionEnd} }

// ProviderResult создаёт событие финального статуса провайдера.
func ProviderResult(status domain.CallStatus) Event {
	return Event{Kind: EventProviderResult, Result: status}
}

// transitions — таблица переходов: событие → текущий статус → новый статус.
//
// EventProviderResult в таблице нет: финальный статус провайдера
// принимается из любого нефинального статуса, кроме pending.
//
// EventSessionEnd принимается и из pending/calling: конец сессии может
// прийти раньше её начала.
var transitions = map[EventKind]map[domain.CallStatus]domain.CallStatus{
	EventClaim: {
		domain.CallStatusPending: domain.CallStatusCalling,
	},
	EventPlacementFailed: {
		domain.CallStatusCalling: domain.CallStatusFailed,
	},
	EventBotConnected: {
		domain.CallStatusPending: domain.CallStatusBotConnected,
		domain.CallStatusCalling: domain.CallStatusBotConnected,
	},
	EventUserConnected: {
		domain.CallStatusBotConnected: domain.CallStatusUserConnected,
	},
	EventSessionEnd: {
		domain.CallStatusPending:       domain.CallStatusBotEnd,
		domain.CallStatusCalling:       domain.CallStatusBotEnd,
		domain.CallStatusBotConnected:  domain.CallStatusBotEnd,
		domain.CallStatusUserConnected: domain.CallStatusUserEnd,
	},
}

// Next вычисляет новый статус звонка для события.
//
// Финальный статус неизменен: любое событие над ним даёт ErrTerminal.
// Финальный результат провайдера вытесняет любой нефинальный статус
// сессии. Остальные события подчиняются таблице transitions.
func Next(current domain.CallStatus, ev Event) (domain.CallStatus, error) {
	if current.IsTerminal() {
		return current, ErrTerminal
	}

	if ev.Kind == EventProviderResult {
		if !ev.Result.IsTerminal() {
			return current, fmt.Errorf("%w: provider result %q is not terminal", ErrInvalidTransition, ev.Result)
		}
		if current == domain.CallStatusPending {
			return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, current)
		}
		return ev.Result, nil
	}

	row, ok := transitions[ev.Kind]
	if !ok {
		return current, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}

	if next, ok := row[current]; ok {
		return next, nil
	}

	if current.IsSession() {
		return current, fmt.Errorf("%w: %s on %s", ErrNoDowngrade, ev.Kind, current)
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, current)
}

// Allowed проверяет, применимо ли событие к статусу.
func Allowed(current domain.CallStatus, ev Event) bool {
	_, err := Next(current, ev)
	return err == nil
}
