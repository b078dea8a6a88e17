package callstate

import (
	"strings"

	"github.com/shaiso/Dialer/internal/domain"
)

// providerStatuses — словарь статусов провайдера (native → canonical).
var providerStatuses = map[string]domain.CallStatus{
	"completed": domain.CallStatusCompleted,
	"busy":      domain.CallStatusMissed,
	"no-answer": domain.CallStatusMissed,
	"failed":    domain.CallStatusFailed,
	"canceled":  domain.CallStatusRejected,
}

// inFlightStatuses — статусы провайдера для звонка, который ещё идёт.
var inFlightStatuses = map[string]bool{
	"queued":      true,
	"ringing":     true,
	"in-progress": true,
}

// IsInFlight сообщает, что провайдер считает звонок незавершённым.
// Такой ответ опроса не должен закрывать звонок.
func IsInFlight(native string) bool {
	return inFlightStatuses[normalizeNative(native)]
}

// FromProviderPush отображает статус из callback'а провайдера.
// Для неизвестного статуса возвращает false: callback игнорируется.
func FromProviderPush(native string) (domain.CallStatus, bool) {
	status, ok := providerStatuses[normalizeNative(native)]
	return status, ok
}

// FromProviderPoll отображает статус из ответа FetchCallDetails.
// Неизвестный статус при опросе считается completed.
func FromProviderPoll(native string) domain.CallStatus {
	if status, ok := FromProviderPush(native); ok {
		return status
	}
	return domain.CallStatusCompleted
}

func normalizeNative(native string) string {
	return strings.ToLower(strings.TrimSpace(native))
}
