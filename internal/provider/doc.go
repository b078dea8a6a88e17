// Package provider содержит клиент телефонного провайдера (Exotel).
//
// Клиент выполняет две операции:
//
//	PlaceCall         — размещает исходящий звонок, возвращает CallSid
//	FetchCallDetails  — запрашивает статус, длительность и запись звонка
//
// # Размещение звонка
//
// PlaceCall отправляет form-запрос на /v1/Accounts/{sid}/Calls/connect
// с basic auth (api key : api token). Звонок соединяется с ExoML
// приложением голосового бота, а финальный статус провайдер присылает
// на StatusCallback в JSON.
//
// # Ошибки
//
// Сетевые ошибки, не-2xx ответ, битый XML и отсутствие ожидаемых полей
// оборачиваются в ErrProvider:
//
//	sid, err := client.PlaceCall(ctx, phone, "", callbackURL)
//	if errors.Is(err, provider.ErrProvider) {
//	    // звонок помечается failed, обзвон продолжается
//	}
//
// Каждый запрос ограничен таймаутом Config.Timeout (по умолчанию 10s).
package provider
