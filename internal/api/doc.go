// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, dispatcher, анализ, webhook sink)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, body limit)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects и подтверждения webhook'ов
//   - campaign_handler.go — обработчики для /campaigns
//   - analysis_handler.go — обработчики для /campaigns/{id}/analysis
//   - webhook_handler.go  — приём webhook'ов провайдера и голосового бота
//
// Ответы управляющего API оборачиваются в {"data": ...}. Webhook'и
// отвечают фиксированными телами, которые ожидают отправители.
package api
