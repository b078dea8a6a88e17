// Package webhook применяет асинхронные события провайдера и голосового
// бота к записям звонков.
//
// Поддерживаются четыре вида событий:
//
//	provider_status    — финальный статус от провайдера (CallSid → terminal)
//	session_start      — бот начал сессию (→ bot_connected) + данные прошлых сессий
//	session_end        — бот закончил сессию (→ bot_end | user_end) + транскрипт
//	transcript_events  — поток реплик (→ bot_connected один раз)
//
// Каждое событие идемпотентно и не зависит от порядка доставки: смена
// статуса проходит через callstate.Next и compare-and-swap в БД, а
// транскрипт, длительность и feedback пишутся в отдельные поля.
//
// Reconciler.Apply возвращает Result и ошибку; HTTP-слой их только
// логирует и всегда отвечает фиксированным подтверждением.
//
// В режиме очереди события сначала попадают в RabbitMQ (QueueSink), а
// dialer-reconciler применяет их через QueueHandler.
package webhook
