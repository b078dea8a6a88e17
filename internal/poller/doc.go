// Package poller сверяет зависшие звонки с провайдером.
//
// Callback провайдера может не дойти. Poller по расписанию (cron)
// выбирает звонки, которые дольше POLL_STALE_AFTER_SECONDS остаются
// в calling с известным CallSid, запрашивает их состояние через
// FetchCallDetails и проводит результат через автомат статусов.
// Звонок, который провайдер ещё ведёт (queued, ringing, in-progress),
// остаётся в calling до следующего тика.
//
// Структура:
//   - poller.go — Tick и сверка одного звонка
//   - cron.go   — разбор расписания и запуск по cron
//
// Leader Election:
//
// Tick выполняется только тем экземпляром, который взял advisory lock
// на время тика. Остальные экземпляры тик пропускают.
package poller
