// Package dispatcher обзванивает контакты кампаний.
//
// Для каждой запущенной кампании Manager держит ровно один unit —
// горутину, которая последовательно:
//
//  1. Проверяет флаг is_running (пауза останавливает unit).
//  2. Берёт самый ранний pending-звонок; если их нет, завершает кампанию.
//  3. Переводит звонок pending → calling.
//  4. Размещает звонок у провайдера и сохраняет CallSid, либо
//     переводит звонок в failed с текстом ошибки.
//  5. Ждёт интервал между звонками.
//
// # Single-flight
//
// Второй unit для той же кампании не запускается: внутри процесса
// это гарантирует карта активных unit'ов, между процессами —
// advisory lock PostgreSQL по ключу кампании.
//
// Ошибка одного звонка не останавливает обзвон. Unit завершается
// только при паузе, завершении кампании, Stop или ошибке БД вне
// обработки конкретного звонка (флаг is_running при этом остаётся
// поднятым, и кампанию подхватит Resume Manager после рестарта).
package dispatcher
