// Package callstate — конечный автомат статусов звонка.
//
// Все переходы статуса CallJob проходят через Next: dispatcher, reconciler
// и poller сначала вычисляют новый статус здесь, а затем записывают его
// в БД с проверкой текущего значения (compare-and-swap в repo.CallRepo).
//
// Структура:
//   - machine.go  — события и таблица переходов
//   - provider.go — отображение статусов телефонного провайдера
//   - errors.go   — причины отказа в переходе
//
// Отказ с ErrTerminal или ErrNoDowngrade означает повторное или
// запоздавшее событие и обрабатывается вызывающим кодом как no-op.
package callstate
