// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (переподключение, закрытие)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Используется в режиме WEBHOOK_MODE=queue: API принимает webhook,
// публикует событие webhook.event и сразу отвечает провайдеру, а
// dialer-reconciler применяет события из webhooks.events.
//
// Обработка сообщения повторяется один раз; повторно упавшее сообщение
// и сообщение с битым JSON уходят в dlq.webhooks.
package mq
