package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Dialer/internal/mq"
	"github.com/shaiso/Dialer/internal/telemetry"
)

// Sink принимает событие от HTTP-слоя.
// Реализации: Reconciler (inline) и QueueSink (RabbitMQ).
type Sink interface {
	Submit(ctx context.Context, ev Event) error
}

// EventPublisher публикует событие в очередь.
type EventPublisher interface {
	PublishWebhookEvent(ctx context.Context, event any) error
}

// QueueSink откладывает событие в RabbitMQ до dialer-reconciler.
type QueueSink struct {
	publisher EventPublisher
}

// NewQueueSink создаёт новый QueueSink.
func NewQueueSink(publisher EventPublisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

// Submit публикует событие.
func (s *QueueSink) Submit(ctx context.Context, ev Event) error {
	if err := s.publisher.PublishWebhookEvent(ctx, ev); err != nil {
		return fmt.Errorf("enqueue %s event: %w", ev.Kind, err)
	}
	return nil
}

// QueueHandler возвращает обработчик сообщений очереди webhook'ов.
//
// Событие для ещё не найденного звонка возвращается как ошибка, чтобы
// consumer повторил его один раз: session-start может опередить
// сохранение CallSid dispatcher'ом.
func QueueHandler(r *Reconciler, logger *slog.Logger) mq.Handler {
	logger = telemetry.OrDefault(logger)
	return func(ctx context.Context, msg *mq.Message) error {
		ev, err := mq.ParsePayload[Event](msg)
		if err != nil {
			return err
		}

		res, err := r.Apply(ctx, ev)
		if err != nil {
			return err
		}
		logger.Debug("queued webhook applied", "message_id", msg.ID, "kind", ev.Kind, "result", res)

		if res == ResultUnknownCall {
			return fmt.Errorf("%w: %s", ErrUnresolved, ev.Kind)
		}
		return nil
	}
}
