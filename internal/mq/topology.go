package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeWebhooks Exchange = "dialer.webhooks"
	ExchangeDLQ      Exchange = "dialer.dlq"
)

// Queues — имена очередей.
const (
	QueueWebhookEvents Queue = "webhooks.events"
	QueueDLQWebhooks   Queue = "dlq.webhooks"
)

// Routing keys.
const (
	RoutingKeyWebhookEvent RoutingKey = "event"
	RoutingKeyDLQWebhooks  RoutingKey = "webhooks"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание объектов RabbitMQ, которые использует dialer.
var topology = struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}{
	exchanges: []exchangeDecl{
		{ExchangeWebhooks, amqp.ExchangeDirect},
		{ExchangeDLQ, amqp.ExchangeDirect},
	},
	queues: []queueDecl{
		// webhook события; отвергнутые дважды уходят в DLQ
		{QueueWebhookEvents, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQWebhooks),
		}},
		{QueueDLQWebhooks, nil},
	},
	bindings: []bindingDecl{
		{QueueWebhookEvents, RoutingKeyWebhookEvent, ExchangeWebhooks},
		{QueueDLQWebhooks, RoutingKeyDLQWebhooks, ExchangeDLQ},
	},
}

// SetupTopology объявляет обменники, очереди и привязки. Операция идемпотентна.
func SetupTopology(conn *Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	for _, ex := range topology.exchanges {
		// durable, not auto-deleted, not internal, wait
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	for _, q := range topology.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	for _, b := range topology.bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Dialer RabbitMQ Topology:

    dialer.webhooks (direct)
    └── webhooks.events [routing: event]
            Consumer: dialer-reconciler
            DLQ: dlq.webhooks

    dialer.dlq (direct)
    └── dlq.webhooks [routing: webhooks]
            Manual processing
  `
}
