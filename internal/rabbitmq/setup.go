package rabbitmq

import (
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Имена обменника, ключей и очередей задач выдачи членства.
const (
	Exchange        = "membership"
	GrantQueue      = "membership.grant"
	GrantRoutingKey = "grant"
	RetryQueue      = "membership.grant.retry"
	RetryRoutingKey = "grant.retry"
)

// SetupChannel открывает канал и объявляет топологию очередей.
// Очередь повторов не имеет потребителей: сообщения лежат в ней
// retryInterval и по истечении TTL возвращаются в основную очередь
// через dead-letter-обменник.
func SetupChannel(conn *amqp.Connection, retryInterval time.Duration) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = ch.QueueDeclare(
		GrantQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, GrantQueue, err)
	}
	if err := ch.QueueBind(GrantQueue, GrantRoutingKey, Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, GrantQueue, err)
	}

	_, err = ch.QueueDeclare(
		RetryQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl":             retryInterval.Milliseconds(),
			"x-dead-letter-exchange":    Exchange,
			"x-dead-letter-routing-key": GrantRoutingKey,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, RetryQueue, err)
	}
	if err := ch.QueueBind(RetryQueue, RetryRoutingKey, Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("%s: failed to bind queue %s: %w", op, RetryQueue, err)
	}

	return ch, nil
}
