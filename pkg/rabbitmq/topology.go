package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"video-pipeline/config"
)

const (
	exchangeName  = "transcoding_exchange"
	queueName     = "transcoding_queue"
	routingKey    = "transcoding.request"
	dlxName       = "transcoding_exchange_dlx"
	dlqName       = "transcoding_queue_dlq"
	dlqRoutingKey = "dlq.transcoding.request"
)

// declare sets up the durable exchange, the work queue and its dead letter
// queue. Publisher and consumer both call it so either may start first.
func declare(ch *amqp.Channel, cfg *config.RabbitMQ) error {
	if err := ch.ExchangeDeclare(exchangeName, cfg.Kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(dlxName, cfg.Kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(dlqName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, dlqRoutingKey, dlxName, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxName,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	q, err := ch.QueueDeclare(queueName, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, routingKey, exchangeName, false, nil)
}
