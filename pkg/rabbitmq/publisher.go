package rabbitmq

import (
	"context"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"sync"
	"video-pipeline/config"
)

type Publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) *Publisher {
	return &Publisher{conn: conn, cfg: cfg}
}

// Publish sends a persistent message and waits for the broker confirm, so
// a nil error means the broker owns the message.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return err
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		p.reset()
		return err
	}
	if !ok {
		return fmt.Errorf("broker nacked message %s", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declare(ch, p.cfg); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
}
