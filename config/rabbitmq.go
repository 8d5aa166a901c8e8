package config

import (
	"context"
	"fmt"
	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"net"
	"net/url"
	"strconv"
	"time"
)

func (r *RabbitMQ) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(r.User, r.Pass),
		Host:   net.JoinHostPort(r.Host, strconv.Itoa(r.Port)),
		Path:   "/",
	}
	return u.String()
}

// NewRabbitMQConn dials with exponential backoff and closes the connection
// when ctx is done.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQ) (*amqp.Connection, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("rabbitmq_host is required for the rabbitmq queue driver")
	}
	log := zerolog.Ctx(ctx).With().Str("host", cfg.Host).Int("port", cfg.Port).Logger()

	operation := func() (*amqp.Connection, error) {
		conn, err := amqp.Dial(cfg.URL())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to RabbitMQ. Retrying...")
			return nil, err
		}

		return conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	conn, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(5))
	if err != nil {
		log.Error().Err(err).Msg("Giving up connecting to RabbitMQ")
		return nil, err
	}

	log.Info().Msg("Successfully connected to RabbitMQ")
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-ctx.Done():
			if err := conn.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			}
			log.Info().Msg("RabbitMQ connection closed")
		case amqpErr := <-closed:
			if amqpErr != nil {
				log.Error().Str("reason", amqpErr.Reason).Int("code", amqpErr.Code).Msg("RabbitMQ connection lost")
			}
		}
	}()

	return conn, nil
}
