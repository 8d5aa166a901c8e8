package kafka

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"sync"
	"time"
	"video-pipeline/config"
	"video-pipeline/pkg/queue"
)

// Producer keys every message by video id, so all work items for one
// video land on the same partition and therefore the same reader.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg *config.Kafka) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, key string, body []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type consumer[T any] struct {
	cfg        *config.Kafka
	handler    queue.Handler[T]
	numWorkers int
}

// NewConsumer starts numWorkers readers in one consumer group. Each reader
// handles its partitions sequentially and commits after the handler
// returns.
func NewConsumer[T any](cfg *config.Kafka, numWorkers int, handler func(ctx context.Context, body []byte, dependencies T) error) queue.Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{cfg: cfg, handler: handler, numWorkers: numWorkers}
}

func (c *consumer[T]) Consume(ctx context.Context, dependencies T) error {
	zerolog.Ctx(ctx).Info().
		Str("topic", c.cfg.Topic).
		Str("group_id", c.cfg.GroupID).
		Int("workers", c.numWorkers).
		Msg("transcode consumer started")

	errs := make(chan error, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			errs <- c.read(ctx, workerId, dependencies)
		}(i)
	}
	wg.Wait()
	close(errs)

	var joined error
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			joined = errors.Join(joined, err)
		}
	}
	if joined != nil {
		return joined
	}
	return ctx.Err()
}

func (c *consumer[T]) read(ctx context.Context, workerId int, dependencies T) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		GroupID:        c.cfg.GroupID,
		Topic:          c.cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerId).Msg("failed to close kafka reader")
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := c.handler(ctx, msg.Value, dependencies); err != nil {
			if ctx.Err() != nil {
				// uncommitted, redelivered to the group after restart
				return ctx.Err()
			}
			zerolog.Ctx(ctx).Error().Err(err).
				Int("worker_id", workerId).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to handle message, dropping")
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerId).Msg("failed to commit message")
		}
	}
}
