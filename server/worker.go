package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"video-pipeline/config"
	"video-pipeline/constant"
	jobHandler "video-pipeline/handler"
	"video-pipeline/pkg/kafka"
	"video-pipeline/pkg/queue"
	"video-pipeline/pkg/rabbitmq"
	"video-pipeline/service"
)

var errConsumerStopped = errors.New("transcode consumer stopped")

type transport struct {
	publisher queue.Publisher
	consumer  queue.Consumer[jobHandler.ServiceDependencies]
	close     func()
}

func newTransport(ctx context.Context, cfg *config.Config) (*transport, error) {
	workers := cfg.Server.Workers

	switch constant.QueueDriver(cfg.Queue.Driver) {
	case constant.QueueDriverRabbitMQ:
		conn, err := config.NewRabbitMQConn(ctx, cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("NewRabbitMQConn: %w", err)
		}
		publisher := rabbitmq.NewPublisher(conn, cfg.RabbitMQ)
		return &transport{
			publisher: publisher,
			consumer:  rabbitmq.NewConsumer(conn, cfg.RabbitMQ, workers, jobHandler.JobHandler),
			close: func() {
				if err := publisher.Close(); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close rabbitmq publisher")
				}
			},
		}, nil
	case constant.QueueDriverKafka:
		producer := kafka.NewProducer(cfg.Kafka)
		return &transport{
			publisher: producer,
			consumer:  kafka.NewConsumer(cfg.Kafka, workers, jobHandler.JobHandler),
			close: func() {
				if err := producer.Close(); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close kafka producer")
				}
			},
		}, nil
	default:
		memory := queue.NewMemory(cfg.Outbox.BatchSize)
		return &transport{
			publisher: memory,
			consumer:  queue.NewMemoryConsumer(memory, workers, jobHandler.JobHandler),
			close:     memory.Close,
		}, nil
	}
}

// RunWorker runs the outbox relay, the consumer pool and, when scheduled,
// the stuck video sweep until ctx is done or one of them fails.
func RunWorker(ctx context.Context, app *App) error {
	cfg := app.Config
	t, err := newTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer t.close()

	deps := jobHandler.ServiceDependencies{
		TranscodeService: service.NewService(app.Job, app.Locker()),
	}
	relay := service.NewRelay(app.Repo, t.publisher, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	zerolog.Ctx(ctx).Info().Str("queue", cfg.Queue.Driver).Int("workers", cfg.Server.Workers).Msg("start worker")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		err := t.consumer.Consume(gctx, deps)
		if gctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errConsumerStopped
		}
		return err
	})
	if cfg.Sweep.Schedule != "" {
		sweeper := service.NewSweeper(app.Repo, cfg.Sweep.StaleAfter)
		g.Go(func() error {
			return sweeper.Schedule(gctx, cfg.Sweep.Schedule)
		})
	}

	err = g.Wait()
	zerolog.Ctx(ctx).Info().Msg("worker stopped")
	return err
}

// RunStandalone serves HTTP and runs the worker in one process.
func RunStandalone(ctx context.Context, app *App) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return RunHttp(gctx, app)
	})
	g.Go(func() error {
		return RunWorker(gctx, app)
	})
	return g.Wait()
}
