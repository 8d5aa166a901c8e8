// Package queue defines the work-item transport between the outbox relay
// and the worker pool. Messages carry an opaque body plus a routing key
// (the video id) that drivers may use for partitioning.
package queue

import (
	"context"
	"errors"
	"github.com/rs/zerolog"
	"sync"
)

var ErrClosed = errors.New("queue closed")

type Handler[T any] func(ctx context.Context, body []byte, dependencies T) error

type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
}

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

// Memory is an in-process broker. It is only durable as long as the
// process lives; the outbox keeps the durable copy until Publish returns.
type Memory struct {
	ch     chan []byte
	once   sync.Once
	closed chan struct{}
}

func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{
		ch:     make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

func (m *Memory) Publish(ctx context.Context, _ string, body []byte) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- body:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops consumers once the buffered messages are drained.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.closed) })
}

type memoryConsumer[T any] struct {
	m          *Memory
	handler    Handler[T]
	numWorkers int
}

func NewMemoryConsumer[T any](m *Memory, numWorkers int, handler func(ctx context.Context, body []byte, dependencies T) error) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &memoryConsumer[T]{m: m, handler: handler, numWorkers: numWorkers}
}

func (c *memoryConsumer[T]) Consume(ctx context.Context, dependencies T) error {
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for {
				select {
				case body := <-c.m.ch:
					if err := c.handler(ctx, body, dependencies); err != nil {
						zerolog.Ctx(ctx).Error().Err(err).Int("worker_id", workerId).Msg("failed to handle message")
					}
				case <-c.m.closed:
					return
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}
