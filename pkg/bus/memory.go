package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed in-memory bus.
var ErrClosed = errors.New("bus closed")

// MemoryBus is a channel-backed bus implementing both Consumer and
// Publisher. It backs tests and single-process deployments where the
// telemetry producer runs in the same binary.
type MemoryBus struct {
	ch   chan Message
	once sync.Once
	done chan struct{}
}

// NewMemoryBus creates a bus with the given buffer.
func NewMemoryBus(buffer int) *MemoryBus {
	return &MemoryBus{ch: make(chan Message, buffer), done: make(chan struct{})}
}

// Publish enqueues a message.
func (b *MemoryBus) Publish(ctx context.Context, m Message) error {
	select {
	case b.ch <- m:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume dequeues the next message.
func (b *MemoryBus) Consume(ctx context.Context) (Message, error) {
	select {
	case m := <-b.ch:
		return m, nil
	case <-b.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Ack is a no-op; channel delivery is the acknowledgement.
func (b *MemoryBus) Ack(ctx context.Context, id string) error { return nil }

// Close stops the bus.
func (b *MemoryBus) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// Len reports queued messages, for tests.
func (b *MemoryBus) Len() int { return len(b.ch) }
