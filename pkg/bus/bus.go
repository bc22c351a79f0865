package bus

import "context"

// Message is one transported event: the key carries the device identity, the
// value the JSON envelope. ID is the transport's ack handle where one exists.
type Message struct {
	ID    string
	Key   string
	Value []byte
}

// Consumer reads live telemetry events. Consume blocks until an event
// arrives or the context is canceled; that block is the pipeline's only
// suspension point.
type Consumer interface {
	Consume(ctx context.Context) (Message, error)
	Ack(ctx context.Context, id string) error
	Close() error
}

// Publisher emits alert events. Implementations must be safe for concurrent
// use by multiple pipeline workers.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close() error
}
