package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBus_PublishConsume(t *testing.T) {
	b := NewMemoryBus(2)
	msg := Message{ID: "1-0", Key: "honeypot-1", Value: []byte("payload")}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
	got, err := b.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if got.Key != msg.Key || string(got.Value) != string(msg.Value) {
		t.Errorf("message mismatch: %+v", got)
	}
	if err := b.Ack(context.Background(), got.ID); err != nil {
		t.Errorf("Ack failed: %v", err)
	}
}

func TestMemoryBus_ConsumeRespectsContext(t *testing.T) {
	b := NewMemoryBus(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Consume(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestMemoryBus_ClosedReturnsErrClosed(t *testing.T) {
	b := NewMemoryBus(1)
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := b.Consume(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Consume after close: %v", err)
	}
	if err := b.Publish(context.Background(), Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after close: %v", err)
	}
	// Close is idempotent.
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
