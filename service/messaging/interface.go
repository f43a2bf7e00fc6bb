package messaging

import (
	"context"
	"errors"
)

// ErrQueueClosed is returned by Publish after Close, and by Consume once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue represents a FIFO job channel for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue, blocking while the queue is full
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)

	// Close stops accepting new messages; already queued messages remain consumable
	Close() error
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Ack acknowledges that this message was handled; it fails when called twice
	Ack() error
}
